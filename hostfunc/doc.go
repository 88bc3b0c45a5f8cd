// Package hostfunc provides the host capabilities exposed to scripts.
//
// Scripts have no implicit access to system resources. Every capability is an
// [Entry] in an immutable [Registry] with an argument contract and a fixed set
// of failure kinds.
//
// # Registry
//
// Entries are either synchronous (Invoke) or asynchronous (Prepare). Prepare
// runs on the script thread, applies every policy check that needs no I/O and
// returns the blocking [bridge.Operation] to schedule. A policy failure rejects
// the call before anything is scheduled.
//
//	registry, err := hostfunc.NewRegistry(
//	    hostfunc.WithMiddleware(hostfunc.LoggingMiddleware(logger)),
//	    hostfunc.WithEntries(hostfunc.Builtins(fs, http)...),
//	)
//
// # Built-in Capabilities
//
// Filesystem: mount-based access via [FS], [Mount], and [MountMode].
//
//	fs := hostfunc.NewFS([]hostfunc.Mount{
//	    {VirtualPath: "/data", HostPath: "./input", Mode: hostfunc.MountReadOnly},
//	})
//
// Network: GET-only fetch via [HTTP] and [HTTPConfig].
//
//	http := hostfunc.NewHTTP(hostfunc.HTTPConfig{
//	    AllowedHosts: []string{"api.example.com"},
//	})
//
// Console: console.log and console.error write formatted values to the
// session's output streams and never fail.
//
// # Errors
//
// Failures are [CapabilityError] values tagged with an [ErrorKind]. They reach
// scripts as rejected promises and never terminate the host. The fixed
// policies are:
//   - removeFile on a missing path fails with NotFound
//   - fetch of a non-2xx response fails with HttpError carrying the status
package hostfunc
