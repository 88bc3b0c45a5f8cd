package executor

import (
	"io"
	"net/http"
	"time"

	"github.com/caffeineduck/runjs/bridge"
	"github.com/caffeineduck/runjs/hostfunc"
	"go.uber.org/zap"
)

// Mount permission modes (re-exported from hostfunc for convenience).
const (
	MountReadOnly        = hostfunc.MountReadOnly
	MountReadWrite       = hostfunc.MountReadWrite
	MountReadWriteCreate = hostfunc.MountReadWriteCreate
)

// ExecutorOption configures the Executor at creation time.
type ExecutorOption func(*executorConfig)

type executorConfig struct {
	logger     *zap.Logger
	workers    int
	mounts     []hostfunc.Mount
	fsOptions  []hostfunc.FSOption
	httpConfig hostfunc.HTTPConfig
	middleware []hostfunc.Middleware
}

func defaultExecutorConfig() executorConfig {
	return executorConfig{
		logger:  zap.NewNop(),
		workers: bridge.DefaultWorkers,
	}
}

// WithLogger sets the logger used by the executor and its sessions.
func WithLogger(l *zap.Logger) ExecutorOption {
	return func(c *executorConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithWorkers bounds how many host operations each session runs at once.
func WithWorkers(n int) ExecutorOption {
	return func(c *executorConfig) {
		c.workers = n
	}
}

// WithMount adds a filesystem mount point with the specified permissions.
// The virtual path is what scripts see; host path is the actual location.
// Without any mount the file capabilities are not installed.
//
// Examples:
//
//	executor.WithMount("/", ".", executor.MountReadWriteCreate)
//	executor.WithMount("/data", "./input", executor.MountReadOnly)
func WithMount(virtualPath, hostPath string, mode hostfunc.MountMode) ExecutorOption {
	return func(c *executorConfig) {
		c.mounts = append(c.mounts, hostfunc.Mount{
			VirtualPath: virtualPath,
			HostPath:    hostPath,
			Mode:        mode,
		})
	}
}

// WithAllowedHosts sets the hosts fetch may reach. Use hostfunc.AnyHost to
// allow every host.
func WithAllowedHosts(hosts []string) ExecutorOption {
	return func(c *executorConfig) {
		c.httpConfig.AllowedHosts = hosts
	}
}

// WithHTTPMaxURLLength sets the maximum URL length for fetch.
func WithHTTPMaxURLLength(size int) ExecutorOption {
	return func(c *executorConfig) {
		c.httpConfig.MaxURLLength = size
	}
}

// WithHTTPMaxBodySize sets the maximum response body size for fetch. A longer
// body rejects the fetch with Denied.
func WithHTTPMaxBodySize(size int64) ExecutorOption {
	return func(c *executorConfig) {
		c.httpConfig.MaxBodySize = size
	}
}

// WithHTTPTimeout sets the per-request timeout for fetch.
func WithHTTPTimeout(d time.Duration) ExecutorOption {
	return func(c *executorConfig) {
		c.httpConfig.RequestTimeout = d
	}
}

// WithHTTPTransport replaces the HTTP transport used by fetch.
func WithHTTPTransport(rt http.RoundTripper) ExecutorOption {
	return func(c *executorConfig) {
		c.httpConfig.Transport = rt
	}
}

// WithFSMaxFileSize sets the maximum file size for readFile.
func WithFSMaxFileSize(size int64) ExecutorOption {
	return func(c *executorConfig) {
		c.fsOptions = append(c.fsOptions, hostfunc.WithMaxFileSize(size))
	}
}

// WithFSMaxWriteSize sets the maximum content size for writeFile.
func WithFSMaxWriteSize(size int64) ExecutorOption {
	return func(c *executorConfig) {
		c.fsOptions = append(c.fsOptions, hostfunc.WithMaxWriteSize(size))
	}
}

// WithFSMaxPathLength sets the maximum path length for file capabilities.
func WithFSMaxPathLength(length int) ExecutorOption {
	return func(c *executorConfig) {
		c.fsOptions = append(c.fsOptions, hostfunc.WithMaxPathLength(length))
	}
}

// WithMiddleware wraps every host operation. It runs inside the built-in
// panic recovery and logging middleware.
func WithMiddleware(mw ...hostfunc.Middleware) ExecutorOption {
	return func(c *executorConfig) {
		c.middleware = append(c.middleware, mw...)
	}
}

// SessionOption configures one session.
type SessionOption func(*sessionConfig)

type sessionConfig struct {
	stdout       io.Writer
	stderr       io.Writer
	errorSink    func(error)
	timeout      time.Duration
	drainTimeout time.Duration
}

func defaultSessionConfig() sessionConfig {
	return sessionConfig{
		stdout:  io.Discard,
		stderr:  io.Discard,
		timeout: 30 * time.Second,
	}
}

// WithStdout sets where console.log writes.
func WithStdout(w io.Writer) SessionOption {
	return func(c *sessionConfig) {
		if w != nil {
			c.stdout = w
		}
	}
}

// WithStderr sets where console.error writes.
func WithStderr(w io.Writer) SessionOption {
	return func(c *sessionConfig) {
		if w != nil {
			c.stderr = w
		}
	}
}

// WithErrorSink receives every error the session reports, as it happens.
func WithErrorSink(fn func(error)) SessionOption {
	return func(c *sessionConfig) {
		c.errorSink = fn
	}
}

// WithTimeout bounds the whole session. Running script code is interrupted
// when it expires. Zero disables the bound.
func WithTimeout(d time.Duration) SessionOption {
	return func(c *sessionConfig) {
		c.timeout = d
	}
}

// WithDrainTimeout bounds how long a session waits for operations left
// pending after the top-level code finished. Remaining operations are
// cancelled and rejected with a Timeout error. Zero waits indefinitely.
func WithDrainTimeout(d time.Duration) SessionOption {
	return func(c *sessionConfig) {
		c.drainTimeout = d
	}
}
