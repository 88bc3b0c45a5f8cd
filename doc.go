// Package runjs embeds a JavaScript engine and exposes a small, curated set of
// host capabilities to the scripts it runs.
//
// # Overview
//
// Scripts get console.log and console.error plus the runjs namespace:
// readFile, writeFile and removeFile on mounted directories, and fetch to
// allowed hosts. Every host operation returns a promise. Operations run on
// worker goroutines while script code stays on a single goroutine, and
// continuations resume in the order operations complete.
//
// # Basic Usage
//
//	exec, _ := executor.New(
//	    executor.WithMount("/", "./work", executor.MountReadWriteCreate),
//	)
//	defer exec.Close()
//
//	result := exec.Run(ctx, executor.Script{
//	    Name:   "hello.js",
//	    Source: `await runjs.writeFile("a.txt", "hi"); console.log(await runjs.readFile("a.txt"))`,
//	}, executor.WithStdout(os.Stdout))
//
// # Enabling Capabilities
//
//	// Network access
//	executor.New(executor.WithAllowedHosts([]string{"api.example.com"}))
//
//	// Read-only data next to a writable output directory
//	executor.New(
//	    executor.WithMount("/data", "./input", executor.MountReadOnly),
//	    executor.WithMount("/out", "./output", executor.MountReadWriteCreate),
//	)
//
// See the [executor], [hostfunc], [bridge] and [value] packages for detailed
// API documentation.
package runjs
