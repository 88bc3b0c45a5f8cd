// Package executor runs JavaScript and TypeScript in an embedded engine with
// a curated set of host capabilities.
//
// # Overview
//
// An [Executor] owns the immutable capability table. Each script runs in its
// own [Session], which moves through Created, Loading, Running, Draining and
// Terminated. Script code runs on a single goroutine; host operations such as
// file reads and fetches run on workers and resume the script in the order
// they complete.
//
// # Basic Usage
//
//	exec, err := executor.New(
//	    executor.WithMount("/", ".", executor.MountReadWriteCreate),
//	    executor.WithAllowedHosts([]string{"api.example.com"}),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer exec.Close()
//
//	result := exec.Run(ctx, executor.Script{
//	    Name:   "hello.js",
//	    Source: `await runjs.writeFile("out.txt", "hi"); console.log(await runjs.readFile("out.txt"))`,
//	}, executor.WithStdout(os.Stdout))
//
// # Sessions
//
// Use sessions directly to separate loading from running:
//
//	session, err := exec.NewSession(executor.WithDrainTimeout(time.Second))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Close()
//
//	if err := session.Load(script); err != nil {
//	    return err // ParseFailure, nothing ran
//	}
//	result := session.Run(ctx)
//
// # Errors
//
// Capability failures reject the script's promise and never end a session.
// An uncaught exception or unhandled rejection is reported as an
// [EngineError], stops further continuations and detaches every pending
// operation. All reported errors are collected in [Result.Error].
package executor
