/*
Package dapcore implements a Debug Adapter Protocol server for
JavaScript runtimes speaking the Chrome DevTools Protocol.

It mediates between a DAP client (an IDE or dap-cli) and a CDP target
(a Chrome tab, Node's inspector, or anything else that speaks the
Debugger, Runtime, and Console domains), translating one session's
stack traces, breakpoints, and expression evaluation into the other's.

# Installation

	go install github.com/tmc/dapcore/cmd/dapserve@latest

# Basic usage

Launch Chrome headless and serve DAP over stdio, the way an IDE's
debug extension would spawn it:

	dapserve -headless

Or attach to an already-running Chrome and serve DAP over TCP for
multiple clients:

	dapserve -attach-host=localhost -attach-port=9222 -addr=:4711
*/
package dapcore

// Version is the current version of dapcore.
const Version = "0.1.0"
