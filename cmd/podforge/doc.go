// Command podforge is the operator CLI for the podforge assembly engine.
//
// Job commands talk to the running daemon's status API and fall back to the
// job store when the daemon is down. "podforge run" processes one queued job
// in the foreground and "podforge daemon" runs the full worker pool.
package main
