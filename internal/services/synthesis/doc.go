// Package synthesis provides an HTTP client for the external speech
// synthesis collaborator. The segment resolver uses it to turn scripted
// intro, outro, and ad segments into audio.
//
// # Protocol
//
// The client POSTs {"text","voice","format","sample_rate","channels"} as JSON
// to <endpoint>/v1/synthesize and expects audio bytes back. The response body
// is streamed straight to the destination file. Non-2xx responses surface as
// *StatusError so callers can tell a bad request from a struggling service.
//
// # Entry Points
//
// NewClient: construct client from Config.
// Client.Synthesize: render one script to a local file.
// Client.HealthCheck: GET <endpoint>/v1/health.
//
// Timeouts are the caller's job: pass a context with a deadline.
package synthesis
