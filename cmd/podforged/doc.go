// Command podforged runs the podforge worker pool and status API until it
// receives SIGINT or SIGTERM.
package main
