// Package daemonrun assembles the podforge runtime from configuration: the
// job store, the lock backend, blob storage, speech synthesis, the ffmpeg
// transcoder, and the workflow manager. The podforged binary runs it as a
// daemon; the CLI "run" command uses the same wiring to process one job in
// the foreground.
package daemonrun
