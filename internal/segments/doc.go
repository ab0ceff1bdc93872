// Package segments turns a template's declared structure into the concrete
// audio an episode is assembled from.
//
// Templates live as YAML files in the template directory. Resolve applies
// per-episode overrides, calls the speech synthesis collaborator for scripted
// segments, and fails with a missing_content error when a main_content
// segment has no episode override.
package segments
