// Package blob resolves structured audio references to readable local files
// and persists rendered artifacts.
//
// References are versioned Ref values (local path or s3 bucket/key). Resolve
// never guesses from error text: it returns a Result whose ResolveError says
// whether the asset is genuinely absent (not_found) or the store misbehaved
// (transient, after bounded exponential backoff). Callers pick the fallback.
// The S3 backend is MinIO's client behind the ObjectStore interface.
package blob
