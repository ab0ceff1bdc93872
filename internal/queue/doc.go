// Package queue persists assembly jobs, episodes, and the edit audit log in
// SQLite.
//
// The Store is the only shared mutable state between workers. Every status
// change is a single conditional UPDATE (or a short transaction) so that two
// workers racing for the same job observe exactly one winner. Episodes point
// at their current job; jobs carry only the immutable episode id.
//
// The database is transient storage for in-flight and recent jobs rather
// than a long-term archive. Schema changes bump the version in schema.go;
// operators clear the database to adopt the new schema.
package queue
