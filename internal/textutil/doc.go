// Package textutil turns user-supplied identifiers into names that are safe to
// use in filesystem paths and object keys.
package textutil
