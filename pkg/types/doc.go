// Package types defines the shared domain model for ctxtrack: the Project
// document and its nested value types, partial-update descriptors, and the
// validation rules that apply before anything reaches a storage backend.
//
// Projects are whole documents. Both storage backends read and write the
// complete Project; there is no partial field I/O below this layer. The
// zero-valued collections are always non-nil so a marshaled project never
// contains JSON nulls.
package types
