// Package capability gates administrative operations that bypass normal
// invariant checks, per spec.md §9: "Implementers should expose direct
// mode only behind an administrative capability."
package capability

// Admin is an unforgeable (within this process) token proving the caller
// is authorized for administrative postings such as direct-entry
// commits. Application plumbing (out of scope for this
// module — identity/authentication) is responsible for deciding who
// receives one.
type Admin struct{ granted bool }

// GrantAdmin returns a valid Admin token. Call sites outside tests should
// gate this behind their own authentication/authorization layer.
func GrantAdmin() Admin { return Admin{granted: true} }

// Valid reports whether the token was actually granted, as opposed to a
// zero-value Admin{} constructed by accident.
func (a Admin) Valid() bool { return a.granted }
