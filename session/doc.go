// Package session holds the session model, the Store contract, and the
// Redis-backed store used in production.
//
// Sessions are stored as Redis hashes with a per-principal index set.
// Revocation and refresh-secret rotation run as Lua scripts so each
// transition applies atomically on the server. A revoked session keeps
// its row (inactive) until natural expiry, which is what makes
// reactivation impossible.
package session
