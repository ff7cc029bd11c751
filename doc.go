// Package authengine implements the authentication and session security
// engine of the Staynest booking platform: credential verification with
// per-principal lockout, an optional time-based second factor with
// single-use backup codes, paired access/refresh session credentials,
// multi-device session management, password reset, and append-only
// security audit logging.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authengine is the public surface. It exposes [Engine], [Builder],
// [Config], the storage contracts ([CredentialStore], session.Store,
// [VerificationTokenStore]) and value types. Flow coordination and audit
// dispatch live under internal/ and are never exported.
//
// Persistence is pluggable: the sqlitestore package provides the
// credential-store and audit implementations used by cmd/authd, and the
// session package ships a Redis-backed session store. Any backend that
// satisfies the storage contracts can replace them.
//
// # What this package must NOT do
//
//   - Decide authorization beyond attaching a role claim to a session.
//   - Expose store clients or encoding details in its public API.
//   - Perform I/O outside of Engine methods (construction via Builder is
//     allocation-only until Build).
package authengine
