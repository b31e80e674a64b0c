// Package local provides a self hosted auth.Provider backed by bun and
// SQLite. It issues HS256 session tokens, mails confirmation and recovery
// links through a Mailer, and enforces row level policies on the clinic
// tables so the SessionGate behaves the same as against the hosted backend.
package local
