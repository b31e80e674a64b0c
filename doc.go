// Package auth provides the visitor session gate for the clinic site: sign
// up, sign in, sign out and password reset against a hosted authentication
// and data provider, plus the derived view of members only content.
//
// Session gate:
//   - SessionGate owns the only copy of the visitor Session. It is built with
//     NewSessionGate, resolves the stored session in Start and releases the
//     provider subscription in Close.
//   - Updates arrive from operation results and from provider notifications.
//     The most recently started update wins, and an update that would not
//     change the snapshot does not notify listeners.
//   - Every provider call carries a timeout (DefaultCallTimeout unless
//     WithCallTimeout is used).
//
// Errors:
//   - Provider failures are classified into ErrorKind values through a static
//     code and message table and rendered with the i18n catalogs. Anything the
//     table does not know falls back to a generic message that embeds the raw
//     provider text.
//   - Operations never return provider errors directly; they return a Result
//     carrying the localized message and the original error.
//
// Views:
//   - BuildView is a pure projection of a Snapshot and the loaded Gallery into
//     a ViewModel consumed by the web templates.
//
// Activity sinks:
//   - ActivitySink receives an event for every operation outcome and every
//     committed state transition. Sinks run best effort (errors are logged).
package auth
