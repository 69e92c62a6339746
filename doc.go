// Package auth provides the identity and authorization core: users, roles
// and the memberships that link them, HS256 bearer tokens, and the fiber
// boundary that authenticates every request.
//
// Tokens:
//   - TokenService issues tokens whose roles claim is the comma joined list
//     of ROLE_ prefixed role names. Validation ends in one of four states,
//     see StateOf. RotatingTokenValidator accepts tokens signed with a
//     previous secret while it is rotated out.
//
// Storage:
//   - Users are soft deleted and every read goes through ActiveUsers.
//     Memberships are revoked, never removed, and read through
//     ActiveMemberships. A partial unique index keeps at most one active
//     membership per user and role.
//
// Activity sinks:
//   - ActivitySink receives login, registration, role and membership events.
//     Sinks run best effort, errors are logged and never returned to callers.
package auth
