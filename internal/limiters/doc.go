// Package limiters composes rate windows into the portal's authentication
// throttling policy.
//
// # Keys
//
//   - login:<ip>|<email>   password login attempts
//   - verify:<ip>          OTP verification attempts
//   - request:<ip>|<email> OTP and reset-link requests
//
// # What this package must NOT do
//
//   - Decide authentication outcomes; it only admits or denies attempts.
//   - Store email addresses outside the limiter key space.
package limiters
