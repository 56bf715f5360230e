// Package middleware puts the portal's session perimeter in front of
// net/http handlers.
//
// [RequireSession] decodes the admin or member cookie through the Engine and
// stores the session in the request context. [RequirePermission] and
// [RequireRole] narrow access further and answer 403. Handlers still call
// Engine.Authorize before changing state; these guards only keep
// unauthenticated traffic away from protected pages.
package middleware
