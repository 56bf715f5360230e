// Package httpapi exposes the portalauth engine over JSON HTTP routes for
// the admin panel and the member portal.
//
// Handlers map engine errors to status codes and user-safe messages with
// portalauth.UserMessage. Internal detail goes to the zap logger only.
package httpapi
