// Package permission defines the closed set of admin capabilities, the bitmask
// that carries them, and the roles that decide whether the mask is consulted at all.
//
// # Model
//
// A [Role] is either unrestricted ([RoleSuperAdmin]) or restricted. Restricted roles
// are granted exactly the capabilities present in their [Set]. Unknown capability
// names never parse, so a malformed permission list can only shrink access.
//
// # What this package must NOT do
//
//   - Access Redis, databases, or the network.
//   - Import portalauth, session, or middleware.
//   - Treat a string sentinel such as "all" as a capability.
package permission
