// Package identity holds the account sources behind portalauth.
//
// Admins live in a JSON file edited from the admin panel, plus an optional
// master admin configured through the environment. Members live in the
// Postgres members table. [Directory] routes each lookup to the right
// source by session kind.
package identity
