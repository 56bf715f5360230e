// Package notify delivers one-time codes and reset links by email.
//
// [Mailer] sends through SMTP with go-mail and implements
// portalauth.Notifier. [LogNotifier] writes the message to a zap logger
// instead and is meant for local development only.
//
// A Mailer send that outlives its context returns an error straight away,
// but the SMTP exchange keeps running. If it then succeeds, the recipient
// gets a code or link the engine has already discarded; the Mailer logs that
// case at warn level.
package notify
