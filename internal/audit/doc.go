// Package audit implements async event dispatching for authentication
// outcomes.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, zap, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full or block-if-full semantics.
//   - [Event]: structured record with timestamp, type, subject, IP and metadata.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does not decide which
// events to emit; that belongs to the Engine and flow functions.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import portalauth or any sibling internal package.
//   - Record plaintext codes, tokens or passwords.
package audit
