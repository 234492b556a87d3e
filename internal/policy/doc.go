// Package policy is the boundary between the scheduler and a remote policy
// model.
//
// A [Policy] turns one [Request] (three camera images, the current joint
// position and a text prompt) into a [Response] carrying an action chunk.
// [Client] speaks the wire protocol over HTTP; [Server] exposes any Policy
// over the same protocol. Bodies are CBOR with zstd-compressed pixel
// buffers.
//
// The scheduler never retries and never times out a call on its own.
// Deadlines belong to the context and the underlying *http.Client.
package policy
