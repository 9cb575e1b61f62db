// Package core orchestrates validation and mapping runs.
//
// It is independent of the transport: the web handlers and the rulectl CLI
// both drive the same [Service].
//
// # Run sequence
//
// A call to [Service.Run] is strictly sequential:
//
//  1. Reject the request early (no file, unsupported format, malformed rules).
//  2. Take an engine slot from the [EngineLimiter].
//  3. Persist the upload, and the edited rules when present, in a scratch
//     session.
//  4. Invoke the engine for the request's [Kind] and wait for it.
//  5. Name the artifact from the engine's RESULT marker, else from
//     [OutputName].
//  6. Close the session, which removes every input file but not the artifact.
//
// # Error Handling
//
// Failures are typed ([ErrNoFile], [ErrInvalidRules], [ExecutionError],
// engine.ErrUnavailable, ...) and mapped to user messages with support codes
// by [MapError].
package core
