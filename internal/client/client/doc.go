// Package client contains the Remote Client: the thin, fallible adapter
// between the sync engine and the authoritative bizsync backend.
//
// # Overview
//
// The package provides:
//  1. A transport-agnostic contract (Remote) with per-collection Create,
//     Update, Delete and List plus Ping, and an Authenticator for
//     Register/Login and token handling.
//  2. A gRPC implementation (GRPCClient) that injects the access token via
//     an interceptor, transparently refreshes expired tokens and maps gRPC
//     status codes to sentinel errors.
//  3. A REST implementation (HTTPClient) speaking the JSON envelope of the
//     server's /api routes.
//
// # Error Handling
//
// Failures are classified with sentinel errors that callers match with
// errors.Is: ErrUnavailable (transient), ErrRejected and ErrUnauthorized
// (permanent) and ErrNotFound. IsTransient and IsPermanent wrap the
// classification used by the sync engine's retry and dead-letter policy.
//
// Both implementations are safe for concurrent use. All operations accept
// context.Context and honor cancellation.
package client
