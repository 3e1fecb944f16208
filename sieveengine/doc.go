// Package sieveengine evaluates per-account SIEVE filtering scripts
// (RFC 5228) against incoming messages and maps their verdict onto the
// platform's filter outcome model:
//
//   - fileinto "Folder"  -> folder override (the folder is created on demand)
//   - discard            -> the message is dropped before it reaches a folder
//   - keep / no action   -> normal delivery
//
// The extension set is restricted to what the platform can honor, see
// SupportedExtensions. vacation is not offered because the platform has no
// outbound transport for auto-responses; copy is not offered because every
// message is owned by exactly one folder; imap4flags is not offered because
// stored messages are immutable. The core redirect command (address
// forwarding) is accepted by the interpreter but treated as keep.
//
// Scripts are compiled with the go-sieve library at upload time, so a
// syntactically invalid script or one requiring an unsupported extension is
// rejected before it can affect delivery. A runtime evaluation error falls
// back to keep; delivery proceeds into INBOX.
package sieveengine
