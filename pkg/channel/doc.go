// Package channel is the seam for the secure messaging transport that
// carries trust claims and access decisions between the requester and
// verifier roles. Confidentiality and integrity are the transport's
// concern; this package only defines the message contract and ships an
// in-process pair for tests and demos.
package channel
