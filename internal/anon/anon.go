// Package anon implements the client-IP anonymization scheme from
// spec.md §6: a session-random XOR mask folds the real client address into
// the 10.0.0.0/8 private range before it is logged or used in a dump
// filename, so the on-disk forensic record never carries a raw client IP.
// Grounded on the anon_ip_src computation in
// original_source/pe_dump/pe_dump.c's packet_received.
package anon

import (
	"encoding/binary"
	"math/rand"
)

// Key is a session-random 32-bit XOR mask. A fresh Key should be created
// once per process start-up (not per packet), matching the original's
// single process-lifetime random seed.
type Key uint32

// NewKey returns a random Key seeded from the standard library's default
// source. Spec.md §6 only requires the mask to vary run-to-run; it is not
// a cryptographic requirement, so math/rand is sufficient and matches the
// original's rand()-based seeding.
func NewKey() Key {
	return Key(rand.Uint32())
}

// Mask anonymizes a client IPv4 address. It XORs ip with the key, then
// forces the result into 10.x.x.x by overwriting the first octet, exactly
// as the original computes anon_ip_src: anonymize the low bits, fix the
// network into a well-known private block so the output is always
// recognizable as anonymized rather than a real routable address.
func (k Key) Mask(ip [4]byte) [4]byte {
	v := binary.BigEndian.Uint32(ip[:])
	v ^= uint32(k)

	var out [4]byte
	binary.BigEndian.PutUint32(out[:], v)
	out[0] = 10

	return out
}
