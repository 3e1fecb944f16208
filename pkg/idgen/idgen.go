// Package idgen generates compact sortable identifiers for delivery traces.
// Every log line of one delivery attempt carries the same trace ID, which is
// shorter and friendlier in log output than a UUID.
package idgen

import (
	"crypto/rand"
	"encoding/base32"
	"strings"
	"sync/atomic"
	"time"
)

var (
	// sequence is an atomically incremented counter to ensure uniqueness
	// within a second
	sequence uint32

	// instanceID distinguishes concurrently running processes
	instanceID = mustRandom(3)

	// base32Encoding is standard base32 without padding
	base32Encoding = base32.NewEncoding("ABCDEFGHIJKLMNOPQRSTUVWXYZ234567").WithPadding(base32.NoPadding)
)

// New generates a compact hybrid ID:
//   - 4 bytes: timestamp (seconds since epoch, truncated)
//   - 3 bytes: instance ID
//   - 2 bytes: atomically incremented sequence number
//   - 3 bytes: random data
//
// Total: 12 bytes, base32-encoded to 20 lowercase characters. IDs generated
// on one instance sort roughly by creation time.
func New() string {
	timestamp := uint32(time.Now().Unix())
	seq := atomic.AddUint32(&sequence, 1) & 0xFFFF

	id := make([]byte, 12)
	id[0] = byte(timestamp >> 24)
	id[1] = byte(timestamp >> 16)
	id[2] = byte(timestamp >> 8)
	id[3] = byte(timestamp)
	copy(id[4:7], instanceID)
	id[7] = byte(seq >> 8)
	id[8] = byte(seq)
	copy(id[9:12], mustRandom(3))

	return strings.ToLower(base32Encoding.EncodeToString(id))
}

// mustRandom returns n crypto-random bytes, falling back to the clock if the
// system source is unavailable.
func mustRandom(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		now := time.Now().UnixNano()
		for i := range b {
			b[i] = byte(now >> (8 * i))
		}
	}
	return b
}
