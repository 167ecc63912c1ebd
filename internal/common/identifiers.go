package common

import "github.com/google/uuid"

// NewClientOrderID mints an opaque client-order-id for a caller that didn't
// supply its own, by folding a random UUID down to the uint64 the wire
// format carries. Collisions only matter within one owner's open-order
// table, so the 60 random bits in the first 8 bytes of a version-4 UUID
// are ample.
func NewClientOrderID() uint64 {
	id := uuid.New()
	hi := uint64(0)
	for _, b := range id[:8] {
		hi = hi<<8 | uint64(b)
	}
	return hi
}
