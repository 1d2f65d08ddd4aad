package app

import (
	"crypto/rand"

	"github.com/google/uuid"
)

func newID() string {
	return uuid.NewString()
}

// referenceAlphabet avoids characters that are easy to confuse when a
// reference is read over the phone or typed from a printed ticket.
const referenceAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// newBookingReference generates a human-readable booking reference such as
// "BK-7GQ2MWPX4T". Uniqueness is guaranteed by the bookings unique
// constraint, not by generation; callers regenerate on collision.
func newBookingReference() string {
	b := make([]byte, 10)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms; fall back to a UUID
		// so a reference is always produced.
		return "BK-" + uuid.NewString()
	}
	for i := range b {
		b[i] = referenceAlphabet[int(b[i])%len(referenceAlphabet)]
	}
	return "BK-" + string(b)
}
