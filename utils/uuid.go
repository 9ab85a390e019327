package utils

import (
	"strings"

	"github.com/google/uuid"
)

// guestPrefix marks bidder ids derived from a guest's phone number
const guestPrefix = "guest:"

// GenerateID returns a new unique identifier string
func GenerateID() string {
	return uuid.New().String()
}

// GuestID derives a stable bidder id for an unauthenticated bidder.
// The phone number is hashed into a name-based UUID so it never appears
// in bids, orders or events.
func GuestID(phone string) string {
	return guestPrefix + uuid.NewSHA1(uuid.NameSpaceOID, []byte(strings.TrimSpace(phone))).String()
}

// IsGuestID reports whether id was produced by GuestID
func IsGuestID(id string) bool {
	return strings.HasPrefix(id, guestPrefix)
}
