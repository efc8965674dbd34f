package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// NewID returns a best-effort unique identifier.
func NewID() string {
	const size = 12

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err == nil {
		return hex.EncodeToString(buf)
	}

	// Fallback to timestamp if crypto/rand is unavailable.
	return strconv.FormatInt(time.Now().UnixNano(), 10)
}

// NewRendezvousID returns a fresh rendezvous identifier for a user.
// Format: user_<id>_<random6>. A new one is generated every time the user
// enters the waiting pool so stale call attempts never reach a new session.
func NewRendezvousID(userID int64) string {
	buf := make([]byte, 3)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("user_%d_%06d", userID, time.Now().UnixNano()%1000000)
	}
	return fmt.Sprintf("user_%d_%s", userID, hex.EncodeToString(buf))
}
