package relay

import "github.com/google/uuid"

// newSessionID returns a random UUIDv4. Collisions are still checked by the
// hub before registering.
func newSessionID() string {
	return uuid.NewString()
}
