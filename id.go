package tenun

import (
	"strings"

	"github.com/google/uuid"
)

// NewID generates a globally unique, time-sortable UUIDv7 (RFC 9562).
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewSessionID generates a session identifier of the form
// "<agentType>_<8 hex chars>".
func NewSessionID(agentType string) string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return agentType + "_" + raw[:8]
}
