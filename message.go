package toolflow

import (
	"time"

	"github.com/google/uuid"
)

// Turn is one completed exchange between the user and the agent.
type Turn struct {
	ID    string    `json:"id"`
	User  string    `json:"user"`
	Agent string    `json:"agent"`
	At    time.Time `json:"at"`
}

// NewTurn creates a turn with a fresh identifier.
func NewTurn(user, agent string, at time.Time) Turn {
	return Turn{ID: GenerateTurnID(), User: user, Agent: agent, At: at}
}

// GenerateTurnID creates a unique turn identifier.
func GenerateTurnID() string {
	return "turn-" + uuid.New().String()
}

// GenerateInvocationID creates a unique invocation identifier for providers
// that do not assign their own.
func GenerateInvocationID() string {
	return "call-" + uuid.New().String()
}
