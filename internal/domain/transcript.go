package domain

type Role string

const (
	RoleCaller Role = "caller"
	RoleAgent  Role = "agent"
)

// NoText is recorded when a transcript event carries no text.
const NoText = "no text"

type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Transcript is append-only for the lifetime of a call session.
type Transcript struct {
	turns []Turn
}

func (t *Transcript) Append(role Role, text string) {
	if text == "" {
		text = NoText
	}
	t.turns = append(t.turns, Turn{Role: role, Text: text})
}

func (t *Transcript) Len() int { return len(t.turns) }

// Snapshot returns a copy that is safe to hand to another goroutine.
// It is never nil so it encodes as [] rather than null.
func (t *Transcript) Snapshot() []Turn {
	out := make([]Turn, len(t.turns))
	copy(out, t.turns)
	return out
}
