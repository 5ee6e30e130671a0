package memory

import (
	"fmt"
	"strings"
)

// Message is one normalized role/content record.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RoleUser is the role inferred for bare string input.
const RoleUser = "user"

// Normalize canonicalizes heterogeneous input into an ordered message
// sequence. Accepted forms: a bare string (role inferred as "user"), a
// single Message, or an ordered []Message. Empty input is rejected with
// ErrInvalidInput. Normalize has no side effects.
func Normalize(input any) ([]Message, error) {
	switch v := input.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, fmt.Errorf("%w: empty input", ErrInvalidInput)
		}
		return []Message{{Role: RoleUser, Content: v}}, nil

	case Message:
		return Normalize([]Message{v})

	case []Message:
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: empty message list", ErrInvalidInput)
		}
		out := make([]Message, 0, len(v))
		for i, msg := range v {
			if strings.TrimSpace(msg.Content) == "" {
				return nil, fmt.Errorf("%w: message %d has empty content", ErrInvalidInput, i)
			}
			role := msg.Role
			if role == "" {
				role = RoleUser
			}
			out = append(out, Message{Role: role, Content: msg.Content})
		}
		return out, nil

	case nil:
		return nil, fmt.Errorf("%w: nil input", ErrInvalidInput)

	default:
		return nil, fmt.Errorf("%w: unsupported input type %T", ErrInvalidInput, input)
	}
}

// Transcript renders messages as "[role] content" lines for prompting.
func Transcript(messages []Message) string {
	var b strings.Builder
	for _, msg := range messages {
		fmt.Fprintf(&b, "[%s] %s\n", msg.Role, msg.Content)
	}
	return b.String()
}
