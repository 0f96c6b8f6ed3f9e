package models

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is a single message in a conversation.
// Summary marks a synthetic message produced by history compression.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Summary bool   `json:"summary,omitempty"`
}

// Usage holds final token counts reported by the upstream model.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total returns input plus output tokens.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}
