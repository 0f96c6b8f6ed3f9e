// Package tokens approximates token counts for budgeting decisions.
package tokens

import (
	"unicode/utf8"

	"github.com/pario-ai/tierwise/pkg/models"
)

// CharsPerToken is the fixed characters-per-token ratio of the estimator.
const CharsPerToken = 4

// messageOverhead approximates role markers and separators per message.
const messageOverhead = 4

// Estimate returns the approximate token count of text: one token per
// CharsPerToken runes, rounded up. It is monotonic in the rune length.
func Estimate(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + CharsPerToken - 1) / CharsPerToken
}

// EstimateMessages returns the approximate token count of a message list,
// including a small per-message overhead.
func EstimateMessages(msgs []models.ChatMessage) int {
	total := 0
	for _, m := range msgs {
		total += Estimate(m.Content) + messageOverhead
	}
	return total
}
