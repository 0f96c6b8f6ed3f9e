package cache

import (
	"crypto/sha256"
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/pario-ai/tierwise/pkg/config"
	"github.com/pario-ai/tierwise/pkg/models"
)

// Scope is the context folded into a fingerprint alongside the utterance.
type Scope struct {
	Category             models.ContentCategory
	SectorCode           string
	Step                 int
	TenantID             string
	LastAssistantMessage string
}

// Fingerprinter derives cache keys. Keys are a pure function of their inputs.
type Fingerprinter struct {
	shortRunes int
	prevRunes  int
}

// NewFingerprinter returns a Fingerprinter using the utterance and context
// lengths of cfg.
func NewFingerprinter(cfg config.CacheConfig) Fingerprinter {
	return Fingerprinter{
		shortRunes: cfg.ShortUtteranceRunes,
		prevRunes:  cfg.PreviousContextRunes,
	}
}

// Key returns the hex SHA-256 fingerprint of utterance within scope.
//
// Shareable categories fold only the utterance, the category and the shared
// tenant sentinel, so sector, step and tenant never split their entries.
// Short utterances additionally fold a hash of the tail of the previous
// assistant message.
func (f Fingerprinter) Key(utterance string, scope Scope) string {
	parts := []string{utterance, scope.Category.String()}
	if scope.Category.Shareable() {
		parts = append(parts, models.SharedTenant)
	} else {
		parts = append(parts, scope.SectorCode, strconv.Itoa(scope.Step), scope.TenantID)
	}
	if utf8.RuneCountInString(utterance) < f.shortRunes {
		parts = append(parts, hashText(tail(scope.LastAssistantMessage, f.prevRunes)))
	}

	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

func hashText(s string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(s)))
}

func tail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[len(r)-n:])
}
