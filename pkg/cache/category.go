package cache

import (
	"regexp"

	"github.com/pario-ai/tierwise/pkg/classifier"
	"github.com/pario-ai/tierwise/pkg/models"
)

var companyPatterns = []string{
	`\b(?:mon|ma|mes|notre|nos)\s+(?:entreprise|soci[ée]t[ée]|bo[iî]te|cabinet|commerce|activit[ée]|chiffre|ca\b|r[ée]sultats?|bilan|comptes|dettes?|marges?|clients?|effectifs?|salari[ée]s|ebitda|tr[ée]sorerie)`,
	`\bmy\s+(?:company|business|firm|shop|revenue|sales|margins?|debt|clients?|customers|employees|ebitda|cash)`,
	`\bour\s+(?:company|business|firm|revenue|sales|margins?|debt|clients?|customers|employees|ebitda|cash)`,
}

var sectorPatterns = []string{
	`\bsecteurs?\b`,
	`\bsectors?\b`,
	`\bindustr(?:y|ies|ie)\b`,
	`\bmarch[ée]s?\s+(?:du|de la|des|de l')`,
	`\bmarkets?\b`,
	`en g[ée]n[ée]ral`,
	`in general`,
	`\btypiquement\b`,
	`\btypically\b`,
	`moyennes?\s+(?:du|de la|des)`,
	`\bcode naf\b`,
	`multiples?\s+(?:moyens?|habituels?|courants?)`,
}

// Categorizer assigns a content category to an utterance.
type Categorizer struct {
	cls     *classifier.Classifier
	company []*regexp.Regexp
	sector  []*regexp.Regexp
}

// NewCategorizer builds a Categorizer that reuses the ratio and synthesis
// rules of cls.
func NewCategorizer(cls *classifier.Classifier) *Categorizer {
	return &Categorizer{
		cls:     cls,
		company: compileAll(companyPatterns),
		sector:  compileAll(sectorPatterns),
	}
}

// Categorize returns the category of utterance. A synthesis message type
// always yields CategorySynthesis; otherwise the first matching set wins in
// the order company, sector, ratio, synthesis, with clarification as fallback.
func (c *Categorizer) Categorize(utterance string, mt models.MessageType) models.ContentCategory {
	switch {
	case mt == models.MessageSynthesis:
		return models.CategorySynthesis
	case matchAny(c.company, utterance):
		return models.CategoryCompanySpecific
	case matchAny(c.sector, utterance):
		return models.CategorySectorGeneral
	case c.cls.MatchesRule(classifier.RuleRatio, utterance):
		return models.CategoryRatioAnalysis
	case c.cls.MatchesRule(classifier.RuleSynthesis, utterance):
		return models.CategorySynthesis
	default:
		return models.CategoryClarification
	}
}

func compileAll(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile("(?i)" + p)
	}
	return out
}

func matchAny(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
