package classifier

import "github.com/pario-ai/tierwise/pkg/models"

// Well-known rule names. The judgment's booleans are derived from them.
const (
	RuleValuation    = "valuation"
	RuleRatio        = "ratio"
	RuleDeepAnalysis = "deep_analysis"
	RuleSynthesis    = "synthesis"
	RuleExplanation  = "explanation"
	RuleComparison   = "comparison"
)

// DefaultRules returns the built-in rule table in justification priority order.
// Patterns are RE2 expressions matched case-insensitively.
func DefaultRules() []models.PatternRule {
	return []models.PatternRule{
		{
			Name:          RuleValuation,
			Tag:           "valuation",
			Topic:         true,
			Weight:        40,
			ForcesCapable: true,
			Justification: "valuation question: pricing a business needs the capable tier",
			Patterns: []string{
				`combien\s+(?:ça|ca|cela|elle|il|mon entreprise|ma soci[ée]t[ée])?\s*vau[tx]`,
				`valeur\s+(?:de|d')\s*(?:mon|ma|mes|l'|la|notre|cette)`,
				`valoris`,
				`\bvaluations?\b`,
				`how much\s+(?:is|would|could)\b.{0,40}\bworth`,
				`\bworth\b`,
				`multiples?\s+(?:d'|de l'|de|of\s+)?\s*(?:ebitda|ebit|ca|chiffre d'affaires|revenue|sales|earnings)`,
				`(?:ebitda|ebit|revenue|earnings)\s+multiples?`,
				`\bdcf\b`,
				`discounted cash flow`,
				`flux de tr[ée]sorerie actualis`,
				`prix de (?:vente|cession)`,
				`\bgoodwill\b`,
				`fonds de commerce`,
				`estim\w*\s+(?:la\s+)?valeur`,
			},
		},
		{
			Name:          RuleRatio,
			Tag:           "ratio",
			Topic:         true,
			Weight:        35,
			ForcesCapable: true,
			Justification: "financial ratio question: ratio interpretation needs the capable tier",
			Patterns: []string{
				`\bratios?\b`,
				`taux d'endettement`,
				`endettement`,
				`debt[- ]to[- ]equity`,
				`debt ratio`,
				`\bleverage\b`,
				`effet de levier`,
				`\bgearing\b`,
				`marge\s+(?:brute|nette|d'exploitation|op[ée]rationnelle|d'ebitda)`,
				`\bmargins?\b`,
				`rentabilit`,
				`\bprofitability\b`,
				`\b(?:roe|roa|roce|roi)\b`,
				`\bbfr\b`,
				`besoin en fonds de roulement`,
				`working capital`,
				`liquidit`,
				`solvabilit`,
				`couverture des int[ée]r[êe]ts`,
				`interest coverage`,
				`par rapport (?:à|a) l'ebitda`,
				`dette nette\s*/\s*ebitda`,
				`net debt`,
			},
		},
		{
			Name:          RuleDeepAnalysis,
			Tag:           "deep_analysis",
			Topic:         true,
			Weight:        30,
			ForcesCapable: true,
			Justification: "deep analysis requested: explanation, comparison or trend over the financials",
			Patterns: []string{
				`expliqu\w*\s+pourquoi`,
				`explain why`,
				`compar\w*\s+(?:avec|à|a|aux|with|to|against)\b`,
				`tendances?`,
				`\btrends?\b`,
				`[ée]volution`,
				`analys\w*\s+(?:en d[ée]tail|approfondie|d[ée]taill[ée]e|compl[èe]te)`,
				`in[- ]depth`,
				`deep dive`,
				`\bbenchmark`,
			},
		},
		{
			Name:          RuleSynthesis,
			Tag:           "synthesis",
			Weight:        25,
			ForcesCapable: true,
			Justification: "synthesis requested: final summaries always use the capable tier",
			Patterns: []string{
				`synth[eèé]s`,
				`\bsummar(?:y|ize|ise)\b`,
				`r[ée]sum[ée]`,
				`\brecap`,
				`r[ée]capitul`,
				`bilan (?:global|complet|final)`,
				`rapport final`,
				`final report`,
			},
		},
		{
			Name:   RuleExplanation,
			Weight: 20,
			Patterns: []string{
				`expliqu`,
				`\bexplain`,
				`pourquoi`,
				`\bwhy\b`,
				`comment (?:ça|ca|cela) (?:marche|fonctionne)`,
				`qu'est-ce que`,
				`what does .{1,40} mean`,
			},
		},
		{
			Name:   RuleComparison,
			Weight: 15,
			Patterns: []string{
				`compar`,
				`\bversus\b`,
				`\bvs\.?(?:\s|$)`,
				`par rapport`,
				`diff[ée]rence entre`,
				`difference between`,
				`mieux que`,
				`better than`,
			},
		},
	}
}

// trivialPatterns match whole, trimmed utterances that carry no information
// beyond a confirmation, a bare amount or a date.
var trivialPatterns = []string{
	`^(?:oui|non|ok|okay|d'accord|ouais|yes|no|yep|nope|exact|exactement|correct|parfait|merci|thanks|thank you)[\s.!]*$`,
	`^[-+]?\d[\d\s.,']*\s*(?:%|€|\$|eur|euros?|k€|m€|keur|meur|k|m|usd|dollars?)?$`,
	`^(?:19|20)\d{2}$`,
	`^(?:janvier|f[ée]vrier|mars|avril|mai|juin|juillet|ao[uû]t|septembre|octobre|novembre|d[ée]cembre|january|february|march|april|may|june|july|august|september|october|november|december)\s+(?:19|20)\d{2}$`,
}

// affirmativePrefixes let a short utterance stay trivial even with a question mark.
var affirmativePrefixes = []string{"oui", "non", "ok", "yes", "no"}
