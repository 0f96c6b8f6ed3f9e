// Package classifier judges the semantic complexity of a single utterance.
// It is a pure, rule-driven function: the same utterance always yields the
// same judgment.
package classifier

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pario-ai/tierwise/pkg/config"
	"github.com/pario-ai/tierwise/pkg/models"
)

type compiledRule struct {
	rule models.PatternRule
	res  []*regexp.Regexp
}

func (r compiledRule) match(s string) bool {
	for _, re := range r.res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// Classifier scores utterances against a compiled rule table.
type Classifier struct {
	cfg     config.ClassifierConfig
	rules   []compiledRule
	byName  map[string]int
	trivial []*regexp.Regexp
}

// New compiles the rule table of cfg. An empty cfg.Rules selects DefaultRules.
func New(cfg config.ClassifierConfig) (*Classifier, error) {
	table := cfg.Rules
	if len(table) == 0 {
		table = DefaultRules()
	}

	c := &Classifier{
		cfg:    cfg,
		byName: make(map[string]int, len(table)),
	}
	for _, r := range table {
		cr := compiledRule{rule: r}
		for _, p := range r.Patterns {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				return nil, fmt.Errorf("compile rule %s: %w", r.Name, err)
			}
			cr.res = append(cr.res, re)
		}
		c.byName[r.Name] = len(c.rules)
		c.rules = append(c.rules, cr)
	}
	for _, p := range trivialPatterns {
		c.trivial = append(c.trivial, regexp.MustCompile("(?i)"+p))
	}
	return c, nil
}

// Default returns a classifier with the built-in rules and thresholds.
func Default() *Classifier {
	c, err := New(config.Default().Classifier)
	if err != nil {
		panic(err)
	}
	return c
}

// MatchesRule reports whether text matches the named rule.
// Unknown rule names never match.
func (c *Classifier) MatchesRule(name, text string) bool {
	i, ok := c.byName[name]
	if !ok {
		return false
	}
	return c.rules[i].match(text)
}

// Classify returns the semantic judgment of utterance.
func (c *Classifier) Classify(utterance string) models.SemanticJudgment {
	var j models.SemanticJudgment
	score := 0
	seen := make(map[string]bool)

	for _, r := range c.rules {
		if !r.match(utterance) {
			continue
		}
		score += r.rule.Weight
		if r.rule.Topic && r.rule.Tag != "" && !seen[r.rule.Tag] {
			seen[r.rule.Tag] = true
			j.Topics = append(j.Topics, r.rule.Tag)
		}
		if r.rule.ForcesCapable {
			j.MustUseCapable = true
			if j.Justification == "" {
				j.Justification = r.rule.Justification
				if j.Justification == "" {
					j.Justification = r.rule.Name + " rule matched"
				}
			}
		}

		switch r.rule.Name {
		case RuleValuation:
			j.IsValuationQuestion = true
		case RuleRatio:
			j.IsRatioQuestion = true
		case RuleDeepAnalysis:
			j.RequiresDeepAnalysis = true
		case RuleSynthesis:
			j.RequiresSynthesis = true
		case RuleExplanation:
			j.RequiresExplanation = true
		case RuleComparison:
			j.RequiresComparison = true
		}
	}

	n := utf8.RuneCountInString(utterance)
	if n > c.cfg.LongUtteranceRunes {
		score += c.cfg.LengthWeight
	}
	if n > c.cfg.VeryLongUtteranceRunes {
		score += c.cfg.LengthWeight
	}
	if q := strings.Count(utterance, "?"); q > 1 {
		score += (q - 1) * c.cfg.ExtraQuestionWeight
	}

	j.ComplexityScore = clamp(score, 0, 100)
	if j.ComplexityScore >= c.cfg.CapableThreshold {
		if !j.MustUseCapable {
			j.Justification = fmt.Sprintf("high complexity (score %d)", j.ComplexityScore)
		}
		j.MustUseCapable = true
	}
	return j
}

// IsTrivialClarification reports whether utterance is a bare confirmation,
// amount or date, or a short statement without substantive content.
func (c *Classifier) IsTrivialClarification(utterance string) bool {
	s := strings.TrimSpace(utterance)
	for _, re := range c.trivial {
		if re.MatchString(s) {
			return true
		}
	}

	if utf8.RuneCountInString(s) >= c.cfg.TrivialMaxRunes {
		return false
	}
	if strings.Contains(s, "?") && !affirmative(s) {
		return false
	}
	return !c.MatchesRule(RuleValuation, s) && !c.MatchesRule(RuleRatio, s)
}

func affirmative(s string) bool {
	lower := strings.ToLower(s)
	for _, p := range affirmativePrefixes {
		if !strings.HasPrefix(lower, p) {
			continue
		}
		next, _ := utf8.DecodeRuneInString(lower[len(p):])
		if next == utf8.RuneError || !unicode.IsLetter(next) {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
