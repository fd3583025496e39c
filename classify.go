package verbump

import (
	"regexp"
	"strings"
	"unicode"
)

// Keywords is the keyword table used to classify commit messages. Matching is
// case-insensitive. Keywords that start or end with a letter only match on a
// word boundary, so "FIX" matches "fix: typo" but not "prefix".
type Keywords struct {
	Major []string `mapstructure:"major"`
	Minor []string `mapstructure:"minor"`
	Patch []string `mapstructure:"patch"`
}

// DefaultKeywords returns the built-in keyword table.
func DefaultKeywords() Keywords {
	return Keywords{
		Major: []string{"BREAKING CHANGE", "BREAKING", "MAJOR", "!:"},
		Minor: []string{"FEATURE", "MINOR", "FEAT", "feature:", "feat:", "add:", "new:"},
		Patch: []string{"PATCH", "FIX", "BUGFIX", "HOTFIX"},
	}
}

type keywordFamily struct {
	bump    BumpCategory
	pattern *regexp.Regexp
}

// Classifier maps commit messages to bump categories. It is immutable once
// built and safe for concurrent use.
type Classifier struct {
	families []keywordFamily
	suffix   *regexp.Regexp
}

// NewClassifier compiles a keyword table. Families are checked in the order
// major, minor, patch and the first match wins.
func NewClassifier(kw Keywords) *Classifier {
	c := &Classifier{}

	var words []string
	for _, family := range []struct {
		bump     BumpCategory
		keywords []string
	}{
		{BumpMajor, kw.Major},
		{BumpMinor, kw.Minor},
		{BumpPatch, kw.Patch},
	} {
		var alternatives []string
		for _, keyword := range family.keywords {
			if strings.TrimSpace(keyword) == "" {
				continue
			}
			alternatives = append(alternatives, keywordPattern(keyword))
			if isWord(keyword) {
				words = append(words, regexp.QuoteMeta(keyword))
			}
		}
		if len(alternatives) == 0 {
			continue
		}
		c.families = append(c.families, keywordFamily{
			bump:    family.bump,
			pattern: regexp.MustCompile(`(?i)(?:` + strings.Join(alternatives, "|") + `)`),
		})
	}

	if len(words) > 0 {
		c.suffix = regexp.MustCompile(`(?i)\b(?:` + strings.Join(words, "|") + `)-(ALPHA|BETA)\b`)
	}
	return c
}

// Classify returns the bump category of a single message. A message without
// any keyword is a patch; a single message never yields BumpNone.
func (c *Classifier) Classify(message string) Classification {
	hint := c.hint(message)
	for _, family := range c.families {
		if family.pattern.MatchString(message) {
			return Classification{Bump: family.bump, Hint: hint, Explicit: true}
		}
	}
	return Classification{Bump: BumpPatch, Hint: hint}
}

// Aggregate reduces a commit history to one classification: the highest
// bump seen, and the pre-release hint with beta taking priority over alpha.
// An empty history is a patch with no hint.
func (c *Classifier) Aggregate(messages []string) Classification {
	agg := Classification{Bump: BumpPatch}
	for _, message := range messages {
		cl := c.Classify(message)
		if cl.Bump > agg.Bump {
			agg.Bump = cl.Bump
		}
		agg.Explicit = agg.Explicit || cl.Explicit
		agg.Hint = preferHint(agg.Hint, cl.Hint)
	}
	return agg
}

func (c *Classifier) hint(message string) PreRelease {
	if c.suffix == nil {
		return PreReleaseNone
	}
	hint := PreReleaseNone
	for _, m := range c.suffix.FindAllStringSubmatch(message, -1) {
		tier, err := ParsePreRelease(m[1])
		if err != nil {
			continue
		}
		hint = preferHint(hint, tier)
	}
	return hint
}

func preferHint(current, candidate PreRelease) PreRelease {
	switch {
	case candidate == PreReleaseBeta:
		return PreReleaseBeta
	case candidate == PreReleaseAlpha && current == PreReleaseNone:
		return PreReleaseAlpha
	default:
		return current
	}
}

func keywordPattern(keyword string) string {
	runes := []rune(keyword)
	pattern := regexp.QuoteMeta(keyword)
	pattern = strings.ReplaceAll(pattern, " ", `[\s_-]+`)
	if isWordRune(runes[0]) {
		pattern = `\b` + pattern
	}
	if isWordRune(runes[len(runes)-1]) {
		pattern += `\b`
	}
	return pattern
}

func isWord(s string) bool {
	for _, r := range s {
		if !isWordRune(r) {
			return false
		}
	}
	return s != ""
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
