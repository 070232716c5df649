package truthlink

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Category assigns a tracked market to a truth-source domain.
type Category string

const (
	CategoryGovernmentShutdown Category = "government_shutdown"
	CategoryLegislation        Category = "legislation"
	CategoryFedRate            Category = "fed_rate"
	CategoryHurricane          Category = "hurricane"
	CategoryWeather            Category = "weather"
	CategorySportsPlayer       Category = "sports_player"
	CategorySportsOutcome      Category = "sports_outcome"
	CategoryOther              Category = "other"
)

// TruthMap tags a market with its category and the matching vocabulary
// used when truth events arrive.
type TruthMap struct {
	Category     Category
	TruthSources []string
	Keywords     []string
	BillPatterns []*regexp.Regexp
}

// CategoryRule is one ordered categorisation rule. The first rule whose
// keywords or bill patterns match a market's text wins.
type CategoryRule struct {
	Category     Category
	TruthSources []string
	Keywords     []string
	BillPatterns []*regexp.Regexp
}

// ruleFile is the YAML shape of an externalised rule table.
type ruleFile struct {
	Rules []struct {
		Category     string   `yaml:"category"`
		TruthSources []string `yaml:"truth_sources"`
		Keywords     []string `yaml:"keywords"`
		BillPatterns []string `yaml:"bill_patterns"`
	} `yaml:"rules"`
}

// DefaultRules returns the compiled-in categorisation table. Order
// matters: more specific categories come first.
func DefaultRules() []CategoryRule {
	return []CategoryRule{
		{
			Category:     CategoryGovernmentShutdown,
			TruthSources: []string{"congress"},
			Keywords:     []string{"government shutdown", "shutdown", "continuing resolution", "appropriations", "government funding"},
			BillPatterns: compilePatterns([]string{`(?i)continuing\s+appropriations`, `(?i)appropriations\s+act`, `(?i)continuing\s+resolution`}),
		},
		{
			Category:     CategoryFedRate,
			TruthSources: []string{"fed"},
			Keywords:     []string{"fed", "fomc", "federal reserve", "rate cut", "rate hike", "interest rate", "basis points"},
		},
		{
			Category:     CategoryHurricane,
			TruthSources: []string{"weather"},
			Keywords:     []string{"hurricane", "tropical storm", "cyclone", "landfall"},
		},
		{
			Category:     CategoryWeather,
			TruthSources: []string{"weather"},
			Keywords:     []string{"temperature", "snowfall", "rainfall", "heat wave", "blizzard", "tornado"},
		},
		{
			Category:     CategorySportsPlayer,
			TruthSources: []string{"sports"},
			Keywords:     []string{"points", "rebounds", "assists", "touchdowns", "yards", "goals scored", "score a"},
		},
		{
			Category:     CategorySportsOutcome,
			TruthSources: []string{"sports"},
			Keywords:     []string{"win", "beat", "defeat", "championship", "playoffs", "super bowl", "world series", "finals"},
		},
		{
			Category:     CategoryLegislation,
			TruthSources: []string{"congress"},
			Keywords:     []string{"bill", "congress", "senate", "house", "pass", "law", "signed", "veto", "legislation"},
			BillPatterns: compilePatterns([]string{`(?i)\b(h\.?r\.?|s\.?)\s*\d+\b`, `(?i)\bact\s+of\s+\d{4}\b`}),
		},
	}
}

// LoadRules reads an externalised YAML rule table, falling back to the
// compiled-in defaults when the file is absent.
func LoadRules(path string) []CategoryRule {
	if path == "" {
		return DefaultRules()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Truth-map rules not readable, using defaults")
		return DefaultRules()
	}

	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		log.Error().Err(err).Str("path", path).Msg("Truth-map rules invalid, using defaults")
		return DefaultRules()
	}

	rules := make([]CategoryRule, 0, len(file.Rules))
	for _, r := range file.Rules {
		rule := CategoryRule{
			Category:     Category(r.Category),
			TruthSources: r.TruthSources,
			Keywords:     r.Keywords,
		}
		for _, p := range r.BillPatterns {
			re, err := regexp.Compile(p)
			if err != nil {
				log.Warn().Err(err).Str("pattern", p).Msg("Skipping invalid bill pattern")
				continue
			}
			rule.BillPatterns = append(rule.BillPatterns, re)
		}
		rules = append(rules, rule)
	}

	if len(rules) == 0 {
		return DefaultRules()
	}
	log.Info().Int("rules", len(rules)).Str("path", path).Msg("📖 Loaded truth-map rules")
	return rules
}

// Categorize tests market text against the rule list and returns the
// first matching rule's TruthMap.
func Categorize(rules []CategoryRule, text string) (TruthMap, bool) {
	lower := strings.ToLower(text)
	for _, rule := range rules {
		if matchesKeywords(lower, rule.Keywords) || matchesPatterns(text, rule.BillPatterns) {
			return TruthMap{
				Category:     rule.Category,
				TruthSources: rule.TruthSources,
				Keywords:     rule.Keywords,
				BillPatterns: rule.BillPatterns,
			}, true
		}
	}
	return TruthMap{}, false
}

// matchesKeywords matches single-word keywords on whole words and
// multi-word keywords on substrings, case-insensitively. The input text
// must already be lowercased.
func matchesKeywords(lowerText string, keywords []string) bool {
	for _, kw := range keywords {
		if keywordHit(lowerText, kw) {
			return true
		}
	}
	return false
}

func keywordHit(lowerText, keyword string) bool {
	kw := strings.ToLower(keyword)
	if strings.ContainsRune(kw, ' ') {
		return strings.Contains(lowerText, kw)
	}
	return containsWord(lowerText, kw)
}

func containsWord(text, word string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		beforeOK := start == 0 || !isWordByte(text[start-1])
		afterOK := end == len(text) || !isWordByte(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b == '_'
}

func matchesPatterns(text string, patterns []*regexp.Regexp) bool {
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// countKeywordHits returns how many of the keywords appear in the text.
func countKeywordHits(text string, keywords []string) int {
	lower := strings.ToLower(text)
	hits := 0
	for _, kw := range keywords {
		if keywordHit(lower, kw) {
			hits++
		}
	}
	return hits
}

func compilePatterns(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}

// WriteDefaultRules serialises the default table, used by tooling to
// bootstrap an editable config file.
func WriteDefaultRules(path string) error {
	var file ruleFile
	for _, r := range DefaultRules() {
		entry := struct {
			Category     string   `yaml:"category"`
			TruthSources []string `yaml:"truth_sources"`
			Keywords     []string `yaml:"keywords"`
			BillPatterns []string `yaml:"bill_patterns"`
		}{
			Category:     string(r.Category),
			TruthSources: r.TruthSources,
			Keywords:     r.Keywords,
		}
		for _, re := range r.BillPatterns {
			entry.BillPatterns = append(entry.BillPatterns, re.String())
		}
		file.Rules = append(file.Rules, entry)
	}

	data, err := yaml.Marshal(&file)
	if err != nil {
		return fmt.Errorf("marshal rules: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
