// Package topics defines the ten analysis categories a guided article
// analysis must cover and attributes questions to them.
package topics

import (
	"strconv"
	"strings"
)

// Category is one mandatory analysis topic.
type Category struct {
	Key      string
	Name     string
	Example  string
	keywords []string
}

// All lists the categories in the order they are presented to the model.
var All = []Category{
	{
		Key:     "statistical_methods",
		Name:    "Statistical Methods",
		Example: "What statistical methods are used in this study, and what is each one used for?",
		keywords: []string{"statistical method", "statistical test", "which test", "what test", "methods are used",
			"methods did", "analytic approach", "statistical approach", "model did the authors", "type of model"},
	},
	{
		Key:     "study_design",
		Name:    "Study Design",
		Example: "What is the study design, and how were participants selected or assigned?",
		keywords: []string{"study design", "design of", "participants selected", "selected or assigned", "recruited",
			"assigned", "randomiz", "randomis", "enrolled", "control group", "sampling frame"},
	},
	{
		Key:     "interpretation",
		Name:    "Interpretation of Findings",
		Example: "How do the authors interpret their results, and what do the statistical findings tell us?",
		keywords: []string{"interpret the results", "interpret their results", "interpreted", "findings tell",
			"results tell", "what do the results", "what do the findings", "conclusions"},
	},
	{
		Key:     "limitations",
		Name:    "Limitations, Assumptions and Bias",
		Example: "What are the main limitations or assumptions of the analysis or design, and could bias affect the results?",
		keywords: []string{"limitation", "assumption", "bias", "confound", "weakness", "generaliz", "generalis", "threat to validity"},
	},
	{
		Key:     "course_connections",
		Name:    "Course Connections",
		Example: "How does this article connect to concepts from the course, such as regression, inference, sampling or ANOVA?",
		keywords: []string{"course", "in class", "learned", "connect", "relate to", "concepts from", "lecture"},
	},
	{
		Key:     "communication",
		Name:    "Communication Skills",
		Example: "How would you explain the main method to someone without a statistical background?",
		keywords: []string{"without a statistical background", "without statistical background", "layperson", "lay audience",
			"non-expert", "nonexpert", "someone without", "plain language", "explain the method", "to a friend"},
	},
	{
		Key:     "summary",
		Name:    "Summary of Findings",
		Example: "Can you give a one or two sentence summary of the main results?",
		keywords: []string{"summary", "summarize", "summarise", "sentence", "main results", "main findings", "in brief"},
	},
	{
		Key:     "alternative_analyses",
		Name:    "Alternative Analyses",
		Example: "What additional or alternative analyses might give more insight into this question?",
		keywords: []string{"alternative", "additional analys", "another analysis", "different analysis", "other analys",
			"more insight", "what else could", "sensitivity analys"},
	},
	{
		Key:     "communication_improvement",
		Name:    "Communication Improvement",
		Example: "How could the authors communicate their findings more clearly?",
		keywords: []string{"communicate their findings", "communicated", "more clearly", "clearer", "presentation",
			"figure", "table", "visualiz", "visualis"},
	},
	{
		Key:     "specific_interpretation",
		Name:    "Specific Interpretation",
		Example: "Choose one specific result, such as a p-value, confidence interval or coefficient. What does it mean?",
		keywords: []string{"p-value", "p value", "confidence interval", "coefficient", "odds ratio", "hazard ratio",
			"choose one", "specific result", "one result", "what does it mean", "what does this number"},
	},
}

// ByKey resolves a category from its key, display name or 1-based number.
func ByKey(s string) (Category, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Category{}, false
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n >= 1 && n <= len(All) {
			return All[n-1], true
		}
		return Category{}, false
	}
	norm := normalize(s)
	for _, c := range All {
		if norm == c.Key || norm == normalize(c.Name) {
			return c, true
		}
	}
	// Accept "Limitations / Assumptions / Bias" and similar spellings: every
	// word of the label must belong to exactly one category.
	words := contentWords(norm)
	if len(words) == 0 {
		return Category{}, false
	}
	found := -1
	for i, c := range All {
		if !vocabularyHas(c, words) {
			continue
		}
		if found >= 0 {
			return Category{}, false
		}
		found = i
	}
	if found < 0 {
		return Category{}, false
	}
	return All[found], true
}

var connectives = map[string]bool{"a": true, "an": true, "and": true, "of": true, "or": true, "the": true}

func contentWords(norm string) []string {
	var out []string
	for _, w := range strings.Split(norm, "_") {
		if w != "" && !connectives[w] {
			out = append(out, w)
		}
	}
	return out
}

func vocabularyHas(c Category, words []string) bool {
	vocab := make(map[string]bool)
	for _, w := range contentWords(c.Key + "_" + normalize(c.Name)) {
		vocab[w] = true
	}
	for _, w := range words {
		if !vocab[w] {
			return false
		}
	}
	return true
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var sb strings.Builder
	underscore := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && sb.Len() > 0 {
			sb.WriteByte('_')
			underscore = true
		}
	}
	return strings.TrimSuffix(sb.String(), "_")
}

// Classify attributes a question to the category whose keywords it matches
// most often. Ties go to the earlier category.
func Classify(question string) (Category, bool) {
	q := strings.ToLower(question)
	if strings.TrimSpace(q) == "" {
		return Category{}, false
	}

	best, bestScore := -1, 0
	for i, c := range All {
		score := 0
		for _, kw := range c.keywords {
			if strings.Contains(q, kw) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return Category{}, false
	}
	return All[best], true
}

// Coverage is the set of categories already asked in a conversation.
type Coverage struct {
	keys map[string]bool
}

// NewCoverage returns an empty coverage set.
func NewCoverage() *Coverage {
	return &Coverage{keys: make(map[string]bool)}
}

// Add marks the category with key as covered. Unknown keys are ignored.
func (c *Coverage) Add(key string) {
	if cat, ok := ByKey(key); ok {
		c.keys[cat.Key] = true
	}
}

// Has reports whether key is covered.
func (c *Coverage) Has(key string) bool {
	return c.keys[key]
}

// Len returns the number of covered categories.
func (c *Coverage) Len() int {
	return len(c.keys)
}

// Complete reports whether every category is covered.
func (c *Coverage) Complete() bool {
	return len(c.keys) == len(All)
}

// Covered returns covered categories in table order.
func (c *Coverage) Covered() []Category {
	var out []Category
	for _, cat := range All {
		if c.keys[cat.Key] {
			out = append(out, cat)
		}
	}
	return out
}

// Remaining returns uncovered categories in table order.
func (c *Coverage) Remaining() []Category {
	var out []Category
	for _, cat := range All {
		if !c.keys[cat.Key] {
			out = append(out, cat)
		}
	}
	return out
}

// Keys returns covered category keys in table order.
func (c *Coverage) Keys() []string {
	var out []string
	for _, cat := range c.Covered() {
		out = append(out, cat.Key)
	}
	return out
}

// Names returns the display names of cats.
func Names(cats []Category) []string {
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = c.Name
	}
	return out
}
