// Package validate decides whether extracted text looks like an empirical
// research article worth a guided analysis.
//
// It is a keyword and length heuristic, not a classifier: some commentaries
// with numbers slip through and some short empirical reports are rejected.
// Editorial markers are matched anywhere in the text, so a research article
// that uses a word like "perspective" in passing is rejected too.
package validate

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/TobiSchelling/statstutor/internal/config"
)

// Reason explains a rejection.
type Reason string

const (
	ReasonExtractionFailure Reason = "extraction failure"
	ReasonNonEmpirical      Reason = "non-empirical content"
	ReasonNoEvidence        Reason = "no empirical evidence"
)

// Result is the verdict for one text.
type Result struct {
	Accepted bool
	Reason   Reason
}

// Message returns guidance shown to the student for a rejection.
func (r Result) Message() string {
	switch r.Reason {
	case ReasonExtractionFailure:
		return "We could not extract readable text from this PDF. It may be scanned, image-only or corrupted. Try another copy of the article, or find one through the resources below."
	case ReasonNonEmpirical:
		return "This looks like an editorial, commentary or opinion piece. Article analysis works best on empirical research that reports data and statistical results. Try one of the resources below to find a research article."
	case ReasonNoEvidence:
		return "This document does not appear to report statistical results. Please upload an empirical research article, or find one through the resources below."
	default:
		return ""
	}
}

var editorialMarkers = regexp.MustCompile(`(?i)\b(editorial|commentary|opinion|perspective)s?\b`)

// Signals are statistical, study-design or results-reporting phrases. Section
// headings like "methods" and "results" appear in almost any document and
// are not counted.
var empiricalSignals = []string{
	"regression", "p-value", "p value", "p <", "p<", "p =", "confidence interval", "95% ci",
	"odds ratio", "hazard ratio", "relative risk", "risk ratio",
	"randomized", "randomised", "controlled trial", "cohort", "case-control", "cross-sectional",
	"longitudinal", "prospective", "retrospective", "meta-analysis",
	"anova", "chi-square", "chi-squared", "t-test", "wilcoxon", "mann-whitney", "kaplan-meier",
	"cox proportional", "logistic", "linear model", "mixed model", "correlation",
	"standard deviation", "standard error", "median", "interquartile",
	"sample size", "statistically significant", "significance level", "statistical analysis",
	"were randomly assigned", "were enrolled", "primary outcome", "effect size",
}

// Validator applies the length thresholds from configuration.
type Validator struct {
	minChars             int
	substantialChars     int
	verySubstantialChars int
}

// New creates a validator from configuration thresholds.
func New(cfg config.Validation) *Validator {
	return &Validator{
		minChars:             cfg.MinChars,
		substantialChars:     cfg.SubstantialChars,
		verySubstantialChars: cfg.VerySubstantialChars,
	}
}

// Validate classifies rawText. Editorial markers reject regardless of
// length or evidence.
func (v *Validator) Validate(rawText string) Result {
	text := strings.TrimSpace(rawText)
	n := utf8.RuneCountInString(text)

	if n == 0 || n < v.minChars {
		return Result{Reason: ReasonExtractionFailure}
	}
	if editorialMarkers.MatchString(text) {
		return Result{Reason: ReasonNonEmpirical}
	}

	digit := hasDigit(text)
	switch {
	case digit && hasEmpiricalSignal(text):
		return Result{Accepted: true}
	case digit && n > v.substantialChars:
		return Result{Accepted: true}
	case n > v.verySubstantialChars:
		return Result{Accepted: true}
	}
	return Result{Reason: ReasonNoEvidence}
}

func hasDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}

func hasEmpiricalSignal(s string) bool {
	lower := strings.ToLower(s)
	for _, term := range empiricalSignals {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}
