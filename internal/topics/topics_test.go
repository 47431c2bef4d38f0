package topics

import "testing"

func TestTenCategories(t *testing.T) {
	if len(All) != 10 {
		t.Fatalf("expected 10 categories, got %d", len(All))
	}
	seen := map[string]bool{}
	for _, c := range All {
		if seen[c.Key] {
			t.Errorf("duplicate key %q", c.Key)
		}
		seen[c.Key] = true
		if c.Example == "" || len(c.keywords) == 0 {
			t.Errorf("category %q is missing example or keywords", c.Key)
		}
	}
}

func TestByKey(t *testing.T) {
	cases := map[string]string{
		"study_design":                      "study_design",
		"Study Design":                      "study_design",
		"  statistical methods ":            "statistical_methods",
		"4":                                 "limitations",
		"10":                                "specific_interpretation",
		"Limitations / Assumptions / Bias":  "limitations",
		"Limitations, Assumptions and Bias": "limitations",
		"Communication Improvement":         "communication_improvement",
		"communication":                     "communication",
		"Assumptions and Bias":              "limitations",
		"design":                            "study_design",
	}
	for in, want := range cases {
		got, ok := ByKey(in)
		if !ok || got.Key != want {
			t.Errorf("ByKey(%q) = %q, %v; want %q", in, got.Key, ok, want)
		}
	}

	for _, in := range []string{"", "0", "11", "astrology", "s", "com", "stat", "findings", "of the",
		"Interpretation of a specific result", "statistical methods and astrology"} {
		if _, ok := ByKey(in); ok {
			t.Errorf("ByKey(%q) should not resolve", in)
		}
	}
}

func TestClassify(t *testing.T) {
	cases := map[string]string{
		"What statistical methods are used in this study?":                                "statistical_methods",
		"How were participants selected or assigned to the treatment arms?":               "study_design",
		"What are the limitations of this analysis, and could confounding bias the estimate?": "limitations",
		"Can you give a 1-2 sentence summary of the main findings?":                       "summary",
		"Choose one result, such as the hazard ratio. What does it mean?":                 "specific_interpretation",
		"How would you explain the method to someone without a statistical background?":  "communication",
		"What additional analyses might yield more insight?":                              "alternative_analyses",
	}
	for q, want := range cases {
		got, ok := Classify(q)
		if !ok || got.Key != want {
			t.Errorf("Classify(%q) = %q, %v; want %q", q, got.Key, ok, want)
		}
	}

	if _, ok := Classify("Welcome! Let's begin."); ok {
		t.Error("expected no category for a greeting")
	}
}

func TestCoverage(t *testing.T) {
	c := NewCoverage()
	c.Add("study_design")
	c.Add("Study Design")
	c.Add("nonsense")
	c.Add("1")

	if c.Len() != 2 {
		t.Errorf("expected 2 covered, got %d", c.Len())
	}
	if !c.Has("statistical_methods") || !c.Has("study_design") {
		t.Errorf("unexpected coverage %v", c.Keys())
	}
	if len(c.Remaining()) != 8 {
		t.Errorf("expected 8 remaining, got %d", len(c.Remaining()))
	}
	if c.Complete() {
		t.Error("should not be complete")
	}

	for _, cat := range All {
		c.Add(cat.Key)
	}
	if !c.Complete() || len(c.Remaining()) != 0 {
		t.Error("expected complete coverage")
	}
	if got := Names(c.Covered()[:1]); got[0] != "Statistical Methods" {
		t.Errorf("unexpected names %v", got)
	}
}
