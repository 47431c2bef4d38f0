package reply

import (
	"errors"
	"strings"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	replies := []Reply{
		{Reflection: "You named the t-test.", Clarification: "  Consider the paired design. ", FollowupQuestion: Question("Why paired?")},
		{Reflection: "Thanks for the summary.", Clarification: "", FollowupQuestion: nil, CompletionReason: ReasonUserRequested},
		{Reflection: "", Clarification: "", FollowupQuestion: Question("")},
		{Reflection: "Quotes \"and\" unicode é", Clarification: "line\nbreak", FollowupQuestion: Question("Next?"), Category: "study_design"},
	}
	for i, want := range replies {
		got, err := Decode(Encode(want))
		if err != nil {
			t.Errorf("case %d: unexpected decode error %v", i, err)
		}
		if got.Reflection != want.Reflection || got.Clarification != want.Clarification {
			t.Errorf("case %d: text fields changed: %+v", i, got)
		}
		if (got.FollowupQuestion == nil) != (want.FollowupQuestion == nil) {
			t.Errorf("case %d: null follow-up not preserved", i)
		}
		if got.Followup() != want.Followup() {
			t.Errorf("case %d: follow-up %q, want %q", i, got.Followup(), want.Followup())
		}
		if got.Category != want.Category || got.CompletionReason != want.CompletionReason {
			t.Errorf("case %d: metadata changed: %+v", i, got)
		}
	}
}

func TestEncodeKeepsNullFollowup(t *testing.T) {
	s := Encode(Reply{Reflection: "done"})
	if !strings.Contains(s, `"followup_question":null`) {
		t.Errorf("expected explicit null follow-up, got %s", s)
	}
	if strings.Contains(s, "category") || strings.Contains(s, "completion_reason") {
		t.Errorf("expected empty metadata to be omitted, got %s", s)
	}
}

func TestDecodeMalformedFallsBack(t *testing.T) {
	raw := "Reflection: good start. Follow-up: what about bias?"
	r, err := Decode(raw)

	if r.Reflection != raw || r.Clarification != "" {
		t.Errorf("unexpected fallback %+v", r)
	}
	if r.FollowupQuestion == nil || *r.FollowupQuestion != "" {
		t.Errorf("expected empty (non-null) follow-up, got %v", r.FollowupQuestion)
	}
	if !errors.Is(err, ErrMalformedReply) {
		t.Errorf("expected ErrMalformedReply, got %v", err)
	}
	var de *DecodeError
	if !errors.As(err, &de) || de.Raw != raw {
		t.Errorf("expected DecodeError carrying raw text, got %v", err)
	}
}

func TestDecodeUnrelatedObjectFallsBack(t *testing.T) {
	raw := `{"answer": 42}`
	r, err := Decode(raw)
	if r.Reflection != raw || !errors.Is(err, ErrMalformedReply) {
		t.Errorf("expected malformed fallback, got %+v, %v", r, err)
	}
}

func TestDecodeMissingKeys(t *testing.T) {
	r, err := Decode(`{"reflection": "Nice."}`)
	if r.Reflection != "Nice." || r.Clarification != "" || r.Followup() != "" || r.FollowupQuestion == nil {
		t.Errorf("expected missing keys normalized to empty strings, got %+v", r)
	}
	if !errors.Is(err, ErrIncompleteReply) {
		t.Fatalf("expected ErrIncompleteReply, got %v", err)
	}
	var de *DecodeError
	errors.As(err, &de)
	if len(de.Missing) != 2 {
		t.Errorf("expected 2 missing fields, got %v", de.Missing)
	}
}

func TestDecodeAliasesAndFences(t *testing.T) {
	raw := "```json\n{\"reflection\": \"r\", \"advice\": \"a\", \"follow_up_question\": \"q?\", \"category\": \"Study Design\"}\n```"
	r, err := Decode(raw)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if r.Clarification != "a" || r.Followup() != "q?" || r.Category != "Study Design" {
		t.Errorf("unexpected reply %+v", r)
	}
}

func TestDecodeUnclosedAndInlineFences(t *testing.T) {
	for _, raw := range []string{
		"```json\n{\"reflection\":\"R\",\"clarification\":\"C\",\"followup_question\":null}",
		"```{\"reflection\":\"R\",\"clarification\":\"C\",\"followup_question\":null}```",
	} {
		r, err := Decode(raw)
		if err != nil {
			t.Errorf("%q: unexpected error %v", raw, err)
			continue
		}
		if r.Reflection != "R" || r.Clarification != "C" {
			t.Errorf("%q: unexpected reply %+v", raw, r)
		}
		if !r.Final() {
			t.Errorf("%q: expected null follow-up to be final", raw)
		}
		if !IsStructured(raw) {
			t.Errorf("%q: expected structured content", raw)
		}
	}
}

func TestDecodeWrongTypes(t *testing.T) {
	r, err := Decode(`{"reflection": 5, "clarification": "c", "followup_question": ["a"]}`)
	if r.Reflection != "" || r.Followup() != "" {
		t.Errorf("expected wrong-typed fields to become empty, got %+v", r)
	}
	if !errors.Is(err, ErrIncompleteReply) {
		t.Errorf("expected ErrIncompleteReply, got %v", err)
	}
}

func TestDecodeExplicitNullFollowup(t *testing.T) {
	r, err := Decode(`{"reflection": "r", "clarification": "c", "followup_question": null}`)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if !r.Final() {
		t.Error("expected null follow-up to be final")
	}
}

func TestFlatten(t *testing.T) {
	stored := Encode(Reply{Reflection: "You identified the cohort.", Clarification: "Note the follow-up period.", FollowupQuestion: Question("What bias could arise?")})
	got := Flatten(stored)
	want := "Reflection: You identified the cohort.\n\nAdvice: Note the follow-up period.\n\nFollow-up question: What bias could arise?"
	if got != want {
		t.Errorf("Flatten =\n%s\nwant\n%s", got, want)
	}

	plain := "Welcome! What statistical methods are used in this study?"
	if Flatten(plain) != plain {
		t.Errorf("plain text should pass through unchanged")
	}

	final := Flatten(Encode(Reply{Reflection: "Great work."}))
	if final != "Reflection: Great work." {
		t.Errorf("unexpected final flatten %q", final)
	}
}
