// Package reply implements the structured tutor reply: decoding free-form
// model output into it, serializing it into AI turns and flattening stored
// turns back into plain text.
package reply

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/TobiSchelling/statstutor/internal/llm"
)

// Completion reasons.
const (
	ReasonUserRequested    = "user_requested"
	ReasonAllTopicsCovered = "all_topics_covered"
)

// Reply is one continuation turn from the tutor. A nil FollowupQuestion
// ends the conversation.
type Reply struct {
	Reflection       string  `json:"reflection"`
	Clarification    string  `json:"clarification"`
	FollowupQuestion *string `json:"followup_question"`
	Category         string  `json:"category,omitempty"`
	CompletionReason string  `json:"completion_reason,omitempty"`
}

// Final reports whether the reply ends the conversation.
func (r Reply) Final() bool {
	return r.FollowupQuestion == nil
}

// Followup returns the follow-up question, or "" when there is none.
func (r Reply) Followup() string {
	if r.FollowupQuestion == nil {
		return ""
	}
	return *r.FollowupQuestion
}

// Question returns a pointer to q for use as FollowupQuestion.
func Question(q string) *string {
	return &q
}

var (
	// ErrMalformedReply means the output was not a JSON object at all.
	ErrMalformedReply = errors.New("model reply is not a JSON object")
	// ErrIncompleteReply means required keys were missing or had the wrong type.
	ErrIncompleteReply = errors.New("model reply is missing required fields")
)

// DecodeError describes why model output did not match the reply contract.
// The accompanying Reply is still usable.
type DecodeError struct {
	Err     error
	Missing []string
	Raw     string
}

func (e *DecodeError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("%v: %s", e.Err, strings.Join(e.Missing, ", "))
	}
	return e.Err.Error()
}

func (e *DecodeError) Unwrap() error { return e.Err }

var (
	clarificationKeys = []string{"clarification", "advice", "suggestion", "advice_suggestion"}
	followupKeys      = []string{"followup_question", "follow_up_question", "followup", "follow_up", "question"}
)

// Decode coerces model output into a Reply. It never fails to produce a
// reply: output that is not a JSON object becomes
// {reflection: raw, clarification: "", followup_question: ""}, and missing
// keys become "". A non-nil *DecodeError reports what had to be repaired.
func Decode(raw string) (Reply, error) {
	obj := llm.ParseJSONResponse(raw)
	if obj == nil || !hasReplyKeys(obj) {
		return Reply{Reflection: raw, FollowupQuestion: Question("")},
			&DecodeError{Err: ErrMalformedReply, Raw: raw}
	}

	var missing []string
	var r Reply

	if s, ok := stringField(obj, "reflection"); ok {
		r.Reflection = s
	} else {
		missing = append(missing, "reflection")
	}

	if s, ok := firstStringField(obj, clarificationKeys); ok {
		r.Clarification = s
	} else {
		missing = append(missing, "clarification")
	}

	if v, key, present := firstPresent(obj, followupKeys); present {
		switch q := v.(type) {
		case nil:
			r.FollowupQuestion = nil
		case string:
			r.FollowupQuestion = Question(q)
		default:
			r.FollowupQuestion = Question("")
			missing = append(missing, key)
		}
	} else {
		r.FollowupQuestion = Question("")
		missing = append(missing, "followup_question")
	}

	if s, ok := stringField(obj, "category"); ok {
		r.Category = s
	}
	if s, ok := stringField(obj, "completion_reason"); ok {
		r.CompletionReason = s
	}

	if len(missing) > 0 {
		return r, &DecodeError{Err: ErrIncompleteReply, Missing: missing, Raw: raw}
	}
	return r, nil
}

// Encode serializes r into the persisted AI turn form. followup_question is
// always present and is null for a final reply.
func Encode(r Reply) string {
	// Reply holds only strings, so Marshal cannot fail.
	data, _ := json.Marshal(r)
	return string(data)
}

// IsStructured reports whether stored content is a serialized reply rather
// than plain text such as the opening message.
func IsStructured(content string) bool {
	obj := llm.ParseJSONResponse(content)
	return obj != nil && hasReplyKeys(obj)
}

func hasReplyKeys(obj map[string]any) bool {
	if _, ok := obj["reflection"]; ok {
		return true
	}
	if _, _, ok := firstPresent(obj, clarificationKeys); ok {
		return true
	}
	_, _, ok := firstPresent(obj, followupKeys)
	return ok
}

// Flatten renders stored AI turn content as a single readable text block.
// Plain-text content is returned unchanged.
func Flatten(content string) string {
	if !IsStructured(content) {
		return content
	}
	r, _ := Decode(content)

	var parts []string
	if r.Reflection != "" {
		parts = append(parts, "Reflection: "+r.Reflection)
	}
	if r.Clarification != "" {
		parts = append(parts, "Advice: "+r.Clarification)
	}
	if q := r.Followup(); q != "" {
		parts = append(parts, "Follow-up question: "+q)
	}
	return strings.Join(parts, "\n\n")
}

func stringField(obj map[string]any, key string) (string, bool) {
	v, ok := obj[key]
	if !ok {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return s, true
	case nil:
		return "", true
	default:
		return "", false
	}
}

func firstStringField(obj map[string]any, keys []string) (string, bool) {
	for _, k := range keys {
		if s, ok := stringField(obj, k); ok {
			return s, true
		}
	}
	return "", false
}

func firstPresent(obj map[string]any, keys []string) (any, string, bool) {
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			return v, k, true
		}
	}
	return nil, "", false
}
