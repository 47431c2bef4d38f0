package tutor

import (
	"context"
	"fmt"
	"strings"

	"github.com/TobiSchelling/statstutor/internal/model"
	"github.com/TobiSchelling/statstutor/internal/reply"
	"github.com/TobiSchelling/statstutor/internal/retry"
	"github.com/TobiSchelling/statstutor/internal/topics"
)

// State is the lifecycle position of a conversation.
type State string

const (
	StateNotStarted State = "not_started"
	StateActive     State = "active"
	StateCompleted  State = "completed"
)

// Progress summarizes a conversation for display.
type Progress struct {
	ConversationID string   `json:"conversation_id"`
	State          State    `json:"state"`
	Covered        []string `json:"covered"`
	Remaining      []string `json:"remaining"`
	Turns          int      `json:"turns"`
}

// Progress reports the state and category coverage of a conversation.
func (s *Service) Progress(ctx context.Context, conversationID string) (*Progress, error) {
	conv, err := retry.Do(ctx, s.opts.ReadPolicy, func() (*model.Conversation, error) {
		return s.store.GetConversation(ctx, conversationID)
	})
	if err != nil {
		return nil, fmt.Errorf("loading conversation: %w", err)
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}

	turns, err := s.listTurns(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	cov := DeriveCoverage(turns)

	remaining := make([]string, 0)
	for _, c := range cov.Remaining() {
		remaining = append(remaining, c.Key)
	}
	covered := cov.Keys()
	if covered == nil {
		covered = []string{}
	}
	return &Progress{
		ConversationID: conversationID,
		State:          stateOf(turns),
		Covered:        covered,
		Remaining:      remaining,
		Turns:          len(turns),
	}, nil
}

// DeriveCoverage replays a turn log and returns the categories already
// asked. Every AI turn that asks a question covers exactly one category,
// so replaying the same log always yields the same set.
func DeriveCoverage(turns []model.Turn) *topics.Coverage {
	cov := topics.NewCoverage()
	for _, t := range turns {
		if t.Role != model.RoleAI {
			continue
		}
		declared, question := "", t.Content
		if reply.IsStructured(t.Content) {
			r, _ := reply.Decode(t.Content)
			declared, question = r.Category, r.Followup()
		}
		if strings.TrimSpace(question) == "" {
			continue
		}
		if cat, ok := attribute(cov, declared, question); ok {
			cov.Add(cat.Key)
		}
	}
	return cov
}

// attribute picks the category a question covers: the declared one, else
// the classified one, else the first still uncovered. A category that was
// already asked is never counted twice.
func attribute(cov *topics.Coverage, declared, question string) (topics.Category, bool) {
	if cat, ok := topics.ByKey(declared); ok && !cov.Has(cat.Key) {
		return cat, true
	}
	if cat, ok := topics.Classify(question); ok && !cov.Has(cat.Key) {
		return cat, true
	}
	if rem := cov.Remaining(); len(rem) > 0 {
		return rem[0], true
	}
	return topics.Category{}, false
}

// stateOf derives the lifecycle state from the log. A conversation is
// completed once its latest AI turn has no follow-up question.
func stateOf(turns []model.Turn) State {
	if len(turns) == 0 {
		return StateNotStarted
	}
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role != model.RoleAI {
			continue
		}
		if !reply.IsStructured(turns[i].Content) {
			return StateActive
		}
		r, _ := reply.Decode(turns[i].Content)
		if r.Final() {
			return StateCompleted
		}
		return StateActive
	}
	return StateActive
}

var stopWords = map[string]bool{
	"done":     true,
	"finished": true,
	"end":      true,
	"stop":     true,
	"quit":     true,
}

var stopPhrases = []string{
	"that's all",
	"that is all",
	"i'm done",
	"i am done",
	"i'm finished",
	"i am finished",
	"let's stop",
	"let's end",
	"end the session",
	"stop the session",
	"no more questions",
}

// IsStopRequest reports whether a student answer asks to end the session.
// A bare stop word counts only when it is the whole answer, so "we are done
// with randomization" is not a stop request.
func IsStopRequest(answer string) bool {
	a := strings.ToLower(strings.TrimSpace(answer))
	a = strings.ReplaceAll(a, "’", "'")
	a = strings.Trim(a, " .!?,;:\"")
	if a == "" {
		return false
	}
	if stopWords[a] {
		return true
	}
	for _, p := range stopPhrases {
		if strings.Contains(a, p) {
			return true
		}
	}
	return false
}
