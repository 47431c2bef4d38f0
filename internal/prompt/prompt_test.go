package prompt

import (
	"strings"
	"testing"

	"github.com/TobiSchelling/statstutor/internal/llm"
	"github.com/TobiSchelling/statstutor/internal/model"
	"github.com/TobiSchelling/statstutor/internal/reply"
	"github.com/TobiSchelling/statstutor/internal/topics"
)

func TestSystemPromptListsAllCategories(t *testing.T) {
	sys := New(0).SystemPrompt()
	for _, c := range topics.All {
		if !strings.Contains(sys, c.Name) {
			t.Errorf("system prompt missing category %q", c.Name)
		}
	}
}

func TestStartTruncatesArticle(t *testing.T) {
	article := strings.Repeat("a", 100) + "TAIL"
	msgs := New(100).Start(article)

	if len(msgs) != 2 || msgs[0].Role != llm.RoleSystem || msgs[1].Role != llm.RoleUser {
		t.Fatalf("unexpected message roles %+v", msgs)
	}
	if strings.Contains(msgs[1].Content, "TAIL") {
		t.Error("expected article to be truncated")
	}
	if !strings.Contains(msgs[1].Content, strings.Repeat("a", 100)) {
		t.Error("expected article prefix to be kept")
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := Truncate("héllo", 2); got != "hé" {
		t.Errorf("Truncate = %q", got)
	}
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("Truncate = %q", got)
	}
	if got := Truncate("abc", 0); got != "abc" {
		t.Errorf("Truncate with no limit = %q", got)
	}
}

func TestContinueReplaysHistory(t *testing.T) {
	history := []model.Turn{
		{Role: model.RoleAI, Content: "Welcome! What statistical methods are used?"},
		{Role: model.RoleStudent, Content: "A Cox model."},
		{Role: model.RoleAI, Content: reply.Encode(reply.Reply{
			Reflection:       "Right, a Cox proportional hazards model.",
			Clarification:    "It models time to event.",
			FollowupQuestion: reply.Question("How were participants selected?"),
		})},
	}
	cov := topics.NewCoverage()
	cov.Add("statistical_methods")

	msgs := New(8000).Continue(ContinueInput{
		Answer:      "They were a random sample.",
		History:     history,
		ArticleText: "Cohort study of 500 adults.",
		Context:     "Week 5: survival analysis.",
		Coverage:    cov,
	})

	// system, article, context, coverage, 3 history, answer
	if len(msgs) != 8 {
		t.Fatalf("expected 8 messages, got %d", len(msgs))
	}
	for i := 0; i < 4; i++ {
		if msgs[i].Role != llm.RoleSystem {
			t.Errorf("message %d: expected system role, got %s", i, msgs[i].Role)
		}
	}
	if !strings.Contains(msgs[1].Content, "Cohort study of 500 adults.") {
		t.Error("article text not injected")
	}
	if !strings.Contains(msgs[2].Content, "survival analysis") {
		t.Error("course context not injected")
	}
	if !strings.Contains(msgs[3].Content, "Statistical Methods") || !strings.Contains(msgs[3].Content, "Study Design") {
		t.Errorf("coverage note incomplete: %s", msgs[3].Content)
	}

	wantRoles := []string{llm.RoleAssistant, llm.RoleUser, llm.RoleAssistant, llm.RoleUser}
	for i, r := range wantRoles {
		if msgs[4+i].Role != r {
			t.Errorf("history message %d: expected role %s, got %s", i, r, msgs[4+i].Role)
		}
	}
	flattened := msgs[6].Content
	if strings.Contains(flattened, "{") || !strings.Contains(flattened, "Follow-up question: How were participants selected?") {
		t.Errorf("structured AI turn not flattened: %q", flattened)
	}
	last := msgs[7].Content
	if !strings.Contains(last, "They were a random sample.") || !strings.Contains(last, `"followup_question"`) {
		t.Errorf("answer or JSON contract missing from final message: %q", last)
	}
}

func TestContinueEmptyContextPlaceholder(t *testing.T) {
	msgs := New(0).Continue(ContinueInput{Answer: "x", ArticleText: "y"})
	if !strings.Contains(msgs[2].Content, "No relevant course materials retrieved.") {
		t.Errorf("expected placeholder, got %q", msgs[2].Content)
	}
}

func TestCoverageNoteWhenComplete(t *testing.T) {
	cov := topics.NewCoverage()
	for _, c := range topics.All {
		cov.Add(c.Key)
	}
	note := coverageNote(cov)
	if !strings.Contains(note, "null") {
		t.Errorf("expected instruction to stop asking, got %q", note)
	}
}

func TestChatMessages(t *testing.T) {
	msgs := New(0).Chat("What is a p-value?", "")
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages without context, got %d", len(msgs))
	}
	msgs = New(0).Chat("What is a p-value?", "Lecture 2: hypothesis tests")
	if len(msgs) != 3 || msgs[2].Content != "What is a p-value?" {
		t.Errorf("unexpected chat messages %+v", msgs)
	}
}
