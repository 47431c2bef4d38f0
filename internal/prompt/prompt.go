// Package prompt assembles the message sequences sent to the model for the
// article analysis and general chat modes.
package prompt

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/TobiSchelling/statstutor/internal/llm"
	"github.com/TobiSchelling/statstutor/internal/model"
	"github.com/TobiSchelling/statstutor/internal/reply"
	"github.com/TobiSchelling/statstutor/internal/topics"
)

// DefaultArticleLimit is the article character budget when none is configured.
const DefaultArticleLimit = 8000

const chatSystemPrompt = `You are a helpful biostatistics tutor.
You explain probability, inference, regression, ANOVA, sampling distributions
and general statistical concepts in clear, intuitive language.
When course materials are provided, ground your explanation in them.`

// Composer builds prompts. The zero value is not usable; use New.
type Composer struct {
	articleLimit int
	system       string
}

// New creates a composer that truncates articles to articleLimit characters.
func New(articleLimit int) *Composer {
	if articleLimit <= 0 {
		articleLimit = DefaultArticleLimit
	}
	return &Composer{articleLimit: articleLimit, system: analysisSystemPrompt()}
}

// SystemPrompt returns the fixed analysis instruction block.
func (c *Composer) SystemPrompt() string {
	return c.system
}

// Start returns the messages that ask for a welcome and the first question.
func (c *Composer) Start(articleText string) []llm.Message {
	user := fmt.Sprintf(`Here is the extracted article text:

%s

Begin the guided question cycle.

Return ONLY plain text:
1. A short welcome message (one sentence).
2. The FIRST analysis question, drawn from one of the ten categories.`, Truncate(articleText, c.articleLimit))

	return []llm.Message{
		{Role: llm.RoleSystem, Content: c.system},
		{Role: llm.RoleUser, Content: user},
	}
}

// ContinueInput is everything a continuation prompt is built from.
type ContinueInput struct {
	Answer      string
	History     []model.Turn // turns before Answer, in log order
	ArticleText string
	Context     string // retrieved course material, already formatted
	Coverage    *topics.Coverage
}

// Continue returns the messages for one continuation turn: instructions,
// article and course context, the replayed history and the new answer with
// the JSON output contract.
func (c *Composer) Continue(in ContinueInput) []llm.Message {
	ctxText := in.Context
	if strings.TrimSpace(ctxText) == "" {
		ctxText = "No relevant course materials retrieved."
	}

	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: c.system},
		{Role: llm.RoleSystem, Content: "Article text:\n\n" + Truncate(in.ArticleText, c.articleLimit)},
		{Role: llm.RoleSystem, Content: "Relevant course materials:\n\n" + ctxText},
	}
	if in.Coverage != nil {
		msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: coverageNote(in.Coverage)})
	}

	msgs = append(msgs, History(in.History)...)
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: continueInstruction(in.Answer)})
	return msgs
}

// Chat returns the messages for a single general question.
func (c *Composer) Chat(message, courseContext string) []llm.Message {
	msgs := []llm.Message{{Role: llm.RoleSystem, Content: chatSystemPrompt}}
	if strings.TrimSpace(courseContext) != "" {
		msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: "Relevant course materials:\n" + courseContext})
	}
	return append(msgs, llm.Message{Role: llm.RoleUser, Content: message})
}

// History maps stored turns to chat roles. AI turns holding structured
// replies are flattened to plain text.
func History(turns []model.Turn) []llm.Message {
	out := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case model.RoleAI:
			out = append(out, llm.Message{Role: llm.RoleAssistant, Content: reply.Flatten(t.Content)})
		case model.RoleStudent:
			out = append(out, llm.Message{Role: llm.RoleUser, Content: t.Content})
		}
	}
	return out
}

// Truncate cuts s to at most n characters without splitting a rune.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func continueInstruction(answer string) string {
	return fmt.Sprintf(`The student answered:

"""%s"""

Respond in STRICT JSON with exactly these keys:
- "reflection": summarize the student's reasoning and highlight what is correct or promising.
- "clarification": advice that corrects misunderstandings or refines their interpretation.
- "followup_question": ONE next question that deepens the analysis, or null if the session is over.
- "category": the name of the category your follow-up question belongs to.

Your entire reply must be a single valid JSON object with no text outside it.`, answer)
}

func coverageNote(cov *topics.Coverage) string {
	covered := topics.Names(cov.Covered())
	remaining := topics.Names(cov.Remaining())

	var sb strings.Builder
	sb.WriteString("Category progress for this conversation.\n")
	if len(covered) == 0 {
		sb.WriteString("Already asked: none.\n")
	} else {
		sb.WriteString("Already asked (do not ask again): " + strings.Join(covered, "; ") + ".\n")
	}
	if len(remaining) == 0 {
		sb.WriteString("All categories have been asked. Do not ask another question; set followup_question to null.")
	} else {
		sb.WriteString("Still to ask: " + strings.Join(remaining, "; ") + ".")
	}
	return sb.String()
}

func analysisSystemPrompt() string {
	var cats strings.Builder
	for i, c := range topics.All {
		fmt.Fprintf(&cats, "%d. %s. Example: %q\n", i+1, c.Name, c.Example)
	}

	return `You are an academic biostatistics tutor guiding a student through the analysis of a research article.
You teach through a guided-question cycle built on common biostatistics learning goals: identifying methods,
understanding design, interpreting results, recognizing assumptions and limitations, connecting the article to
course concepts, communicating clearly, considering alternative analyses and interpreting specific outputs.

You do not give direct answers. You ask one carefully chosen question at a time, based on the article and on the
student's previous response.

QUESTION CATEGORIES
Over the conversation you must ask about each of these ten categories exactly once, in whatever order suits the
article:
` + cats.String() + `
RULES
1. Never answer your own questions.
2. Never invent statistical results or article details. Use only what the article says.
3. Treat any non-empty student answer as a real contribution. Never say the student did not respond.
4. Ask exactly one question per turn. No multi-part questions.
5. Keep track of which categories you have asked. Do not repeat a category.
6. When every category has been asked and answered, or the student asks to stop, end the session: give a brief
   closing reflection and no further question.
7. Use a warm, encouraging, Socratic tone, and keep questions specific to this article.

START
For the first message output only a one-sentence welcome followed by the first guided question, as plain text.
Do not reflect, correct or give advice.

CONTINUATION
For every later turn output a JSON object with a reflection (2 to 4 sentences), a clarification with advice or
suggestions (1 to 3 sentences) and one follow-up question.`
}
