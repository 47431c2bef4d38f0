package transcript

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/TobiSchelling/statstutor/internal/model"
	"github.com/TobiSchelling/statstutor/internal/reply"
)

//go:embed templates/transcript.html
var templateFS embed.FS

var (
	md   = goldmark.New()
	page = template.Must(template.New("transcript.html").ParseFS(templateFS, "templates/transcript.html"))
)

const timestampLayout = "2006-01-02 15:04 UTC"

// RenderMarkdown renders t as a Markdown document. Structured tutor replies
// are split into their reflection, advice and follow-up parts.
func RenderMarkdown(t *Transcript) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", t.ArticleTitle)
	fmt.Fprintf(&sb, "Conversation `%s`\n", t.ConversationID)

	for _, e := range t.Entries {
		sb.WriteString("\n---\n\n")
		ts := e.Timestamp.UTC().Format(timestampLayout)
		switch e.Role {
		case model.RoleStudent:
			fmt.Fprintf(&sb, "### Student (%s)\n\n", ts)
			sb.WriteString(quote(e.Content))
		default:
			fmt.Fprintf(&sb, "### Tutor (%s)\n\n", ts)
			sb.WriteString(tutorMarkdown(e.Content))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func tutorMarkdown(content string) string {
	if !reply.IsStructured(content) {
		return strings.TrimSpace(content) + "\n"
	}
	r, _ := reply.Decode(content)

	var sb strings.Builder
	if r.Reflection != "" {
		fmt.Fprintf(&sb, "**Reflection:** %s\n\n", strings.TrimSpace(r.Reflection))
	}
	if r.Clarification != "" {
		fmt.Fprintf(&sb, "**Advice:** %s\n\n", strings.TrimSpace(r.Clarification))
	}
	if q := strings.TrimSpace(r.Followup()); q != "" {
		fmt.Fprintf(&sb, "**Follow-up question:** %s\n\n", q)
	}
	if r.Final() {
		switch r.CompletionReason {
		case reply.ReasonAllTopicsCovered:
			sb.WriteString("_Session complete: every analysis category was covered._\n")
		case reply.ReasonUserRequested:
			sb.WriteString("_Session ended at the student's request._\n")
		default:
			sb.WriteString("_Session complete._\n")
		}
	}
	return sb.String()
}

func quote(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i, l := range lines {
		lines[i] = "> " + l
	}
	return strings.Join(lines, "\n") + "\n"
}

// RenderHTML renders t as a standalone HTML page.
func RenderHTML(t *Transcript) ([]byte, error) {
	var body bytes.Buffer
	if err := md.Convert([]byte(RenderMarkdown(t)), &body); err != nil {
		return nil, fmt.Errorf("converting transcript markdown: %w", err)
	}

	var out bytes.Buffer
	err := page.Execute(&out, map[string]any{
		"Title": t.ArticleTitle,
		"Body":  template.HTML(body.String()), //nolint: gosec
	})
	if err != nil {
		return nil, fmt.Errorf("rendering transcript page: %w", err)
	}
	return out.Bytes(), nil
}
