// Package tui runs a tutoring session in the terminal.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/TobiSchelling/statstutor/internal/reply"
	"github.com/TobiSchelling/statstutor/internal/tutor"
)

// Tutor is the part of the turn controller a session drives.
type Tutor interface {
	Continue(ctx context.Context, conversationID, answer string) (reply.Reply, error)
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	studentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	labelStyle   = lipgloss.NewStyle().Bold(true)
	noteStyle    = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("114"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

type entry struct {
	student bool
	text    string
}

type replyMsg struct{ reply reply.Reply }

type errMsg struct{ err error }

// Model is the bubbletea model for one conversation.
type Model struct {
	ctx     context.Context
	tutor   Tutor
	id      string
	title   string
	entries []entry
	input   textinput.Model
	waiting bool
	done    bool
	err     string
	width   int
}

// New creates a session model for a started conversation.
func New(ctx context.Context, t Tutor, start *tutor.StartResult) Model {
	in := textinput.New()
	in.Prompt = "> "
	in.Placeholder = "Your answer"
	in.Focus()

	return Model{
		ctx:     ctx,
		tutor:   t,
		id:      start.ConversationID,
		title:   start.Title,
		entries: []entry{{text: start.FirstQuestion}},
		input:   in,
		width:   80,
	}
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = max(msg.Width-4, 10)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			if m.done {
				return m, tea.Quit
			}
			answer := strings.TrimSpace(m.input.Value())
			if m.waiting || answer == "" {
				return m, nil
			}
			m.entries = append(m.entries, entry{student: true, text: answer})
			m.input.Reset()
			m.waiting = true
			m.err = ""
			return m, m.send(answer)
		}
		if m.done {
			return m, nil
		}

	case replyMsg:
		m.waiting = false
		m.entries = append(m.entries, entry{text: formatReply(msg.reply)})
		if msg.reply.Final() {
			m.done = true
			m.input.Blur()
		}
		return m, nil

	case errMsg:
		m.waiting = false
		switch {
		case errors.Is(msg.err, tutor.ErrConversationCompleted):
			m.done = true
			m.input.Blur()
			m.err = "This conversation is already completed."
		case errors.Is(msg.err, tutor.ErrModelUnavailable):
			m.err = "The tutor is temporarily unavailable. Please answer again."
		default:
			m.err = msg.err.Error()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) send(answer string) tea.Cmd {
	return func() tea.Msg {
		r, err := m.tutor.Continue(m.ctx, m.id, answer)
		if err != nil {
			return errMsg{err: err}
		}
		return replyMsg{reply: r}
	}
}

func (m Model) View() string {
	wrap := lipgloss.NewStyle().Width(max(m.width-2, 20))

	lines := []string{titleStyle.Render(m.title), ""}
	for _, e := range m.entries {
		if e.student {
			lines = append(lines, studentStyle.Render(wrap.Render("You: "+e.text)), "")
			continue
		}
		lines = append(lines, wrap.Render(labelStyle.Render("Tutor: ")+e.text), "")
	}

	if m.err != "" {
		lines = append(lines, errorStyle.Render(m.err), "")
	}
	switch {
	case m.done:
		lines = append(lines, helpStyle.Render(fmt.Sprintf("Conversation %s finished. Press enter to exit.", m.id)))
	case m.waiting:
		lines = append(lines, helpStyle.Render("Thinking..."))
	default:
		lines = append(lines, m.input.View(), helpStyle.Render("enter: send | type \"done\" to finish | esc: quit"))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func formatReply(r reply.Reply) string {
	var parts []string
	if s := strings.TrimSpace(r.Reflection); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(r.Clarification); s != "" {
		parts = append(parts, labelStyle.Render("Advice: ")+s)
	}
	if q := strings.TrimSpace(r.Followup()); q != "" {
		parts = append(parts, labelStyle.Render("Next: ")+q)
	}
	if r.Final() {
		switch r.CompletionReason {
		case reply.ReasonAllTopicsCovered:
			parts = append(parts, noteStyle.Render("Every analysis area has been covered. Well done!"))
		case reply.ReasonUserRequested:
			parts = append(parts, noteStyle.Render("Session ended."))
		default:
			parts = append(parts, noteStyle.Render("Session complete."))
		}
	}
	return strings.Join(parts, "\n")
}

// Run blocks until the student quits or the conversation completes.
func Run(ctx context.Context, t Tutor, start *tutor.StartResult) error {
	p := tea.NewProgram(New(ctx, t, start), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
