package cli

import (
	"context"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	promptTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	promptInputStyle = lipgloss.NewStyle().Foreground(colorWhite)
	promptHintStyle  = lipgloss.NewStyle().Foreground(colorDim)
)

// =============================================================================
// PromptModel - Interactive artifact and verbosity selection
// =============================================================================

type promptStep int

const (
	stepPath promptStep = iota
	stepVerbose
)

// PromptModel asks for the artifact path, then for a y/n verbose choice.
type PromptModel struct {
	Step      promptStep
	Path      string
	Verbose   bool
	Done      bool
	Cancelled bool
}

func (m PromptModel) Init() tea.Cmd {
	return nil
}

func (m PromptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		m.Cancelled = true
		return m, tea.Quit
	}

	if m.Step == stepPath {
		switch key.Type {
		case tea.KeyEnter:
			if strings.TrimSpace(m.Path) != "" {
				m.Path = strings.TrimSpace(m.Path)
				m.Step = stepVerbose
			}
		case tea.KeyBackspace:
			if r := []rune(m.Path); len(r) > 0 {
				m.Path = string(r[:len(r)-1])
			}
		case tea.KeySpace:
			m.Path += " "
		case tea.KeyRunes:
			m.Path += string(key.Runes)
		}
		return m, nil
	}

	// Any answer other than y counts as no.
	m.Verbose = key.Type == tea.KeyRunes && strings.EqualFold(string(key.Runes), "y")
	m.Done = true
	return m, tea.Quit
}

func (m PromptModel) View() string {
	var b strings.Builder
	b.WriteString(promptTitleStyle.Render("Please specify the path of the artifact that should be scanned:"))
	b.WriteString("\n")
	if m.Step == stepPath {
		b.WriteString("> " + promptInputStyle.Render(m.Path) + "█\n")
		b.WriteString(promptHintStyle.Render("⏎ confirm  esc quit"))
		b.WriteString("\n")
		return b.String()
	}
	b.WriteString("> " + promptInputStyle.Render(m.Path) + "\n")
	b.WriteString("Use verbose mode (y/n)? ")
	if m.Done {
		if m.Verbose {
			b.WriteString("y")
		} else {
			b.WriteString("n")
		}
		b.WriteString("\n\n")
	}
	return b.String()
}

// promptAnswer is what the user chose.
type promptAnswer struct {
	Path    string
	Verbose bool
}

// runPrompt runs the interactive prompt on in/out. Quitting without an
// answer returns context.Canceled.
func runPrompt(ctx context.Context, in io.Reader, out io.Writer) (promptAnswer, error) {
	p := tea.NewProgram(PromptModel{}, tea.WithContext(ctx), tea.WithInput(in), tea.WithOutput(out))
	final, err := p.Run()
	if err != nil {
		if ctx.Err() != nil {
			return promptAnswer{}, ctx.Err()
		}
		return promptAnswer{}, err
	}
	m, ok := final.(PromptModel)
	if !ok || m.Cancelled || !m.Done {
		return promptAnswer{}, context.Canceled
	}
	return promptAnswer{Path: m.Path, Verbose: m.Verbose}, nil
}
