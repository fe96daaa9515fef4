package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wippyai/seg16"
	"github.com/wippyai/seg16/atom"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	atomStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	bucketStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	commandStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7D56F4")).
			Padding(0, 1)
)

const tablePanelWidth = 36

type interactiveModel struct {
	s       *session
	input   textinput.Model
	history viewport.Model
	lines   []string
	global  bool
	width   int
	height  int
	ready   bool
}

func newInteractiveModel(s *session) *interactiveModel {
	ti := textinput.New()
	ti.Placeholder = "add Foo"
	ti.Prompt = "> "
	ti.CharLimit = 512
	ti.Focus()
	return &interactiveModel{s: s, input: ti}
}

func (m *interactiveModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		w, h := m.historySize()
		if !m.ready {
			m.history = viewport.New(w, h)
			m.ready = true
		} else {
			m.history.Width, m.history.Height = w, h
		}
		m.input.Width = max(w-4, 10)
		m.refresh()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit

		case "tab":
			m.global = !m.global
			return m, nil

		case "enter":
			line := m.input.Value()
			m.input.SetValue("")
			if strings.TrimSpace(line) == "quit" {
				return m, tea.Quit
			}
			m.exec(line)
			return m, nil

		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.history, cmd = m.history.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *interactiveModel) exec(line string) {
	st, ok, err := m.s.Exec(line)
	if !ok {
		return
	}
	entry := commandStyle.Render(st.Command)
	if err != nil {
		entry += "\n  " + errorStyle.Render(fmt.Sprintf("Error: %v", err))
	} else {
		entry += "\n  " + resultStyle.Render(st.Result)
		for _, e := range st.Entries {
			entry += "\n  " + formatEntry(e)
		}
	}
	m.lines = append(m.lines, entry)
	m.refresh()
}

func (m *interactiveModel) refresh() {
	if !m.ready {
		return
	}
	m.history.SetContent(strings.Join(m.lines, "\n"))
	m.history.GotoBottom()
}

func (m *interactiveModel) historySize() (int, int) {
	return max(m.width-tablePanelWidth-4, 20), max(m.height-6, 3)
}

func (m *interactiveModel) View() string {
	if !m.ready {
		return "Starting kernel..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("atomctl"))
	b.WriteString(" ")
	b.WriteString(m.tableTitle())
	b.WriteString("\n\n")

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		m.history.View(),
		panelStyle.Width(tablePanelWidth).Height(m.history.Height).Render(m.tableView()),
	))
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("enter run • tab local/global table • pgup/pgdown scroll • esc quit"))
	return b.String()
}

func (m *interactiveModel) tableSelector() (seg16.Selector, error) {
	if m.global {
		return m.s.k.UserHeap(), nil
	}
	return m.s.k.CurrentDS()
}

func (m *interactiveModel) tableTitle() string {
	sel, err := m.tableSelector()
	if err != nil {
		return errorStyle.Render(err.Error())
	}
	kind := "local"
	if m.global {
		kind = "global"
	}
	return fmt.Sprintf("%s table in segment 0x%04x", kind, uint16(sel))
}

// tableView renders the non-empty buckets of the selected table.
func (m *interactiveModel) tableView() string {
	sel, err := m.tableSelector()
	if err != nil {
		return errorStyle.Render(err.Error())
	}
	n := m.s.k.Buckets(sel)
	if n == 0 {
		return helpStyle.Render("no atom table")
	}
	entries, err := m.s.k.Entries(sel)
	if err != nil {
		return errorStyle.Render(err.Error())
	}

	byBucket := make(map[uint16][]atom.Entry)
	for _, e := range entries {
		byBucket[e.Bucket] = append(byBucket[e.Bucket], e)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d buckets, %d atoms\n", n, len(entries))
	for i := uint16(0); i < n; i++ {
		chain := byBucket[i]
		if len(chain) == 0 {
			continue
		}
		b.WriteString(bucketStyle.Render(fmt.Sprintf("%3d", i)))
		for _, e := range chain {
			b.WriteString(" ")
			b.WriteString(atomStyle.Render(e.Text))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func formatEntry(e atom.Entry) string {
	return fmt.Sprintf("%s %s refs=%d %s",
		atomStyle.Render(e.Atom.String()),
		bucketStyle.Render(fmt.Sprintf("bucket=%d", e.Bucket)),
		e.RefCount,
		fmt.Sprintf("%q", e.Text))
}

func newInteractiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "interactive",
		Short: "Run script commands in a terminal UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdin.Fd())) {
				return fmt.Errorf("interactive mode needs a terminal on stdin")
			}
			s, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			p := tea.NewProgram(newInteractiveModel(s), tea.WithAltScreen())
			_, err = p.Run()
			return err
		},
	}
}

func init() {
	rootCmd.AddCommand(newInteractiveCmd())
}
