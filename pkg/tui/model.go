package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	portal "github.com/goliatone/go-civic-dashboard/components/portal"
)

// Page is one loaded section ready for display.
type Page struct {
	Section    string
	Title      string
	FilterLine string
	Cards      []portal.KPICard
	Narrative  string
	Toasts     []string
}

// Loader fetches a section page.
type Loader interface {
	Load(ctx context.Context, section string) (Page, error)
}

type pageLoadedMsg struct {
	section string
	page    Page
	err     error
}

type sectionItem struct {
	section portal.Section
}

func (i sectionItem) Title() string       { return i.section.Title }
func (i sectionItem) Description() string { return i.section.Subject }
func (i sectionItem) FilterValue() string { return i.section.Title + " " + i.section.Code }

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4")).MarginBottom(1)
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87")).Bold(true)
	cardStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1).MarginRight(1)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	valueStyle = lipgloss.NewStyle().Bold(true)
)

// Model is the section browser: a list of sections and the page of the
// selected one.
type Model struct {
	ctx     context.Context
	loader  Loader
	list    list.Model
	page    *Page
	loading string
	err     error
	width   int
}

// New builds the browser over sections.
func New(ctx context.Context, sections []portal.Section, loader Loader) Model {
	items := make([]list.Item, 0, len(sections))
	for _, sec := range sections {
		items = append(items, sectionItem{section: sec})
	}
	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Citizen Services Analytics"
	l.SetShowStatusBar(false)
	l.DisableQuitKeybindings()
	return Model{ctx: ctx, loader: loader, list: l}
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.list.SetSize(msg.Width, msg.Height-1)
		return m, nil

	case pageLoadedMsg:
		// a late load for a section the user already left is dropped
		if msg.section != m.loading {
			return m, nil
		}
		m.loading = ""
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		page := msg.page
		m.page = &page
		m.err = nil
		return m, nil

	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "esc", "backspace":
			if m.page != nil || m.err != nil || m.loading != "" {
				m.page, m.err, m.loading = nil, nil, ""
				return m, nil
			}
		case "enter":
			if m.page == nil && m.loading == "" {
				if item, ok := m.list.SelectedItem().(sectionItem); ok {
					return m.load(item.section.Code)
				}
			}
		case "r":
			if m.page != nil {
				return m.load(m.page.Section)
			}
		}
		if m.page != nil {
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) load(section string) (tea.Model, tea.Cmd) {
	m.loading = section
	m.err = nil
	loader, ctx := m.loader, m.ctx
	return m, func() tea.Msg {
		page, err := loader.Load(ctx, section)
		return pageLoadedMsg{section: section, page: page, err: err}
	}
}

func (m Model) View() string {
	switch {
	case m.loading != "":
		return mutedStyle.Render(fmt.Sprintf("Loading %s…", m.loading))
	case m.err != nil:
		return errorStyle.Render(m.err.Error()) + "\n" + mutedStyle.Render("esc: back • q: quit")
	case m.page != nil:
		return m.pageView(*m.page)
	default:
		return m.list.View()
	}
}

func (m Model) pageView(p Page) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(p.Title))
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render("Active filters: " + p.FilterLine))
	b.WriteString("\n\n")
	if len(p.Cards) > 0 {
		cards := make([]string, 0, len(p.Cards))
		for _, card := range p.Cards {
			cards = append(cards, cardStyle.Render(labelStyle.Render(card.Label)+"\n"+valueStyle.Render(card.Value)))
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cards...))
		b.WriteString("\n")
	}
	for _, toast := range p.Toasts {
		b.WriteString(errorStyle.Render(toast))
		b.WriteString("\n")
	}
	b.WriteString(p.Narrative)
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render("r: refresh • esc: back • q: quit"))
	return b.String()
}

// Run starts the browser on the alternate screen.
func Run(m Model) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
