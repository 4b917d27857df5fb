package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/JillVernus/feature-gate/internal/quota"
)

// FetchFunc retrieves one snapshot of gate state. The context carries
// the per-poll deadline.
type FetchFunc func(context.Context) (*Snapshot, error)

type Options struct {
	Interval  time.Duration
	Timeout   time.Duration
	NoColor   bool
	AltScreen bool
	Fetch     FetchFunc
}

type Model struct {
	interval time.Duration
	timeout  time.Duration
	fetch    FetchFunc

	width  int
	height int

	now time.Time

	fetching      bool
	lastAttemptAt time.Time
	lastSuccessAt time.Time
	lastError     string
	nextFetchAt   time.Time

	snapshot *Snapshot
	styles   styles
}

type styles struct {
	title   lipgloss.Style
	dim     lipgloss.Style
	panel   lipgloss.Style
	label   lipgloss.Style
	value   lipgloss.Style
	accent  lipgloss.Style
	ok      lipgloss.Style
	warn    lipgloss.Style
	bad     lipgloss.Style
	error   lipgloss.Style
	loading lipgloss.Style
}

type pollTickMsg struct {
	at time.Time
}

type clockTickMsg struct {
	at time.Time
}

type fetchResultMsg struct {
	at       time.Time
	snapshot *Snapshot
	err      error
}

const (
	defaultInterval = 2 * time.Second
	defaultTimeout  = 5 * time.Second
)

func NewModel(opts Options) Model {
	interval := opts.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	fetch := opts.Fetch
	if fetch == nil {
		fetch = func(context.Context) (*Snapshot, error) {
			return nil, errors.New("missing fetch function")
		}
	}
	now := time.Now().UTC()

	return Model{
		interval:    interval,
		timeout:     timeout,
		fetch:       fetch,
		now:         now,
		fetching:    true,
		nextFetchAt: now.Add(interval),
		styles:      defaultStyles(opts.NoColor),
	}
}

func defaultStyles(noColor bool) styles {
	basePanel := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	if noColor {
		return styles{
			title:   lipgloss.NewStyle().Bold(true),
			dim:     lipgloss.NewStyle(),
			panel:   basePanel,
			label:   lipgloss.NewStyle().Bold(true),
			value:   lipgloss.NewStyle(),
			accent:  lipgloss.NewStyle().Bold(true),
			ok:      lipgloss.NewStyle(),
			warn:    lipgloss.NewStyle().Bold(true),
			bad:     lipgloss.NewStyle().Bold(true),
			error:   lipgloss.NewStyle().Bold(true),
			loading: lipgloss.NewStyle(),
		}
	}
	return styles{
		title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230")).Background(lipgloss.Color("24")).Padding(0, 1),
		dim:     lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		panel:   basePanel.BorderForeground(lipgloss.Color("61")),
		label:   lipgloss.NewStyle().Foreground(lipgloss.Color("109")),
		value:   lipgloss.NewStyle().Foreground(lipgloss.Color("255")),
		accent:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81")),
		ok:      lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		warn:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
		bad:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		error:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		loading: lipgloss.NewStyle().Foreground(lipgloss.Color("117")),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(fetchCmd(m.fetch, m.timeout), pollCmd(m.interval), clockCmd())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch v := msg.(type) {
	case tea.KeyMsg:
		switch v.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "r":
			if !m.fetching {
				m.fetching = true
				return m, fetchCmd(m.fetch, m.timeout)
			}
		}
	case tea.WindowSizeMsg:
		m.width = v.Width
		m.height = v.Height
	case pollTickMsg:
		m.nextFetchAt = v.at.UTC().Add(m.interval)
		cmds := []tea.Cmd{pollCmd(m.interval)}
		if !m.fetching {
			m.fetching = true
			cmds = append(cmds, fetchCmd(m.fetch, m.timeout))
		}
		return m, tea.Batch(cmds...)
	case clockTickMsg:
		m.now = v.at.UTC()
		return m, clockCmd()
	case fetchResultMsg:
		m.fetching = false
		m.lastAttemptAt = v.at.UTC()
		if v.err != nil {
			m.lastError = v.err.Error()
			return m, nil
		}
		m.lastError = ""
		m.lastSuccessAt = v.at.UTC()
		m.snapshot = v.snapshot
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	if m.width <= 0 || m.height <= 0 {
		return "starting..."
	}

	header := m.renderHeader()
	body := m.renderBody()
	exitHint := m.styles.dim.Render("q to quit, r to refresh")

	top := lipgloss.JoinVertical(lipgloss.Left, header, body, "")
	return pinFooterToBottom(top, exitHint, m.height)
}

func (m Model) renderHeader() string {
	title := m.styles.title.Render(" feature gate ")

	stateText := "idle"
	stateStyle := m.styles.dim
	switch {
	case m.fetching:
		stateText = "refreshing"
		stateStyle = m.styles.loading
	case m.lastError != "":
		stateText = "error"
		stateStyle = m.styles.bad
	case m.snapshot != nil:
		stateText = "connected"
		stateStyle = m.styles.ok
	}

	left := title + "  " + m.styles.label.Render("state: ") + stateStyle.Render(stateText)
	if m.snapshot != nil && m.snapshot.ActiveTier != "" {
		left += "  " + m.styles.label.Render("tier: ") + m.styles.accent.Render(m.snapshot.ActiveTier)
	}
	if !m.nextFetchAt.IsZero() {
		left += " " + m.styles.dim.Render("[next poll in "+humanDuration(m.nextFetchAt.Sub(m.now))+"]")
	}
	right := m.styles.dim.Render("utc " + m.now.Format("2006-01-02 15:04:05"))

	pad := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if pad < 1 {
		return left + " " + right
	}
	return left + strings.Repeat(" ", pad) + right
}

func (m Model) renderBody() string {
	width := max(24, m.width-2)

	if m.snapshot == nil {
		text := m.styles.loading.Render("connecting to gate server...")
		if m.lastError != "" {
			text = m.styles.error.Render("fetch failed: " + m.lastError)
		}
		return m.styles.panel.Width(width).Render(text)
	}

	lines := make([]string, 0, len(m.snapshot.Statuses)+4)
	lines = append(lines, m.styles.label.Render(fmt.Sprintf("%-14s %9s  %s", "feature", "usage", "state")))
	for _, st := range m.snapshot.Statuses {
		lines = append(lines, m.renderGateLine(st))
	}
	lines = append(lines, "")
	lines = append(lines, m.renderMetaLine())
	if m.lastError != "" {
		lines = append(lines, m.styles.error.Render("last error: "+m.lastError))
	}

	return m.styles.panel.Width(width).Render(strings.Join(lines, "\n"))
}

func (m Model) renderGateLine(st quota.GateStatus) string {
	usage := fmt.Sprintf("%d/%d", st.UsageCount, st.Limit)
	if st.Unlimited {
		usage = fmt.Sprintf("%d/-", st.UsageCount)
	}

	var state string
	var style lipgloss.Style
	switch {
	case st.Unlimited:
		state = "unlimited"
		style = m.styles.dim
	case !st.Allowed:
		if left := m.cooldownLeft(st); left > 0 {
			state = "locked, unlocks in " + humanDuration(left)
		} else {
			state = "unlocking"
		}
		style = m.styles.bad
	default:
		state = fmt.Sprintf("open, %d left", st.Remaining)
		style = usageStyle(st, m.styles)
	}

	return m.styles.value.Render(fmt.Sprintf("%-14s %9s  ", string(st.Feature), usage)) + style.Render(state)
}

// cooldownLeft projects the cooldown remaining at m.now. The snapshot's
// remainingCooldown was computed server-side at FetchedAt, so the clock
// ticks count it down between polls.
func (m Model) cooldownLeft(st quota.GateStatus) time.Duration {
	left := time.Duration(st.RemainingCooldown)*time.Second - m.now.Sub(m.snapshot.FetchedAt)
	if left < 0 {
		left = 0
	}
	return left
}

func (m Model) renderMetaLine() string {
	locked := 0
	for _, st := range m.snapshot.Statuses {
		if !st.Allowed {
			locked++
		}
	}

	updated := "never"
	if !m.lastSuccessAt.IsZero() {
		updated = m.lastSuccessAt.Format("15:04:05") + " (" + humanDuration(m.now.Sub(m.lastSuccessAt)) + " ago)"
	}

	return m.styles.dim.Render(fmt.Sprintf("features: %d  locked: %d  updated: %s", len(m.snapshot.Statuses), locked, updated))
}

func usageStyle(st quota.GateStatus, styles styles) lipgloss.Style {
	if st.Limit <= 0 {
		return styles.ok
	}
	percent := st.UsageCount * 100 / st.Limit
	switch {
	case percent >= 100:
		return styles.bad
	case percent >= 80:
		return styles.warn
	default:
		return styles.ok
	}
}

func pollCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return pollTickMsg{at: t}
	})
}

func clockCmd() tea.Cmd {
	return tea.Tick(1*time.Second, func(t time.Time) tea.Msg {
		return clockTickMsg{at: t}
	})
}

func fetchCmd(fetch FetchFunc, timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		snapshot, err := fetch(ctx)
		return fetchResultMsg{
			at:       time.Now(),
			snapshot: snapshot,
			err:      err,
		}
	}
}

// Run starts the monitor and blocks until the user quits.
func Run(opts Options) error {
	model := NewModel(opts)
	progOpts := []tea.ProgramOption{}
	if opts.AltScreen {
		progOpts = append(progOpts, tea.WithAltScreen())
	}
	prog := tea.NewProgram(model, progOpts...)
	_, err := prog.Run()
	return err
}

func pinFooterToBottom(top, footer string, height int) string {
	if height <= 0 {
		return ""
	}
	footerLines := []string{}
	if footer != "" {
		footerLines = strings.Split(footer, "\n")
	}
	topLines := []string{}
	if top != "" {
		topLines = strings.Split(top, "\n")
	}

	maxTopLines := height - len(footerLines)
	if maxTopLines < 0 {
		maxTopLines = 0
	}
	if len(topLines) > maxTopLines {
		topLines = topLines[:maxTopLines]
	}
	for len(topLines) < maxTopLines {
		topLines = append(topLines, "")
	}

	all := append(topLines, footerLines...)
	if len(all) == 0 {
		return ""
	}
	return strings.Join(all, "\n")
}

func humanDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return d.String()
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
	return fmt.Sprintf("%dd%dh", int(d.Hours())/24, int(d.Hours())%24)
}
