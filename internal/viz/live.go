package viz

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/actsched/internal/action"
	"github.com/san-kum/actsched/internal/episode"
	"github.com/san-kum/actsched/internal/rollout"
	"github.com/san-kum/actsched/internal/sched"
)

const (
	historyCapacity = 200
	graphWidth      = 50
	tickRate        = time.Second / 20
)

type TickMsg time.Time

type stepMsg struct {
	res   sched.Result
	ref   action.Vector
	err   error
}

// Model steps a rollout one control step per tick.
type Model struct {
	ctx    context.Context
	runner *rollout.Runner
	src    episode.Source
	layout action.Layout
	title  string

	theme  Theme
	styles styles

	index        int
	inflight     bool
	resetPending bool
	running      bool
	done         bool
	err          error

	selected  int
	last      sched.Result
	history   [][]float64
	refs      [][]float64
	occupancy []float64
	fallbacks int
	replans   int
}

func NewModel(ctx context.Context, runner *rollout.Runner, src episode.Source, title string) Model {
	layout := runner.Scheduler().Config().Layout
	runner.Begin()
	return Model{
		ctx:     ctx,
		runner:  runner,
		src:     src,
		layout:  layout,
		title:   title,
		theme:   ThemeCyberpunk,
		styles:  newStyles(ThemeCyberpunk),
		running: true,
		history: make([][]float64, layout.Dim),
		refs:    make([][]float64, layout.Dim),
	}
}

func tick() tea.Cmd {
	return tea.Tick(tickRate, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return tick()
}

// stepCmd runs one scheduler step off the UI goroutine. Policy calls may
// block for as long as the client timeout.
func (m Model) stepCmd() tea.Cmd {
	ctx, runner, src, i := m.ctx, m.runner, m.src, m.index
	return func() tea.Msg {
		res, ref, err := runner.StepAt(ctx, src, i)
		return stepMsg{res: res, ref: ref, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.running = !m.running
		case "r":
			if m.inflight {
				m.resetPending = true
			} else {
				m.reset()
			}
		case "tab":
			m.selected = (m.selected + 1) % m.layout.Dim
		case "shift+tab":
			m.selected = (m.selected - 1 + m.layout.Dim) % m.layout.Dim
		case "t":
			m.theme = nextTheme(m.theme.Name)
			m.styles = newStyles(m.theme)
		}
	case TickMsg:
		if m.running && !m.inflight && !m.done && m.err == nil {
			m.inflight = true
			return m, tea.Batch(m.stepCmd(), tick())
		}
		return m, tick()
	case stepMsg:
		m.inflight = false
		if m.resetPending {
			m.reset()
			return m, nil
		}
		m.record(msg)
	}
	return m, nil
}

func (m *Model) record(msg stepMsg) {
	if msg.err != nil {
		m.err = msg.err
		return
	}
	res := msg.res
	m.last = res
	for d := range m.history {
		m.history[d] = appendCapped(m.history[d], res.Vector[d])
		if msg.ref != nil && d < len(msg.ref) {
			m.refs[d] = appendCapped(m.refs[d], msg.ref[d])
		}
	}
	m.occupancy = appendCapped(m.occupancy, float64(m.runner.Scheduler().QueueLen()))
	if res.Status == sched.StatusFallback {
		m.fallbacks++
	}
	if res.Replanned {
		m.replans++
	}
	m.index++
	if m.index >= m.src.Len() {
		m.done = true
	}
}

func appendCapped(s []float64, v float64) []float64 {
	s = append(s, v)
	if len(s) > historyCapacity {
		s = s[1:]
	}
	return s
}

// reset restarts the episode. It must not run while a step is in flight.
func (m *Model) reset() {
	m.runner.Begin()
	m.resetPending = false
	m.index = 0
	m.done = false
	m.err = nil
	m.last = sched.Result{}
	for d := range m.history {
		m.history[d] = m.history[d][:0]
		m.refs[d] = m.refs[d][:0]
	}
	m.occupancy = m.occupancy[:0]
	m.fallbacks = 0
	m.replans = 0
}

func (m Model) status() string {
	st := m.styles
	switch {
	case m.err != nil:
		return st.failed.Render("FAILED")
	case m.done:
		return st.paused.Render("DONE")
	case !m.running:
		return st.paused.Render("PAUSED")
	case m.last.Status == sched.StatusFallback:
		return st.fallback.Render("FALLBACK")
	default:
		return st.nominal.Render("NOMINAL")
	}
}

// View renders the TUI interface.
func (m Model) View() string {
	st := m.styles
	cfg := m.runner.Scheduler().Config()

	var left strings.Builder
	left.WriteString(st.header.Render(strings.ToUpper(m.title)) + "\n")
	left.WriteString(m.status() + "\n\n")

	row := func(label, value string) {
		left.WriteString(st.label.Render(label) + st.value.Render(value) + "\n")
	}
	row("Mode", string(cfg.Mode))
	row("Step", fmt.Sprintf("%d / %d", m.index, m.src.Len()))
	row("Progress", ProgressBar(float64(m.index)/float64(max(1, m.src.Len())), 20))
	row("Policy calls", fmt.Sprintf("%d", m.runner.Scheduler().Calls()))
	row("Replans", fmt.Sprintf("%d", m.replans))
	row("Fallbacks", fmt.Sprintf("%d", m.fallbacks))
	row("Blended", fmt.Sprintf("%d chunks", m.last.Chunks))
	row("Queue", Sparkline(m.occupancy, 0, float64(cfg.EnsembleMax), 20))
	if m.last.InferErr != nil {
		row("Last error", m.last.InferErr.Error())
	}
	if m.err != nil {
		left.WriteString("\n" + st.failed.Render(m.err.Error()) + "\n")
	}

	left.WriteString("\n")
	for _, f := range m.layout.Fields {
		vals := "-"
		if v, ok := m.last.Command[f.Name]; ok {
			vals = formatVector(v)
		}
		label := f.Name
		if m.selected >= f.Start && m.selected < f.End {
			left.WriteString(st.active.Render("> "+label) + " " + st.value.Render(vals) + "\n")
		} else {
			left.WriteString("  " + st.label.Render(label) + st.value.Render(vals) + "\n")
		}
	}

	left.WriteString(st.help.Render("SP:Pause R:Reset Tab:Dim T:Theme Q:Quit"))

	right := m.chart()
	return lipgloss.JoinHorizontal(lipgloss.Top, st.panel.Render(left.String()), right)
}

func (m Model) chart() string {
	hist := m.history[m.selected]
	if len(hist) < 2 {
		return ""
	}
	caption := fmt.Sprintf("a%d (%s)", m.selected, m.fieldOf(m.selected))
	series := [][]float64{hist}
	if refs := m.refs[m.selected]; len(refs) == len(hist) {
		series = append(series, refs)
		caption += " vs reference"
	}
	chart := asciigraph.PlotMany(series,
		asciigraph.Height(10),
		asciigraph.Width(graphWidth),
		asciigraph.Caption(caption),
		asciigraph.SeriesColors(asciigraph.Cyan, asciigraph.Yellow),
	)
	return m.styles.graph.Render(chart)
}

func (m Model) fieldOf(d int) string {
	for _, f := range m.layout.Fields {
		if d >= f.Start && d < f.End {
			return f.Name
		}
	}
	return "?"
}

func formatVector(v action.Vector) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprintf("%+.3f", x)
	}
	return strings.Join(parts, " ")
}

// Run starts the live view and blocks until the user quits.
func Run(ctx context.Context, runner *rollout.Runner, src episode.Source, title string) error {
	p := tea.NewProgram(NewModel(ctx, runner, src, title), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
