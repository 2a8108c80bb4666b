package present

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/oicur0t/forwardog/internal/prefs"
	"github.com/oicur0t/forwardog/pkg/models"
)

// Spinner abstracts the busy indicator
type Spinner interface {
	Start()
	Stop()
	UpdateSuffix(suffix string)
}

type realSpinner struct {
	s *spinner.Spinner
}

func (rs *realSpinner) Start()                     { rs.s.Start() }
func (rs *realSpinner) Stop()                      { rs.s.Stop() }
func (rs *realSpinner) UpdateSuffix(suffix string) { rs.s.Suffix = suffix }

var newSpinner = func(w io.Writer) Spinner {
	return &realSpinner{spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))}
}

// Palette colors the outcome of a submission
type Palette struct {
	Success *color.Color
	Warning *color.Color
	Error   *color.Color
	Muted   *color.Color
}

// PaletteFor returns the palette of a theme
func PaletteFor(theme prefs.Theme) Palette {
	if theme == prefs.ThemeLight {
		return Palette{
			Success: color.New(color.FgGreen),
			Warning: color.New(color.FgMagenta),
			Error:   color.New(color.FgRed, color.Bold),
			Muted:   color.New(color.FgBlue),
		}
	}
	return Palette{
		Success: color.New(color.FgHiGreen),
		Warning: color.New(color.FgHiYellow),
		Error:   color.New(color.FgHiRed, color.Bold),
		Muted:   color.New(color.FgHiBlack),
	}
}

// Terminal renders outcomes as colored lines and shows a spinner while a
// submission is in flight
type Terminal struct {
	out     io.Writer
	palette Palette
	feed    *Feed
	spinner Spinner
	verbose bool

	mu           sync.Mutex
	historyCount int
}

// NewTerminal creates a terminal surface writing to out
func NewTerminal(out io.Writer, theme prefs.Theme, feedSize int, verbose bool) *Terminal {
	return &Terminal{
		out:     out,
		palette: PaletteFor(theme),
		feed:    NewFeed(feedSize),
		spinner: newSpinner(out),
		verbose: verbose,
	}
}

func (t *Terminal) AddResult(kind models.Kind, result models.SubmissionResult) {
	t.feed.Push(kind, result)

	c, label := t.palette.Success, "OK"
	if !result.Success {
		c, label = t.palette.Error, "FAILED"
	}
	t.printResult(c, label, kind, result)
}

func (t *Terminal) AddWarningResult(kind models.Kind, result models.SubmissionResult) {
	t.feed.Push(kind, result)
	t.printResult(t.palette.Warning, "WARNING", kind, result)

	for _, line := range strings.Split(result.WarningMessage, "\n") {
		t.palette.Warning.Fprintf(t.out, "  ! %s\n", line)
	}
}

func (t *Terminal) UpdateHistoryView(entries []models.HistoryEntry) {
	t.mu.Lock()
	t.historyCount = len(entries)
	t.mu.Unlock()

	if t.verbose {
		t.palette.Muted.Fprintf(t.out, "  history: %d entries\n", len(entries))
	}
}

func (t *Terminal) SetBusy(kind models.Kind, busy bool) {
	if busy {
		t.spinner.UpdateSuffix(fmt.Sprintf(" Submitting %s...", kind))
		t.spinner.Start()
		return
	}
	t.spinner.Stop()
}

// Feed returns the outcomes shown in this session, newest first
func (t *Terminal) Feed() []FeedItem {
	return t.feed.Items()
}

func (t *Terminal) printResult(c *color.Color, label string, kind models.Kind, result models.SubmissionResult) {
	var meta []string
	if result.StatusCode != 0 {
		meta = append(meta, fmt.Sprintf("HTTP %d", result.StatusCode))
	}
	if result.LatencyMS > 0 {
		meta = append(meta, fmt.Sprintf("%.0fms", result.LatencyMS))
	}
	if result.RequestID != "" {
		meta = append(meta, "request "+result.RequestID)
	}

	line := fmt.Sprintf("[%s] %s: %s", label, kind, result.Message)
	if len(meta) > 0 {
		line += " (" + strings.Join(meta, ", ") + ")"
	}
	c.Fprintln(t.out, line)

	if result.ErrorHint != "" {
		t.palette.Muted.Fprintf(t.out, "  hint: %s\n", result.ErrorHint)
	}
}

// RenderHistory writes entries as an aligned table
func RenderHistory(w io.Writer, entries []models.HistoryEntry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tTIME\tSTATUS\tCODE\tMESSAGE")
	for _, e := range entries {
		code := "-"
		if e.Result.StatusCode != 0 {
			code = fmt.Sprint(e.Result.StatusCode)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ID,
			e.Kind,
			e.Timestamp.Local().Format("2006-01-02 15:04:05"),
			e.Result.Status(),
			code,
			truncate(e.Result.Message, 60))
	}
	return tw.Flush()
}

// RenderFeed writes feed items, newest first
func RenderFeed(w io.Writer, items []FeedItem) {
	for _, item := range items {
		fmt.Fprintf(w, "%s  %-12s %-7s %s\n", item.At.Local().Format("15:04:05"), item.Kind, item.Status, item.Message)
	}
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
