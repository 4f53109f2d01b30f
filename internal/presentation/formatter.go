package presentation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// ErrUnknownFormat is returned for an output format other than json or
// text.
var ErrUnknownFormat = errors.New("unknown output format")

// Formatter handles output formatting
type Formatter struct {
	writer io.Writer
	json   bool
	styles styles
}

type styles struct {
	title lipgloss.Style
	label lipgloss.Style
	ok    lipgloss.Style
	warn  lipgloss.Style
	bad   lipgloss.Style
	faint lipgloss.Style
}

// NewFormatter creates a formatter writing format ("json" or "text", empty
// meaning text) to writer. Colours follow the writer's terminal profile.
func NewFormatter(writer io.Writer, format string) (*Formatter, error) {
	f := &Formatter{writer: writer}
	switch format {
	case FormatJSON:
		f.json = true
	case FormatText, "":
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	r := lipgloss.NewRenderer(writer)
	f.styles = styles{
		title: r.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#1F6FEB", Dark: "#54A0FF"}),
		label: r.NewStyle().Width(14).Foreground(lipgloss.AdaptiveColor{Light: "#57606A", Dark: "#8B949E"}),
		ok:    r.NewStyle().Foreground(lipgloss.Color("#2EA043")),
		warn:  r.NewStyle().Foreground(lipgloss.Color("#D29922")),
		bad:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("#F85149")),
		faint: r.NewStyle().Faint(true),
	}
	return f, nil
}

func (f *Formatter) encode(v any) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func (f *Formatter) print(lines ...string) error {
	_, err := io.WriteString(f.writer, strings.Join(lines, "\n")+"\n")
	return err
}

func (f *Formatter) field(label, value string) string {
	return f.styles.label.Render(label) + value
}

func num(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func nums(vs []float64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = num(v)
	}
	return strings.Join(parts, ", ")
}

func (f *Formatter) state(state string) string {
	switch state {
	case "done":
		return f.styles.ok.Render(state)
	case "skipped":
		return f.styles.warn.Render(state)
	case "failed":
		return f.styles.bad.Render(state)
	default:
		return state
	}
}

// FormatGenerate prints the outcome of each generated task.
func (f *Formatter) FormatGenerate(results []GenerateResultDTO) error {
	if f.json {
		return f.encode(results)
	}
	var lines []string
	for i, r := range results {
		if i > 0 {
			lines = append(lines, "")
		}
		lines = append(lines, f.styles.title.Render("task "+r.Task)+"  "+f.state(r.State))
		if r.Error != "" {
			lines = append(lines, f.field("error", f.styles.bad.Render(r.Error)))
		}
		if r.Toolpath != nil {
			lines = append(lines, f.toolpathLines(*r.Toolpath)...)
		}
		if r.StoredAs != "" {
			lines = append(lines, f.field("stored as", r.StoredAs))
		}
	}
	return f.print(lines...)
}

// FormatToolpath prints one toolpath, with its moves when present.
func (f *Formatter) FormatToolpath(tp ToolpathDTO) error {
	if f.json {
		return f.encode(tp)
	}
	lines := []string{f.styles.title.Render("toolpath " + tp.ID)}
	lines = append(lines, f.field("task", tp.Task))
	lines = append(lines, f.toolpathLines(tp)...)
	for _, m := range tp.Path {
		lines = append(lines, f.styles.faint.Render(fmt.Sprintf("  %-5s %s", m.Kind, nums(m.At[:]))))
	}
	return f.print(lines...)
}

func (f *Formatter) toolpathLines(tp ToolpathDTO) []string {
	settings := make([]string, len(tp.Settings))
	for i, s := range tp.Settings {
		settings[i] = s.Key + "=" + num(s.Value)
	}
	lines := []string{
		f.field("tool", tp.Tool),
		f.field("moves", strconv.Itoa(tp.Moves)),
		f.field("cut length", num(tp.CutLength)+" "+tp.Unit),
		f.field("bounds", "("+nums(tp.Bounds.Min[:])+") .. ("+nums(tp.Bounds.Max[:])+")"),
	}
	if len(tp.Layers) > 0 {
		lines = append(lines, f.field("layers", nums(tp.Layers)))
	}
	lines = append(lines,
		f.field("safety height", num(tp.SafetyHeight)),
		f.field("settings", strings.Join(settings, " ")),
	)
	return lines
}

// FormatValidation prints a validation report.
func (f *Formatter) FormatValidation(report ValidationDTO) error {
	if f.json {
		return f.encode(report)
	}
	lines := []string{f.styles.title.Render("job " + report.Job)}
	for _, e := range report.Entities {
		mark := f.styles.ok.Render("ok  ")
		if !e.Valid {
			mark = f.styles.bad.Render("FAIL")
		}
		lines = append(lines, fmt.Sprintf("%s %s %s", mark, e.Kind, e.ID))
		for _, msg := range e.Errors {
			lines = append(lines, "       "+f.styles.bad.Render(msg))
		}
	}
	if g := report.SupportGrid; g != nil {
		lines = append(lines, "", f.styles.title.Render("support grid"),
			f.field("x", nums(g.X)),
			f.field("y", nums(g.Y)))
	}
	summary := f.styles.ok.Render("valid")
	if !report.Valid {
		summary = f.styles.bad.Render("invalid")
	}
	lines = append(lines, "", summary)
	return f.print(lines...)
}

// FormatHistory prints stored toolpaths, newest first.
func (f *Formatter) FormatHistory(entries []HistoryEntryDTO) error {
	if f.json {
		return f.encode(entries)
	}
	if len(entries) == 0 {
		return f.print(f.styles.faint.Render("no stored toolpaths"))
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("%s  %s  %-12s %-8s %6d moves  %s %s",
			f.styles.title.Render(e.ID[:8]),
			e.CreatedAt.Format("2006-01-02 15:04:05"),
			e.Task, e.Tool, e.Moves, num(e.CutLength), e.Unit))
	}
	return f.print(lines...)
}
