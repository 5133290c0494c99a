package main

import (
	"bytes"
	"fmt"
	"io"

	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/x/ansi"

	"github.com/vito/sheetc/pkg/optimize"
)

var (
	cellStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("63")).Bold(true)
	constantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	residualStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("249"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// report collects the output of one document so documents processed
// concurrently print in order.
type report struct {
	path   string
	buf    bytes.Buffer
	stats  optimize.Stats
	failed int
}

func (r *report) printf(style lipgloss.Style, format string, args ...any) {
	r.buf.WriteString(style.Render(fmt.Sprintf(format, args...)))
}

func (r *report) newline() {
	r.buf.WriteByte('\n')
}

// flush writes the report, stripping styles for plain output.
func (r *report) flush(w io.Writer, plain bool) error {
	out := r.buf.String()
	if plain {
		out = ansi.Strip(out)
	}
	_, err := io.WriteString(w, out)
	return err
}

func formatStats(s optimize.Stats) string {
	return fmt.Sprintf("folded %d, refused %d, partial folds %d, cache hits %d",
		s.Folded, s.Refused, s.PartialFolds, s.CacheHits)
}
