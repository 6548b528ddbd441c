package featscan

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Verbosity controls how much context a Reporter prints around the results.
type Verbosity int

const (
	// Quiet prints the results only.
	Quiet Verbosity = iota
	// Normal adds the binary description, notes, headers and warnings.
	Normal
	// Verbose adds the file path and the list of text sections.
	Verbose
)

const (
	cpuidWarning = "Warning: CPUID usage detected, features could switch in runtime."
	overlapNote  = "Note: instructions that belong to multiple feature sets make counters overlap."
)

// Reporter renders analysis results as text.
//
// Write errors are sticky: after the first failed write the Reporter stops
// writing and Err returns the error.
type Reporter struct {
	w         io.Writer
	verbosity Verbosity
	warning   *color.Color
	header    *color.Color
	err       error
}

// NewReporter returns a Reporter writing to w. colored enables ANSI colors
// for the warning and the section headers regardless of what w is.
func NewReporter(w io.Writer, verbosity Verbosity, colored bool) *Reporter {
	r := &Reporter{
		w:         w,
		verbosity: verbosity,
		warning:   color.New(color.Bold, color.FgHiYellow),
		header:    color.New(color.Bold, color.FgHiMagenta),
	}
	for _, c := range []*color.Color{r.warning, r.header} {
		if colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return r
}

// Err returns the first write error, if any.
func (r *Reporter) Err() error {
	return r.err
}

func (r *Reporter) printf(format string, args ...any) {
	if r.err != nil {
		return
	}
	if _, err := fmt.Fprintf(r.w, format, args...); err != nil {
		r.err = fmt.Errorf("failed to write report: %w", err)
	}
}

func (r *Reporter) enabled(v Verbosity) bool {
	return r.verbosity >= v
}

// FilePath announces the file being analyzed.
func (r *Reporter) FilePath(path string) {
	if r.enabled(Verbose) {
		r.printf("Reading '%s'...\n", path)
	}
}

// Binary describes the container format and the architecture.
func (r *Reporter) Binary(b *Binary) {
	if r.enabled(Normal) {
		r.printf("Format: %s\n", b.Format)
		r.printf("Architecture: %s\n", b.Arch)
	}
}

// Segments lists the text sections about to be decoded.
func (r *Reporter) Segments(segments []Segment) {
	if !r.enabled(Verbose) {
		return
	}
	r.printf("Text sections:\n")
	for _, s := range segments {
		r.printf("    %s => 0x%x, %d bytes\n", s.Name, s.Offset, s.Size)
	}
}

// CPUIDWarning warns that the reported features may not be the ones used at
// run time when the code queries CPUID.
func (r *Reporter) CPUIDWarning(cpuid bool) {
	if cpuid && r.enabled(Normal) {
		r.printf("%s\n", r.warning.Sprint(cpuidWarning))
	}
}

// Detect prints the used features on one line, in feature id order.
func (r *Reporter) Detect(features []Counter) {
	if r.enabled(Normal) {
		r.printf("Features: ")
	}
	names := make([]string, 0, len(features))
	for _, f := range features {
		names = append(names, f.Name())
	}
	r.printf("%s\n", strings.Join(names, " "))
}

// Stats prints the feature counters with their share of the total.
func (r *Reporter) Stats(features []Counter) {
	if r.enabled(Normal) {
		r.printf("\n%s\n", overlapNote)
	}
	r.counters(features)
}

// Details prints each feature with the mnemonics credited under it, then the
// register counters. Mnemonic shares are relative to the feature total.
func (r *Reporter) Details(details []Detail, registers []Counter) {
	if r.enabled(Normal) {
		r.printf("\n")
		r.section("Instructions")
		r.printf("%s\n", overlapNote)
	}

	total := DetailTotal(details)
	r.total(total)
	for _, d := range details {
		r.line(d.Counter, total, 0, 0)
		r.body(d.Mnemonics, total, 4)
	}

	if r.enabled(Normal) {
		r.printf("\n")
		r.section("Registers")
	}
	r.counters(registers)
}

func (r *Reporter) section(text string) {
	r.printf("%s\n%s\n", r.header.Sprint(text), strings.Repeat("-", len(text)))
}

func (r *Reporter) counters(counters []Counter) {
	total := Total(counters)
	r.total(total)
	r.body(counters, total, 0)
}

func (r *Reporter) total(total uint64) {
	r.printf("= %d\n\n", total)
}

func (r *Reporter) body(counters []Counter, total uint64, indent int) {
	width := 0
	for _, c := range counters {
		width = max(width, len(c.Name()))
	}
	for _, c := range counters {
		r.line(c, total, width, indent)
	}
	r.printf("\n")
}

func (r *Reporter) line(c Counter, total uint64, width, indent int) {
	r.printf("%*s%-*s %d (%.2f%%)\n", indent, "", width, c.Name(), c.Count, Percent(c.Count, total))
}
