package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/ekaya-inc/ekaya-dialoggen/pkg/dataset"
	"github.com/ekaya-inc/ekaya-dialoggen/pkg/models"
	"github.com/ekaya-inc/ekaya-dialoggen/pkg/structured"
)

var (
	buyerColor    = color.New(color.FgCyan, color.Bold)
	sellerColor   = color.New(color.FgGreen, color.Bold)
	fallbackColor = color.New(color.FgYellow)
	headerColor   = color.New(color.FgMagenta, color.Bold)
)

// printer renders transcripts and reports for a terminal.
type printer struct {
	out io.Writer
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out}
}

func (p *printer) scenario(kind, context, intent string) {
	fmt.Fprintf(p.out, "%s %s\n", headerColor.Sprint("Cenário:"), kind)
	fmt.Fprintf(p.out, "  %s\n  %s\n\n", context, intent)
}

// turn prints one message, labelled by role. Fallback turns are marked.
func (p *printer) turn(rec models.TurnRecord) {
	label := buyerColor.Sprint("Comprador")
	if rec.Agent == models.RoleSeller {
		label = sellerColor.Sprint("Vendedor")
	}

	suffix := ""
	switch rec.Outcome {
	case models.TurnOutcomeFallback:
		suffix = " " + fallbackColor.Sprint("[fallback]")
	case models.TurnOutcomeCached:
		suffix = " " + fallbackColor.Sprint("[cache]")
	}

	fmt.Fprintf(p.out, "[%d] %s%s:\n%s\n", rec.TurnIndex, label, suffix, rec.ResponseText)
	if rec.ParseError != "" {
		fmt.Fprintf(p.out, "%s %s\n", color.RedString("✗ formato:"), rec.ParseError)
	}
	fmt.Fprintln(p.out)
}

func (p *printer) report(r *dataset.Report) {
	mark := color.GreenString("✓")
	if r.Partial() {
		mark = color.YellowString("⚠")
	}
	fmt.Fprintf(p.out, "%s %s\n", mark, r.String())

	if len(r.RejectReasons) > 0 {
		for _, reason := range sortedKeys(r.RejectReasons) {
			fmt.Fprintf(p.out, "  rejected (%s): %d\n", reason, r.RejectReasons[reason])
		}
	}
	if r.FallbackTurns > 0 {
		fmt.Fprintf(p.out, "  fallback turns: %d\n", r.FallbackTurns)
	}
	if r.InvalidSellerTurns > 0 {
		fmt.Fprintf(p.out, "  seller replies with format errors: %d\n", r.InvalidSellerTurns)
	}
}

func (p *printer) analysis(a *dataset.Analysis) {
	fmt.Fprintf(p.out, "Total rows: %d\n", a.Rows)
	fmt.Fprintf(p.out, "Valid: %d (%.2f%%)\n", a.Valid, a.ValidPercent())
	fmt.Fprintf(p.out, "Invalid: %d (%.2f%%)\n", a.InvalidCount, 100-a.ValidPercent())

	if len(a.Invalid) > 0 {
		fmt.Fprintln(p.out, "\nInvalid rows:")
		for _, row := range a.Invalid {
			fmt.Fprintf(p.out, "  %s line %d: %s\n", color.RedString("✗"), row.Line, row.Reason)
		}
		if more := a.InvalidCount - len(a.Invalid); more > 0 {
			fmt.Fprintf(p.out, "  ... and %d more\n", more)
		}
	}

	fmt.Fprintln(p.out, "\nActionInput fields:")
	seen := make(map[string]bool)
	for _, field := range structured.KnownFields {
		seen[field] = true
		fmt.Fprintf(p.out, "  %-15s %d\n", field, a.FieldCoverage[field])
	}
	for _, field := range sortedKeys(a.FieldCoverage) {
		if !seen[field] {
			fmt.Fprintf(p.out, "  %-15s %d %s\n", field, a.FieldCoverage[field], fallbackColor.Sprint("(unknown)"))
		}
	}

	fmt.Fprintf(p.out, "\nMemory lines: min %d, avg %.2f, max %d\n", a.Memory.Min, a.Memory.Avg, a.Memory.Max)
	fmt.Fprintf(p.out, "Ready for listing: %d, NextAgent mismatches: %d\n", a.ReadyForListing, a.HandoffMismatch)
}

func (p *printer) rule() {
	fmt.Fprintln(p.out, strings.Repeat("─", 60))
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
