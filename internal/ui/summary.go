package ui

import (
	"fmt"
	"io"

	"github.com/example/cosyctl/internal/backend"
	"github.com/example/cosyctl/internal/steps"
	"github.com/fatih/color"
)

// PrintInstallSummary prints access information and any warnings.
func PrintInstallSummary(w io.Writer, s backend.Summary, report steps.Report) {
	green := color.New(color.FgGreen, color.Bold)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s Cosy is running (%s backend)\n", green.Sprint("✔"), s.Backend)
	fmt.Fprintf(w, "  URL:      %s\n", color.New(color.FgCyan).Sprint(s.URL))
	fmt.Fprintf(w, "  Handle:   %s\n", s.Handle)
	for _, f := range s.Files {
		fmt.Fprintf(w, "  File:     %s\n", f)
	}
	for _, n := range s.Notes {
		fmt.Fprintf(w, "  Note:     %s\n", n)
	}
	printWarnings(w, report)
}

// PrintTeardownSummary reports what removal did and what it left behind.
func PrintTeardownSummary(w io.Writer, handle string, report steps.Report, notes []string) {
	fmt.Fprintln(w)
	if len(report.Warnings) == 0 {
		fmt.Fprintf(w, "%s Removed %s\n", color.New(color.FgGreen, color.Bold).Sprint("✔"), handle)
	} else {
		fmt.Fprintf(w, "%s Removed %s with warnings\n", color.New(color.FgYellow, color.Bold).Sprint("!"), handle)
	}
	for _, n := range notes {
		fmt.Fprintf(w, "  Note:     %s\n", n)
	}
	printWarnings(w, report)
}

func printWarnings(w io.Writer, report steps.Report) {
	if len(report.Warnings) == 0 {
		return
	}
	yellow := color.New(color.FgYellow)
	fmt.Fprintf(w, "%s\n", yellow.Sprintf("%d warning(s):", len(report.Warnings)))
	for _, warn := range report.Warnings {
		fmt.Fprintf(w, "  - %s\n", warn.String())
	}
}
