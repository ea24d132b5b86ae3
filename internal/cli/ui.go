package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"

	"github.com/matzehuels/gemmirror/pkg/mirror"
)

// =============================================================================
// Color Palette
// =============================================================================

var (
	colorCyan   = lipgloss.Color("36")  // Teal - primary actions
	colorGreen  = lipgloss.Color("35")  // Green - success
	colorYellow = lipgloss.Color("220") // Amber - warnings
	colorRed    = lipgloss.Color("167") // Soft red - errors
	colorWhite  = lipgloss.Color("255") // Bright white - values
	colorGray   = lipgloss.Color("245") // Gray - secondary text
	colorDim    = lipgloss.Color("240") // Dim gray - muted text
)

// =============================================================================
// Styles
// =============================================================================

var (
	// StyleTitle for main headings.
	StyleTitle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)

	// StyleDim for secondary/muted text.
	StyleDim = lipgloss.NewStyle().Foreground(colorDim)

	// StyleValue for data values.
	StyleValue = lipgloss.NewStyle().Foreground(colorWhite)

	// StyleNumber for numeric values.
	StyleNumber = lipgloss.NewStyle().Foreground(colorCyan)

	// StyleWarning for warning messages.
	StyleWarning = lipgloss.NewStyle().Foreground(colorYellow)

	styleIconSuccess = lipgloss.NewStyle().Foreground(colorGreen)
	styleIconError   = lipgloss.NewStyle().Foreground(colorRed)
	styleIconWarning = lipgloss.NewStyle().Foreground(colorYellow)
	styleIconInfo    = lipgloss.NewStyle().Foreground(colorGray)
	styleIconSpinner = lipgloss.NewStyle().Foreground(colorCyan)

	styleKey = lipgloss.NewStyle().Foreground(colorGray).Width(12)
)

const (
	iconSuccess = "✓"
	iconError   = "✗"
	iconWarning = "!"
	iconInfo    = "›"
	iconFetch   = "+"
	iconDelete  = "-"
)

// maxListed caps the names printed per phase by "sync --dry-run".
const maxListed = 20

// =============================================================================
// Status Output
// =============================================================================

func printSuccess(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, styleIconSuccess.Render(iconSuccess)+" "+fmt.Sprintf(format, args...))
}

func printError(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, styleIconError.Render(iconError)+" "+fmt.Sprintf(format, args...))
}

func printWarning(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, styleIconWarning.Render(iconWarning)+" "+StyleWarning.Render(fmt.Sprintf(format, args...)))
}

func printInfo(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, styleIconInfo.Render(iconInfo)+" "+fmt.Sprintf(format, args...))
}

// printDetail prints an indented, dimmed line.
func printDetail(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, "  "+StyleDim.Render(fmt.Sprintf(format, args...)))
}

func printKeyValue(w io.Writer, key, value string) {
	fmt.Fprintln(w, styleKey.Render(key)+" "+StyleValue.Render(value))
}

func printCount(w io.Writer, key string, n int) {
	fmt.Fprintln(w, styleKey.Render(key)+" "+StyleNumber.Render(strconv.Itoa(n)))
}

// =============================================================================
// Cycle Output
// =============================================================================

// progressMessage formats spinner text such as "fetch 12/340".
func progressMessage(phase string, done, total int) string {
	return fmt.Sprintf("%s %d/%d", phase, done, total)
}

// printPlan lists the work a cycle would do, at most maxListed names per
// phase.
func printPlan(w io.Writer, p *mirror.Plan) {
	fmt.Fprintln(w, StyleTitle.Render("Plan"))
	printCount(w, "remote", p.Remote)
	printCount(w, "local", p.Local)
	printCount(w, "fetch", len(p.ToFetch))
	printCount(w, "delete", len(p.ToDelete))
	printNames(w, iconFetch, p.ToFetch)
	printNames(w, iconDelete, p.ToDelete)
}

func printNames(w io.Writer, icon string, names []string) {
	for i, n := range names {
		if i == maxListed {
			printDetail(w, "... and %d more", len(names)-maxListed)
			return
		}
		printDetail(w, "%s %s", icon, n)
	}
}

// printReport prints the outcome of a cycle and its failed items.
func printReport(w io.Writer, rep *mirror.Report) {
	if rep.Failures() == 0 {
		printSuccess(w, "Cycle %s", rep.Summary())
		return
	}
	printWarning(w, "Cycle %s", rep.Summary())
	for _, phase := range []mirror.PhaseResult{rep.Fetch, rep.Delete} {
		for i, f := range phase.Failed {
			if i == maxListed {
				printDetail(w, "... and %d more", len(phase.Failed)-maxListed)
				break
			}
			printDetail(w, "%s", f.Error())
		}
	}
}
