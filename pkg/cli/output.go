package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/devicelab-dev/device-features-runner/pkg/core"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// Slow step threshold
const slowThreshold = 5 * time.Second

// colorsEnabled determines if ANSI colors should be used
var colorsEnabled = true

// out is where progress and summaries are printed.
var out io.Writer = os.Stdout

func init() {
	// Respect NO_COLOR environment variable
	if os.Getenv("NO_COLOR") != "" {
		colorsEnabled = false
		return
	}
	// Check if stdout is a terminal
	if fileInfo, err := os.Stdout.Stat(); err == nil {
		if (fileInfo.Mode() & os.ModeCharDevice) == 0 {
			colorsEnabled = false
		}
	}
}

// color returns the color code if colors are enabled, empty string otherwise
func color(c string) string {
	if colorsEnabled {
		return c
	}
	return ""
}

func printBanner() {
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  %sdevice-features-runner%s %s\n", color(colorBold), color(colorReset), Version)
	fmt.Fprintln(out)
}

// printSetupStep prints a setup step with spinner-style prefix
func printSetupStep(msg string) {
	fmt.Fprintf(out, "  %s⏳%s %s\n", color(colorCyan), color(colorReset), msg)
}

// printSetupSuccess prints a success message for setup
func printSetupSuccess(msg string) {
	fmt.Fprintf(out, "  %s✓%s %s\n", color(colorGreen), color(colorReset), msg)
}

// Live progress callbacks

func onScenarioStart(idx, total int, name string) {
	fmt.Fprintf(out, "\n  %s[%d/%d]%s %s%s%s\n",
		color(colorCyan), idx+1, total, color(colorReset),
		color(colorBold), name, color(colorReset))
	fmt.Fprintln(out, strings.Repeat("─", 60))
}

func onStepComplete(_ string, step core.StepResult) {
	durStr := formatDuration(step.Duration)

	switch step.Status {
	case core.StatusPassed:
		symbol := "✓"
		symbolColor := color(colorGreen)
		durColor := ""
		if step.Duration >= slowThreshold {
			durColor = color(colorYellow)
			symbol = "⚠"
			symbolColor = color(colorYellow)
		}
		fmt.Fprintf(out, "    %s%s%s %s %s(%s)%s\n",
			symbolColor, symbol, color(colorReset), step.Name, durColor, durStr, color(colorReset))
	case core.StatusSkipped:
		fmt.Fprintf(out, "    %s-%s %s\n", color(colorCyan), color(colorReset), step.Name)
	default:
		fmt.Fprintf(out, "    %s✗%s %s (%s)\n", color(colorRed), color(colorReset), step.Name, durStr)
		if step.Message != "" {
			fmt.Fprintf(out, "      %s╰─%s %s\n", color(colorGray), color(colorReset), step.Message)
		}
	}
}

func onScenarioEnd(result *core.ScenarioResult) {
	symbol, c := statusSymbol(result.Status)
	fmt.Fprintf(out, "%s%s %s%s %s%s%s\n",
		color(c), symbol, color(colorReset), result.Name,
		color(colorGray), formatDuration(result.Duration), color(colorReset))
}

func statusSymbol(s core.StepStatus) (string, string) {
	switch s {
	case core.StatusPassed:
		return "✓", colorGreen
	case core.StatusSkipped:
		return "-", colorCyan
	case core.StatusErrored:
		return "!", colorYellow
	default:
		return "✗", colorRed
	}
}

func printSummary(suite *core.SuiteResult) {
	tableWidth := 80
	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("═", tableWidth))
	fmt.Fprintf(out, "  %-20s %-8s %6s %6s %10s  %s\n", "Scenario", "Status", "Steps", "Pass", "Duration", "Message")
	fmt.Fprintln(out, strings.Repeat("─", tableWidth))

	for _, sc := range suite.Scenarios {
		_, c := statusSymbol(sc.Status)
		fmt.Fprintf(out, "  %-20s %s%-8s%s %6d %6d %10s  %s\n",
			sc.Name, color(c), strings.ToUpper(sc.Status.String()), color(colorReset),
			sc.TotalSteps, sc.PassedSteps, formatDuration(sc.Duration), truncate(sc.Message, 28))
	}

	fmt.Fprintln(out, strings.Repeat("─", tableWidth))
	statusColor := color(colorGreen)
	if suite.FailedScenarios > 0 {
		statusColor = color(colorRed)
	}
	fmt.Fprintf(out, "  %s%-20s%s %s%d/%d passed%s, %d skipped %s\n",
		color(colorBold), "TOTAL", color(colorReset),
		statusColor, suite.PassedScenarios, suite.TotalScenarios, color(colorReset),
		suite.SkippedScenarios, formatDuration(suite.Duration))
	fmt.Fprintln(out, strings.Repeat("═", tableWidth))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// formatDuration formats a duration to a human-readable string.
// Shows milliseconds for values < 1s, seconds otherwise.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
