package report

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/devicelab-dev/device-features-runner/pkg/core"
)

// BuilderConfig holds the run metadata that is not part of the results.
type BuilderConfig struct {
	Device        Device
	RunnerVersion string
	DriverName    string
}

// Build converts a suite result into a report index. Attachment paths are
// taken from the results as they are.
func Build(suite *core.SuiteResult, cfg BuilderConfig) *Index {
	index := &Index{
		Version:   Version,
		RunID:     suite.RunID,
		Status:    runStatus(suite).String(),
		StartTime: suite.StartTime,
		EndTime:   suite.StartTime.Add(suite.Duration),
		Duration:  suite.Duration.Milliseconds(),
		Device:    cfg.Device,
		App:       App{ID: suite.AppID},
		Runner: RunnerInfo{
			Version: cfg.RunnerVersion,
			Driver:  cfg.DriverName,
		},
		Summary: Summary{
			Total:   suite.TotalScenarios,
			Passed:  suite.PassedScenarios,
			Failed:  suite.FailedScenarios,
			Skipped: suite.SkippedScenarios,
		},
	}

	for i, sc := range suite.Scenarios {
		index.Scenarios = append(index.Scenarios, buildScenario(i, sc))
	}
	return index
}

func buildScenario(i int, sc core.ScenarioResult) Scenario {
	entry := Scenario{
		Index:     i,
		ID:        ScenarioID(i, sc.Name),
		Name:      sc.Name,
		Status:    sc.Status.String(),
		StartTime: sc.StartTime,
		Duration:  sc.Duration.Milliseconds(),
		Message:   sc.Message,
		Error:     sc.Error,
		Setup:     buildSteps(sc.Setup),
		Steps:     buildSteps(sc.Steps),
		Cleanup:   buildSteps(sc.Cleanup),
	}
	if sc.Category != core.ErrCategoryNone {
		entry.Category = sc.Category.String()
	}
	for _, a := range sc.Attachments {
		entry.Attachments = append(entry.Attachments, Attachment{
			Name:        a.Name,
			ContentType: a.ContentType,
			Path:        a.Path,
		})
	}
	return entry
}

func buildSteps(steps []core.StepResult) []Step {
	out := make([]Step, 0, len(steps))
	for _, s := range steps {
		step := Step{
			Index:     s.Index,
			Name:      s.Name,
			Status:    s.Status.String(),
			StartTime: s.StartTime,
			Duration:  s.Duration.Milliseconds(),
			Message:   s.Message,
			Error:     s.Error,
		}
		if s.Category != core.ErrCategoryNone {
			step.Category = s.Category.String()
		}
		out = append(out, step)
	}
	return out
}

// runStatus is failed when any scenario did not pass or skip.
func runStatus(suite *core.SuiteResult) core.StepStatus {
	if len(suite.Scenarios) == 0 {
		return core.StatusSkipped
	}
	for _, sc := range suite.Scenarios {
		if sc.Status == core.StatusFailed || sc.Status == core.StatusErrored {
			return core.StatusFailed
		}
	}
	return core.StatusPassed
}

var unsafeChars = regexp.MustCompile(`[^a-z0-9]+`)

// ScenarioID returns the stable identifier of the i-th scenario.
func ScenarioID(i int, name string) string {
	slug := strings.Trim(unsafeChars.ReplaceAllString(strings.ToLower(name), "-"), "-")
	return fmt.Sprintf("%02d-%s", i+1, slug)
}

// formatDuration renders milliseconds for people.
func formatDuration(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	if d < time.Second {
		return fmt.Sprintf("%dms", ms)
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
}
