package report

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/devicelab-dev/device-features-runner/pkg/logger"
)

// Allure result schema types.

// AllureResult represents a single test result in Allure format.
type AllureResult struct {
	UUID          string              `json:"uuid"`
	HistoryID     string              `json:"historyId"`
	FullName      string              `json:"fullName"`
	Name          string              `json:"name"`
	Status        string              `json:"status"`
	Stage         string              `json:"stage"`
	Start         int64               `json:"start"`
	Stop          int64               `json:"stop"`
	Labels        []AllureLabel       `json:"labels"`
	StatusDetails AllureStatusDetails `json:"statusDetails"`
	Steps         []AllureStep        `json:"steps"`
	Attachments   []AllureAttachment  `json:"attachments"`
}

// AllureStep represents a step within a test result.
type AllureStep struct {
	Name          string              `json:"name"`
	Status        string              `json:"status"`
	Stage         string              `json:"stage"`
	Start         int64               `json:"start"`
	Stop          int64               `json:"stop"`
	StatusDetails AllureStatusDetails `json:"statusDetails"`
}

// AllureAttachment represents a file attachment.
type AllureAttachment struct {
	Name   string `json:"name"`
	Source string `json:"source"`
	Type   string `json:"type"`
}

// AllureLabel represents a label on a test result.
type AllureLabel struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// AllureStatusDetails holds failure message and trace.
type AllureStatusDetails struct {
	Message string `json:"message,omitempty"`
	Trace   string `json:"trace,omitempty"`
}

// AllureCategory defines a failure category with regex matching.
type AllureCategory struct {
	Name            string   `json:"name"`
	MatchedStatuses []string `json:"matchedStatuses"`
	MessageRegex    string   `json:"messageRegex,omitempty"`
	TraceRegex      string   `json:"traceRegex,omitempty"`
}

// GenerateAllure generates Allure-compatible report files in <reportDir>/allure-results/.
func GenerateAllure(reportDir string) error {
	index, err := ReadReport(reportDir)
	if err != nil {
		return fmt.Errorf("read report: %w", err)
	}

	allureDir := filepath.Join(reportDir, "allure-results")
	if err := os.MkdirAll(allureDir, 0o755); err != nil {
		return fmt.Errorf("create allure-results dir: %w", err)
	}

	// Write one result file per scenario
	for _, sc := range index.Scenarios {
		result := buildAllureResult(sc, index)
		result.Attachments = copyAllureAttachments(reportDir, allureDir, sc)

		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal allure result for %s: %w", sc.ID, err)
		}

		resultPath := filepath.Join(allureDir, result.UUID+"-result.json")
		if err := os.WriteFile(resultPath, data, 0o644); err != nil {
			return fmt.Errorf("write allure result %s: %w", sc.ID, err)
		}
	}

	if err := writeAllureCategories(allureDir); err != nil {
		return err
	}
	return writeAllureEnvironment(allureDir, index)
}

// buildAllureResult builds an AllureResult from a scenario entry.
func buildAllureResult(sc Scenario, index *Index) AllureResult {
	start := sc.StartTime.UnixMilli()
	result := AllureResult{
		UUID:      uuid.NewString(),
		HistoryID: fnv32aHash(index.App.ID + "/" + sc.Name),
		FullName:  index.App.ID + "." + sc.Name,
		Name:      sc.Name,
		Status:    mapAllureStatus(sc.Status),
		Stage:     "finished",
		Start:     start,
		Stop:      start + sc.Duration,
		Labels: []AllureLabel{
			{Name: "suite", Value: "Device Features"},
			{Name: "framework", Value: "device-features-runner"},
			{Name: "host", Value: index.Device.Name},
		},
		StatusDetails: AllureStatusDetails{Message: sc.Message, Trace: allureTrace(sc.Category, sc.Error)},
	}

	for _, group := range []struct {
		prefix string
		steps  []Step
	}{{"setup: ", sc.Setup}, {"", sc.Steps}, {"cleanup: ", sc.Cleanup}} {
		for _, s := range group.steps {
			stepStart := s.StartTime.UnixMilli()
			result.Steps = append(result.Steps, AllureStep{
				Name:          group.prefix + s.Name,
				Status:        mapAllureStatus(s.Status),
				Stage:         "finished",
				Start:         stepStart,
				Stop:          stepStart + s.Duration,
				StatusDetails: AllureStatusDetails{Message: s.Message, Trace: allureTrace(s.Category, s.Error)},
			})
		}
	}
	return result
}

// allureTrace prefixes the error with its category so categories.json can match on it.
func allureTrace(category, errText string) string {
	if category == "" {
		return errText
	}
	return "[" + category + "] " + errText
}

// copyAllureAttachments copies a scenario's attachments next to the results.
func copyAllureAttachments(reportDir, allureDir string, sc Scenario) []AllureAttachment {
	var out []AllureAttachment
	for _, a := range sc.Attachments {
		if a.Path == "" {
			continue
		}
		source := sc.ID + "-" + filepath.Base(a.Path)
		if err := copyFile(filepath.Join(reportDir, a.Path), filepath.Join(allureDir, source)); err != nil {
			logger.Warn("allure attachment %s: %v", a.Path, err)
			continue
		}
		out = append(out, AllureAttachment{Name: a.Name, Source: source, Type: a.ContentType})
	}
	return out
}

func copyFile(src, dst string) error {
	in, err := os.Open(src) //#nosec G304 -- path inside the report directory
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst) //#nosec G304 -- path inside the report directory
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// mapAllureStatus maps a report status to an Allure status.
func mapAllureStatus(s string) string {
	switch s {
	case "passed", "failed", "skipped":
		return s
	case "errored":
		return "broken"
	default:
		return "unknown"
	}
}

// fnv32aHash returns a hex-encoded FNV-32a hash of the input string.
func fnv32aHash(s string) string {
	h := fnv.New32a()
	h.Write([]byte(s))
	return fmt.Sprintf("%08x", h.Sum32())
}

// writeAllureCategories writes categories.json, one category per error category.
func writeAllureCategories(allureDir string) error {
	categories := []AllureCategory{
		{Name: "Precondition failed", MatchedStatuses: []string{"failed"}, TraceRegex: `(?s)^\[precondition\].*`},
		{Name: "Required element missing", MatchedStatuses: []string{"failed"}, TraceRegex: `(?s)^\[element_missing\].*`},
		{Name: "Expected state not reached", MatchedStatuses: []string{"failed"}, TraceRegex: `(?s)^\[assertion\].*`},
		{Name: "Driver connection", MatchedStatuses: []string{"broken"}, TraceRegex: `(?s)^\[connection\].*`},
		{Name: "Configuration", MatchedStatuses: []string{"broken"}, TraceRegex: `(?s)^\[config\].*`},
	}

	data, err := json.MarshalIndent(categories, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal categories: %w", err)
	}

	path := filepath.Join(allureDir, "categories.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write categories.json: %w", err)
	}

	return nil
}

// writeAllureEnvironment writes environment.properties with device and app metadata.
func writeAllureEnvironment(allureDir string, index *Index) error {
	var b strings.Builder
	b.WriteString("framework=device-features-runner\n")

	if index.Device.Name != "" {
		b.WriteString(fmt.Sprintf("device.name=%s\n", index.Device.Name))
	}
	if index.Device.Platform != "" {
		b.WriteString(fmt.Sprintf("device.platform=%s\n", index.Device.Platform))
	}
	if index.Device.OSVersion != "" {
		b.WriteString(fmt.Sprintf("device.osVersion=%s\n", index.Device.OSVersion))
	}
	if index.Device.Screen != "" {
		b.WriteString(fmt.Sprintf("device.screen=%s\n", index.Device.Screen))
	}
	if index.Runner.Version != "" {
		b.WriteString(fmt.Sprintf("runner.version=%s\n", index.Runner.Version))
	}
	if index.Runner.Driver != "" {
		b.WriteString(fmt.Sprintf("runner.driver=%s\n", index.Runner.Driver))
	}
	if index.App.ID != "" {
		b.WriteString(fmt.Sprintf("app.id=%s\n", index.App.ID))
	}

	path := filepath.Join(allureDir, "environment.properties")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write environment.properties: %w", err)
	}

	return nil
}
