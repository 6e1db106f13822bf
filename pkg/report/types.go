// Package report writes the results of a run to disk.
//
// Layout of a report directory:
//   - report.json: the run, its scenarios and their steps
//   - junit.xml: one test case per scenario, for CI
//   - report.html: a static page rendered from report.json
//   - assets/<nn>-<scenario>/: screenshots and hierarchies captured on failure
//   - allure-results/: optional Allure results
package report

import "time"

// Version is the report schema version.
const Version = "1.0.0"

// Index is the content of report.json.
type Index struct {
	Version   string     `json:"version"`
	RunID     string     `json:"runId"`
	Status    string     `json:"status"`
	StartTime time.Time  `json:"startTime"`
	EndTime   time.Time  `json:"endTime"`
	Duration  int64      `json:"duration"` // milliseconds
	Device    Device     `json:"device"`
	App       App        `json:"app"`
	Runner    RunnerInfo `json:"runner"`
	Summary   Summary    `json:"summary"`
	Scenarios []Scenario `json:"scenarios"`
}

// Device contains device information.
type Device struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Platform    string `json:"platform"`
	OSVersion   string `json:"osVersion"`
	IsSimulator bool   `json:"isSimulator"`
	Screen      string `json:"screen,omitempty"`
}

// App contains application information.
type App struct {
	ID string `json:"id"` // package name
}

// RunnerInfo contains runner information.
type RunnerInfo struct {
	Version string `json:"version"`
	Driver  string `json:"driver"`
}

// Summary contains aggregated scenario counts.
type Summary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Scenario is the report entry of one scenario.
type Scenario struct {
	Index       int          `json:"index"`
	ID          string       `json:"id"` // e.g. "01-location", also the assets folder name
	Name        string       `json:"name"`
	Status      string       `json:"status"`
	Category    string       `json:"errorCategory,omitempty"`
	StartTime   time.Time    `json:"startTime"`
	Duration    int64        `json:"duration"` // milliseconds
	Message     string       `json:"message,omitempty"`
	Error       string       `json:"error,omitempty"`
	Setup       []Step       `json:"setup,omitempty"`
	Steps       []Step       `json:"steps"`
	Cleanup     []Step       `json:"cleanup,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Step is the report entry of one step.
type Step struct {
	Index     int       `json:"index"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Category  string    `json:"errorCategory,omitempty"`
	StartTime time.Time `json:"startTime"`
	Duration  int64     `json:"duration"` // milliseconds
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Attachment references a file under the report directory.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Path        string `json:"path"` // relative to the report directory
}
