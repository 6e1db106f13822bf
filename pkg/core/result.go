package core

import (
	"time"

	"github.com/google/uuid"
)

// StepResult captures the outcome of one scenario step
type StepResult struct {
	Index    int           `json:"index"` // 0-based position in the scenario
	Name     string        `json:"name"`  // e.g. "click get location button"
	Status   StepStatus    `json:"status"`
	Category ErrorCategory `json:"errorCategory,omitempty"`

	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`

	Message string `json:"message,omitempty"` // Human-readable outcome
	Error   string `json:"error,omitempty"`   // Technical error message

	Attachments []Attachment `json:"attachments,omitempty"`
}

// ScenarioResult captures the outcome of one scenario run
type ScenarioResult struct {
	Name string `json:"name"`

	PlatformInfo *PlatformInfo `json:"platformInfo,omitempty"`

	Status   StepStatus    `json:"status"`
	Category ErrorCategory `json:"errorCategory,omitempty"`

	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`

	Setup   []StepResult `json:"setup,omitempty"`
	Steps   []StepResult `json:"steps"`
	Cleanup []StepResult `json:"cleanup,omitempty"` // Best-effort, never changes the verdict

	TotalSteps   int `json:"totalSteps"`
	PassedSteps  int `json:"passedSteps"`
	FailedSteps  int `json:"failedSteps"`
	SkippedSteps int `json:"skippedSteps"`

	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`

	Attachments []Attachment `json:"attachments,omitempty"`
}

// ComputeSummary calculates step counts from the Steps slice
func (r *ScenarioResult) ComputeSummary() {
	r.TotalSteps = len(r.Steps)
	r.PassedSteps = 0
	r.FailedSteps = 0
	r.SkippedSteps = 0

	for _, step := range r.Steps {
		switch step.Status {
		case StatusPassed:
			r.PassedSteps++
		case StatusFailed, StatusErrored:
			r.FailedSteps++
		case StatusSkipped:
			r.SkippedSteps++
		}
	}
}

// hasFailure checks if any step in the slice has failed or errored
func hasFailure(steps []StepResult) bool {
	for _, step := range steps {
		if step.Status == StatusFailed || step.Status == StatusErrored {
			return true
		}
	}
	return false
}

// AggregateStatus determines the scenario status from setup and step results.
// Cleanup results are not considered.
func (r *ScenarioResult) AggregateStatus() StepStatus {
	for _, steps := range [][]StepResult{r.Setup, r.Steps} {
		for _, step := range steps {
			if step.Status == StatusErrored {
				return StatusErrored
			}
		}
	}
	if hasFailure(r.Setup) || hasFailure(r.Steps) {
		return StatusFailed
	}
	return StatusPassed
}

// SuiteResult captures the outcome of running several scenarios
type SuiteResult struct {
	Name  string `json:"name"`
	RunID string `json:"runId"`
	AppID string `json:"appId"`

	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`

	Scenarios []ScenarioResult `json:"scenarios"`

	TotalScenarios   int `json:"totalScenarios"`
	PassedScenarios  int `json:"passedScenarios"`
	FailedScenarios  int `json:"failedScenarios"`
	SkippedScenarios int `json:"skippedScenarios"`
}

// NewSuiteResult starts a suite with a fresh run ID.
func NewSuiteResult(name, appID string) *SuiteResult {
	return &SuiteResult{
		Name:      name,
		RunID:     uuid.NewString(),
		AppID:     appID,
		StartTime: time.Now(),
	}
}

// ComputeSummary calculates scenario counts from the Scenarios slice
func (s *SuiteResult) ComputeSummary() {
	s.TotalScenarios = len(s.Scenarios)
	s.PassedScenarios = 0
	s.FailedScenarios = 0
	s.SkippedScenarios = 0

	for _, sc := range s.Scenarios {
		switch sc.Status {
		case StatusPassed:
			s.PassedScenarios++
		case StatusFailed, StatusErrored:
			s.FailedScenarios++
		case StatusSkipped:
			s.SkippedScenarios++
		}
	}
}

// Success returns true if all scenarios passed
func (s *SuiteResult) Success() bool {
	for _, sc := range s.Scenarios {
		if !sc.Status.IsSuccess() {
			return false
		}
	}
	return len(s.Scenarios) > 0
}
