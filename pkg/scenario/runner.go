// Package scenario runs the Device Features scenarios against an automation
// driver and records every step into core results.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/devicelab-dev/device-features-runner/pkg/core"
	"github.com/devicelab-dev/device-features-runner/pkg/driver"
	"github.com/devicelab-dev/device-features-runner/pkg/locator"
	"github.com/devicelab-dev/device-features-runner/pkg/logger"
)

// Default bounded wait durations.
const (
	DefaultTimeout = 5 * time.Second
	GPSTimeout     = 10 * time.Second
)

// Config configures the scenario runner.
type Config struct {
	AppID string // package of the app under test

	DefaultTimeout time.Duration // navigation and element waits
	GPSTimeout     time.Duration // wait for a location fix

	Artifacts core.ArtifactConfig

	// Live progress callbacks
	OnScenarioStart func(idx, total int, name string)
	OnStepComplete  func(scenario string, step core.StepResult)
	OnScenarioEnd   func(result *core.ScenarioResult)
}

// Runner executes scenarios one at a time. Each scenario opens its own driver
// through the opener and closes it before the next one starts.
type Runner struct {
	opener driver.Opener
	config Config
}

// New creates a Runner. Zero timeouts take their defaults.
func New(opener driver.Opener, cfg Config) *Runner {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultTimeout
	}
	if cfg.GPSTimeout <= 0 {
		cfg.GPSTimeout = GPSTimeout
	}
	return &Runner{opener: opener, config: cfg}
}

// RunAll runs the named scenarios in order, or every scenario when names is
// empty. Scenarios left when ctx is cancelled are reported as skipped.
func (r *Runner) RunAll(ctx context.Context, names []string) (*core.SuiteResult, error) {
	if r.config.AppID == "" {
		return nil, core.ErrInvalidConfig.WithMessage("app id is required")
	}
	selected, err := Select(names)
	if err != nil {
		return nil, err
	}

	suite := core.NewSuiteResult("Device Features", r.config.AppID)
	logger.Info("run %s: %d scenario(s) against %s", suite.RunID, len(selected), r.config.AppID)

	for i, sc := range selected {
		if ctx.Err() != nil {
			suite.Scenarios = append(suite.Scenarios, core.ScenarioResult{
				Name:    sc.Name,
				Status:  core.StatusSkipped,
				Message: "run cancelled",
			})
			continue
		}
		if r.config.OnScenarioStart != nil {
			r.config.OnScenarioStart(i, len(selected), sc.Name)
		}
		suite.Scenarios = append(suite.Scenarios, *r.Run(ctx, sc))
	}

	suite.Duration = time.Since(suite.StartTime)
	suite.ComputeSummary()
	return suite, nil
}

// Run executes one scenario from setup to driver release.
func (r *Runner) Run(ctx context.Context, sc Scenario) *core.ScenarioResult {
	result := &core.ScenarioResult{
		Name:      sc.Name,
		Status:    core.StatusRunning,
		StartTime: time.Now(),
	}
	s := &session{ctx: ctx, config: r.config, result: result}
	logger.Info("scenario %s: start", sc.Name)

	err := s.setup(r.opener)
	if s.drv != nil {
		defer func() {
			if cerr := s.drv.Close(); cerr != nil {
				logger.Warn("scenario %s: close driver: %v", sc.Name, cerr)
			}
		}()
	}
	if err == nil {
		err = sc.run(s)
	}

	result.Status = result.AggregateStatus()
	if err != nil {
		result.Category = core.CategoryOf(err)
		result.Message = messageOf(err)
		result.Error = err.Error()
	}
	result.ComputeSummary()

	if s.drv != nil && r.config.Artifacts.ShouldCapture(result.Status) {
		result.Attachments = s.captureArtifacts()
	}
	result.Duration = time.Since(result.StartTime)

	logger.Info("scenario %s: %s in %v", sc.Name, result.Status, result.Duration)
	if r.config.OnScenarioEnd != nil {
		r.config.OnScenarioEnd(result)
	}
	return result
}

// session is the state of one scenario run. The driver is owned by the
// session and never shared.
type session struct {
	ctx    context.Context
	config Config
	result *core.ScenarioResult
	drv    driver.Driver
}

type stepFunc func(ctx context.Context) error

func (s *session) record(section *[]core.StepResult, name string, fn stepFunc) error {
	start := time.Now()
	err := fn(s.ctx)

	step := core.StepResult{
		Index:     len(*section),
		Name:      name,
		Status:    core.StatusPassed,
		StartTime: start,
		Duration:  time.Since(start),
	}
	if err != nil {
		step.Category = core.CategoryOf(err)
		step.Status = step.Category.Status()
		step.Message = messageOf(err)
		step.Error = err.Error()
		logger.Error("scenario %s: %s: %v", s.result.Name, name, err)
	} else {
		logger.Debug("scenario %s: %s (%v)", s.result.Name, name, step.Duration)
	}
	*section = append(*section, step)

	if s.config.OnStepComplete != nil {
		s.config.OnStepComplete(s.result.Name, step)
	}
	return err
}

// setupStep records a step of the setup phase.
func (s *session) setupStep(name string, fn stepFunc) error {
	return s.record(&s.result.Setup, name, fn)
}

// step records a scenario step.
func (s *session) step(name string, fn stepFunc) error {
	return s.record(&s.result.Steps, name, fn)
}

// cleanupStep records a best-effort step. Its error is logged and dropped.
func (s *session) cleanupStep(name string, fn stepFunc) {
	_ = s.record(&s.result.Cleanup, name, fn)
}

// setup acquires the driver, returns the device to the launcher and starts
// the app in a fresh task.
func (s *session) setup(opener driver.Opener) error {
	if err := s.setupStep("open driver", func(ctx context.Context) error {
		drv, err := opener.Open(ctx)
		if err != nil {
			return core.ErrDriverUnavailable.WithCause(err)
		}
		s.drv = drv
		if p, ok := drv.(interface{ PlatformInfo() *core.PlatformInfo }); ok && p.PlatformInfo() != nil {
			info := *p.PlatformInfo()
			info.AppID = s.config.AppID
			s.result.PlatformInfo = &info
		}
		return nil
	}); err != nil {
		return err
	}

	if err := s.setupStep("press home", func(ctx context.Context) error {
		return s.command("press home", s.drv.PressHome(ctx))
	}); err != nil {
		return err
	}

	if err := s.setupStep("wait for launcher", func(ctx context.Context) error {
		launcher, err := s.drv.LauncherPackage(ctx)
		if err != nil {
			return core.ErrLauncherNotVisible.WithMessage("Launcher package not resolved").WithCause(err)
		}
		l, err := s.drv.WaitFor(ctx, locator.Package(launcher), s.config.DefaultTimeout)
		if err != nil {
			return s.command("wait for launcher", err)
		}
		if _, ok := l.(driver.NotFound); ok {
			return core.ErrLauncherNotVisible.
				WithMessage(fmt.Sprintf("Launcher %s not visible", launcher)).
				WithDetails(map[string]interface{}{"launcher": launcher})
		}
		return nil
	}); err != nil {
		return err
	}

	if err := s.setupStep("launch app", func(ctx context.Context) error {
		if err := s.drv.LaunchApp(ctx, s.config.AppID); err != nil {
			return core.ErrAppLaunchFailed.
				WithMessage(fmt.Sprintf("Failed to launch %s", s.config.AppID)).
				WithCause(err)
		}
		return nil
	}); err != nil {
		return err
	}

	return s.setupStep("wait for app", func(ctx context.Context) error {
		l, err := s.drv.WaitFor(ctx, locator.Package(s.config.AppID), s.config.DefaultTimeout)
		if err != nil {
			return s.command("wait for app", err)
		}
		if _, ok := l.(driver.NotFound); ok {
			return core.ErrAppNotVisible.
				WithMessage(fmt.Sprintf("App %s not visible after launch", s.config.AppID)).
				WithDetails(map[string]interface{}{"appId": s.config.AppID})
		}
		return nil
	})
}

// navigateToDeviceFeatures opens the navigation menu and follows the
// Device Features entry. Running it again from the features screen lands on
// the same screen.
func (s *session) navigateToDeviceFeatures() error {
	if err := s.step("open navigation menu", func(ctx context.Context) error {
		return s.clickRequired(ctx, locator.Desc(locator.NavMenu), "Navigation menu not found")
	}); err != nil {
		return err
	}
	return s.step("open Device Features", func(ctx context.Context) error {
		return s.clickRequired(ctx, locator.Text(locator.TextDeviceFeatures), "Device Features link not found")
	})
}

// require waits for sel with the default timeout. A miss is an element
// missing failure carrying msg.
func (s *session) require(ctx context.Context, sel locator.Selector, msg string) (driver.Element, error) {
	l, err := s.drv.WaitFor(ctx, sel, s.config.DefaultTimeout)
	if err != nil {
		return driver.Element{}, s.command("find "+sel.Name(), err)
	}
	switch v := l.(type) {
	case driver.Found:
		return v.Element, nil
	case driver.NotFound:
		return driver.Element{}, missing(v.Selector, msg)
	}
	return driver.Element{}, fmt.Errorf("unexpected lookup %T", l)
}

// optional looks sel up once without waiting.
func (s *session) optional(ctx context.Context, sel locator.Selector) (driver.Lookup, error) {
	l, err := s.drv.Find(ctx, sel)
	if err != nil {
		return nil, s.command("find "+sel.Name(), err)
	}
	return l, nil
}

// expect waits up to timeout for sel. A miss is an assertion failure.
func (s *session) expect(ctx context.Context, sel locator.Selector, timeout time.Duration, msg string) error {
	l, err := s.drv.WaitFor(ctx, sel, timeout)
	if err != nil {
		return s.command("wait for "+sel.Name(), err)
	}
	if nf, ok := l.(driver.NotFound); ok {
		return mismatch(nf.Selector, timeout, msg)
	}
	return nil
}

// present asserts sel is on screen right now.
func (s *session) present(ctx context.Context, sel locator.Selector, msg string) error {
	l, err := s.optional(ctx, sel)
	if err != nil {
		return err
	}
	if nf, ok := l.(driver.NotFound); ok {
		return mismatch(nf.Selector, 0, msg)
	}
	return nil
}

func (s *session) click(ctx context.Context, el driver.Element) error {
	return s.command("click "+el.Selector.Name(), s.drv.Click(ctx, el))
}

func (s *session) clickRequired(ctx context.Context, sel locator.Selector, msg string) error {
	el, err := s.require(ctx, sel, msg)
	if err != nil {
		return err
	}
	return s.click(ctx, el)
}

// command wraps a driver failure. Cancellation is passed through unchanged.
func (s *session) command(what string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return core.ErrDriverCommand.WithMessage(what + " failed").WithCause(err)
}

func (s *session) captureArtifacts() []core.Attachment {
	collector, ok := s.drv.(core.ArtifactCollector)
	if !ok {
		return nil
	}
	var out []core.Attachment
	if s.config.Artifacts.Screenshot {
		if data, err := collector.CaptureScreenshot(); err != nil {
			logger.Warn("scenario %s: screenshot: %v", s.result.Name, err)
		} else if len(data) > 0 {
			out = append(out, core.NewScreenshotAttachment("", data))
		}
	}
	if s.config.Artifacts.UIHierarchy {
		if data, err := collector.CaptureHierarchy(); err != nil {
			logger.Warn("scenario %s: hierarchy: %v", s.result.Name, err)
		} else if len(data) > 0 {
			out = append(out, core.NewHierarchyAttachment("", data))
		}
	}
	return out
}

func missing(sel locator.Selector, msg string) error {
	return core.ErrElementMissing.
		WithMessage(msg).
		WithDetails(map[string]interface{}{"selector": sel.Describe()})
}

func mismatch(sel locator.Selector, timeout time.Duration, msg string) error {
	details := map[string]interface{}{"selector": sel.Describe()}
	if timeout > 0 {
		details["timeout"] = timeout.String()
	}
	return core.ErrAssertionMismatch.WithMessage(msg).WithDetails(details)
}

// messageOf returns the human readable part of err.
func messageOf(err error) string {
	var execErr *core.ExecutionError
	if errors.As(err, &execErr) {
		return execErr.Message
	}
	return err.Error()
}
