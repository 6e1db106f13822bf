// Package uiautomator2 implements the automation driver on top of the
// UiAutomator2 server and adb.
package uiautomator2

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/devicelab-dev/device-features-runner/pkg/core"
	"github.com/devicelab-dev/device-features-runner/pkg/driver"
	"github.com/devicelab-dev/device-features-runner/pkg/locator"
	"github.com/devicelab-dev/device-features-runner/pkg/logger"
	"github.com/devicelab-dev/device-features-runner/pkg/uiautomator2"
)

// artifactTimeout bounds screenshot and hierarchy capture.
const artifactTimeout = 10 * time.Second

// UIA2Client defines the UiAutomator2 client operations the driver needs.
// Implemented by uiautomator2.Client.
type UIA2Client interface {
	FindElement(ctx context.Context, strategy, selector string) (*uiautomator2.Element, error)
	ClickElement(ctx context.Context, elementID string) error
	Back(ctx context.Context) error
	Home(ctx context.Context) error
	Screenshot(ctx context.Context) ([]byte, error)
	Source(ctx context.Context) (string, error)
	Close() error
}

// Device runs the adb side of the driver.
// Implemented by device.AndroidDevice.
type Device interface {
	LauncherPackage(ctx context.Context) (string, error)
	CurrentPackage(ctx context.Context) (string, error)
	LaunchApp(ctx context.Context, pkg string) error
}

// Driver implements driver.Driver using UiAutomator2.
type Driver struct {
	client UIA2Client
	device Device
	info   *core.PlatformInfo

	pollInterval time.Duration
	closed       bool
}

var (
	_ driver.Driver          = (*Driver)(nil)
	_ core.ArtifactCollector = (*Driver)(nil)
)

// New creates a UiAutomator2 driver over an open session.
func New(client UIA2Client, info *core.PlatformInfo, device Device) *Driver {
	return &Driver{
		client:       client,
		device:       device,
		info:         info,
		pollInterval: driver.DefaultPollInterval,
	}
}

// SetPollInterval sets the delay between lookups of WaitFor.
func (d *Driver) SetPollInterval(interval time.Duration) {
	d.pollInterval = interval
}

// PlatformInfo returns the device the session runs on.
func (d *Driver) PlatformInfo() *core.PlatformInfo {
	return d.info
}

// Find looks the selector up once.
func (d *Driver) Find(ctx context.Context, sel locator.Selector) (driver.Lookup, error) {
	strategy, value := buildSelector(sel)
	el, err := d.client.FindElement(ctx, strategy, value)
	if err != nil {
		if errors.Is(err, uiautomator2.ErrNoSuchElement) {
			return driver.NotFound{Selector: sel}, nil
		}
		return nil, fmt.Errorf("find %s: %w", sel.Describe(), err)
	}
	return driver.Found{Element: driver.Element{ID: el.ID(), Selector: sel}}, nil
}

// WaitFor polls Find until the selector resolves or timeout elapses.
func (d *Driver) WaitFor(ctx context.Context, sel locator.Selector, timeout time.Duration) (driver.Lookup, error) {
	logger.Debug("wait up to %v for %s", timeout, sel.Describe())
	return driver.Poll(ctx, sel, timeout, d.pollInterval, d.Find)
}

// Click taps an element returned by Find or WaitFor.
func (d *Driver) Click(ctx context.Context, el driver.Element) error {
	if err := d.client.ClickElement(ctx, el.ID); err != nil {
		return fmt.Errorf("click %s: %w", el.Selector.Name(), err)
	}
	return nil
}

// PressBack presses the system back key.
func (d *Driver) PressBack(ctx context.Context) error {
	return d.client.Back(ctx)
}

// PressHome presses the system home key.
func (d *Driver) PressHome(ctx context.Context) error {
	return d.client.Home(ctx)
}

// LauncherPackage returns the package of the home screen.
func (d *Driver) LauncherPackage(ctx context.Context) (string, error) {
	return d.device.LauncherPackage(ctx)
}

// CurrentPackage returns the foreground package.
func (d *Driver) CurrentPackage(ctx context.Context) (string, error) {
	return d.device.CurrentPackage(ctx)
}

// LaunchApp starts pkg in a cleared task.
func (d *Driver) LaunchApp(ctx context.Context, pkg string) error {
	logger.Info("launching %s", pkg)
	return d.device.LaunchApp(ctx, pkg)
}

// Close ends the UiAutomator2 session. The server keeps running.
func (d *Driver) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	return d.client.Close()
}

// CaptureScreenshot returns a PNG of the current screen.
func (d *Driver) CaptureScreenshot() ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), artifactTimeout)
	defer cancel()
	return d.client.Screenshot(ctx)
}

// CaptureHierarchy returns the current page source as XML.
func (d *Driver) CaptureHierarchy() ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), artifactTimeout)
	defer cancel()
	src, err := d.client.Source(ctx)
	if err != nil {
		return nil, err
	}
	return []byte(src), nil
}

// buildSelector maps a selector to a UiAutomator2 locator strategy.
// The app exposes its identifiers as content-descriptions.
func buildSelector(sel locator.Selector) (strategy, value string) {
	switch sel.Kind {
	case locator.KindText:
		return uiautomator2.StrategyUiAutomator, `new UiSelector().text("` + escapeUiAutomatorString(sel.Value) + `")`
	case locator.KindTextContains:
		return uiautomator2.StrategyUiAutomator, `new UiSelector().textContains("` + escapeUiAutomatorString(sel.Value) + `")`
	case locator.KindPackage:
		return uiautomator2.StrategyUiAutomator, `new UiSelector().packageName("` + escapeUiAutomatorString(sel.Value) + `")`
	default:
		return uiautomator2.StrategyAccessibilityID, sel.Value
	}
}

// escapeUiAutomatorString escapes a literal for a UiSelector string argument.
func escapeUiAutomatorString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
