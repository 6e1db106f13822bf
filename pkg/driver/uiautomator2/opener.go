package uiautomator2

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/devicelab-dev/device-features-runner/pkg/core"
	"github.com/devicelab-dev/device-features-runner/pkg/driver"
	"github.com/devicelab-dev/device-features-runner/pkg/logger"
	"github.com/devicelab-dev/device-features-runner/pkg/uiautomator2"
)

// Opener creates one UiAutomator2 session per Open against a running server.
type Opener struct {
	// NewClient returns a client connected to the server, without a session.
	NewClient func() *uiautomator2.Client

	Device       Device
	Info         *core.PlatformInfo
	PollInterval time.Duration
}

var _ driver.Opener = (*Opener)(nil)

// Open creates a session and wraps it in a Driver.
func (o *Opener) Open(ctx context.Context) (driver.Driver, error) {
	client := o.NewClient()

	ready, err := client.Status(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("server status: %w", err)
	}
	if !ready {
		client.Close()
		return nil, fmt.Errorf("UiAutomator2 server is not ready")
	}

	caps := uiautomator2.Capabilities{PlatformName: "Android"}
	if o.Info != nil {
		caps.DeviceName = o.Info.DeviceName
	}
	if err := client.CreateSession(ctx, caps); err != nil {
		client.Close()
		return nil, fmt.Errorf("create session: %w", err)
	}
	logger.Info("session created: %s", client.SessionID())

	// lookups are polled client side
	if err := client.SetImplicitWait(ctx, 0); err != nil {
		logger.Warn("failed to reset implicit wait: %v", err)
	}

	if o.Info != nil && o.Info.ScreenWidth == 0 {
		o.fillScreenSize(ctx, client)
	}

	d := New(client, o.Info, o.Device)
	if o.PollInterval > 0 {
		d.SetPollInterval(o.PollInterval)
	}
	return d, nil
}

// fillScreenSize records the display size once per run. Failure only loses
// the size in the report.
func (o *Opener) fillScreenSize(ctx context.Context, client *uiautomator2.Client) {
	info, err := client.GetDeviceInfo(ctx)
	if err != nil {
		logger.Warn("device info unavailable: %v", err)
		return
	}
	w, h, ok := parseDisplaySize(info.RealDisplaySize)
	if !ok {
		logger.Warn("unexpected display size %q", info.RealDisplaySize)
		return
	}
	o.Info.ScreenWidth, o.Info.ScreenHeight = w, h
	if o.Info.DeviceName == "" && info.Model != "" {
		o.Info.DeviceName = info.Model
	}
}

// parseDisplaySize parses "1080x2400".
func parseDisplaySize(s string) (width, height int, ok bool) {
	ws, hs, found := strings.Cut(s, "x")
	if !found {
		return 0, 0, false
	}
	w, err1 := strconv.Atoi(strings.TrimSpace(ws))
	h, err2 := strconv.Atoi(strings.TrimSpace(hs))
	if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}
