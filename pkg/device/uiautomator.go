package device

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/Masterminds/semver"
)

// UiAutomator2 package names
const (
	UIAutomator2Server = "io.appium.uiautomator2.server"
	UIAutomator2Test   = "io.appium.uiautomator2.server.test"
)

// Port range for TCP forwarding (Windows)
const (
	portRangeStart = 6001
	portRangeEnd   = 7001
)

// UIAutomator2Config holds configuration for the UiAutomator2 server.
type UIAutomator2Config struct {
	SocketPath string        // Unix socket path (Linux/Mac only, default: /tmp/uia2-<serial>.sock)
	LocalPort  int           // TCP port (Windows only, default: auto-find free port)
	DevicePort int           // Port on device (default: 6790)
	Timeout    time.Duration // Startup timeout (default: 30s)
}

// DefaultUIAutomator2Config returns default configuration.
func DefaultUIAutomator2Config() UIAutomator2Config {
	return UIAutomator2Config{
		DevicePort: 6790,
		Timeout:    30 * time.Second,
	}
}

// StartUIAutomator2 starts the UiAutomator2 server on the device and
// forwards it to the host.
func (d *AndroidDevice) StartUIAutomator2(ctx context.Context, cfg UIAutomator2Config) error {
	if cfg.DevicePort == 0 {
		cfg.DevicePort = DefaultUIAutomator2Config().DevicePort
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultUIAutomator2Config().Timeout
	}

	for _, pkg := range []string{UIAutomator2Server, UIAutomator2Test} {
		if !d.IsInstalled(ctx, pkg) {
			return fmt.Errorf("UiAutomator2 server not installed: %s", pkg)
		}
	}

	d.StopUIAutomator2(ctx)

	if runtime.GOOS == "windows" {
		if err := d.setupTCPForward(ctx, cfg); err != nil {
			return err
		}
	} else {
		if err := d.setupSocketForward(ctx, cfg); err != nil {
			return err
		}
	}

	// nohup keeps instrumentation alive after the adb shell exits
	instrumentCmd := fmt.Sprintf(
		"nohup am instrument -w -e disableAnalytics true "+
			"%s/androidx.test.runner.AndroidJUnitRunner "+
			"> /dev/null 2>&1 &",
		UIAutomator2Test,
	)
	if _, err := d.Shell(ctx, instrumentCmd); err != nil {
		return fmt.Errorf("failed to start instrumentation: %w", err)
	}

	if err := d.waitForUIAutomator2Ready(ctx, cfg.Timeout); err != nil {
		d.StopUIAutomator2(ctx)
		return err
	}

	return nil
}

func (d *AndroidDevice) setupSocketForward(ctx context.Context, cfg UIAutomator2Config) error {
	socketPath := cfg.SocketPath
	if socketPath == "" {
		socketPath = d.DefaultSocketPath()
	}

	os.Remove(socketPath)

	if err := d.ForwardSocket(ctx, socketPath, cfg.DevicePort); err != nil {
		return fmt.Errorf("socket forward failed: %w", err)
	}
	d.socketPath = socketPath
	return nil
}

func (d *AndroidDevice) setupTCPForward(ctx context.Context, cfg UIAutomator2Config) error {
	localPort := cfg.LocalPort
	if localPort == 0 {
		port, err := findFreePort(portRangeStart, portRangeEnd)
		if err != nil {
			return err
		}
		localPort = port
	}

	if err := d.Forward(ctx, localPort, cfg.DevicePort); err != nil {
		return fmt.Errorf("port forward failed: %w", err)
	}
	d.localPort = localPort
	return nil
}

// findFreePort finds a free TCP port in the given range.
func findFreePort(start, end int) (int, error) {
	for port := start; port <= end; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err == nil {
			ln.Close()
			return port, nil
		}
	}
	return 0, fmt.Errorf("no free port found in range %d-%d", start, end)
}

// StopUIAutomator2 stops the server and removes its forwards.
func (d *AndroidDevice) StopUIAutomator2(ctx context.Context) {
	d.Shell(ctx, "am force-stop "+UIAutomator2Server)
	d.Shell(ctx, "am force-stop "+UIAutomator2Test)

	if d.socketPath != "" {
		d.RemoveSocketForward(ctx, d.socketPath)
		os.Remove(d.socketPath)
		d.socketPath = ""
	}
	if d.localPort != 0 {
		d.RemoveForward(ctx, d.localPort)
		d.localPort = 0
	}
}

// IsUIAutomator2Running checks if the server is responding.
func (d *AndroidDevice) IsUIAutomator2Running() bool {
	return d.checkHealth()
}

func (d *AndroidDevice) waitForUIAutomator2Ready(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if d.checkHealth() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	return fmt.Errorf("UiAutomator2 server not ready after %v", timeout)
}

func (d *AndroidDevice) checkHealth() bool {
	if d.socketPath != "" {
		client := &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var dialer net.Dialer
					return dialer.DialContext(ctx, "unix", d.socketPath)
				},
			},
			Timeout: 2 * time.Second,
		}
		return checkHealthWithClient(client, "http://localhost/status")
	}
	if d.localPort != 0 {
		client := &http.Client{Timeout: 2 * time.Second}
		return checkHealthWithClient(client, fmt.Sprintf("http://127.0.0.1:%d/status", d.localPort))
	}
	return false
}

func checkHealthWithClient(client *http.Client, url string) bool {
	resp, err := client.Get(url)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// InstallUIAutomator2 installs the server APKs found in apksDir.
func (d *AndroidDevice) InstallUIAutomator2(ctx context.Context, apksDir string) error {
	apks := []struct {
		pkg     string
		pattern string
	}{
		{UIAutomator2Server, "appium-uiautomator2-server-v*.apk"},
		{UIAutomator2Test, "appium-uiautomator2-server-debug-androidTest.apk"},
	}

	var errs []string
	for _, apk := range apks {
		if d.IsInstalled(ctx, apk.pkg) {
			continue
		}
		apkPath, err := findAPK(apksDir, apk.pattern)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", apk.pkg, err))
			continue
		}
		if err := d.Install(ctx, apkPath); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", apk.pkg, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("install UiAutomator2: %s", strings.Join(errs, "; "))
	}
	return nil
}

// findAPK finds an APK file matching the pattern in the given directory.
// When several match, the one with the highest -vX.Y.Z version wins.
func findAPK(dir, pattern string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no APK found matching %s in %s", pattern, dir)
	}

	best, bestVersion := matches[0], apkVersion(matches[0])
	for _, m := range matches[1:] {
		v := apkVersion(m)
		if v != nil && (bestVersion == nil || v.GreaterThan(bestVersion)) {
			best, bestVersion = m, v
		}
	}
	return best, nil
}

var apkVersionPattern = regexp.MustCompile(`-v(\d+\.\d+\.\d+)`)

// apkVersion extracts the version from names like appium-uiautomator2-server-v7.1.4.apk.
func apkVersion(path string) *semver.Version {
	m := apkVersionPattern.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return nil
	}
	v, err := semver.NewVersion(m[1])
	if err != nil {
		return nil
	}
	return v
}
