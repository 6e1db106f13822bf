// Package device provides Android device access via ADB.
package device

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

// commandRunner runs a host command and returns stdout and stderr.
type commandRunner func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// AndroidDevice manages an Android device connection via ADB.
type AndroidDevice struct {
	serial     string
	adbPath    string
	socketPath string // Unix socket path for UiAutomator2 (Linux/Mac)
	localPort  int    // TCP port for UiAutomator2 (Windows)
	run        commandRunner
}

// Info contains basic device information.
type Info struct {
	Serial     string
	Model      string
	SDK        string
	Release    string
	Brand      string
	IsEmulator bool
}

// Entry is one line of `adb devices`.
type Entry struct {
	Serial string
	State  string
}

// New creates an AndroidDevice for the given serial.
// If serial is empty, the first connected device is used.
func New(ctx context.Context, serial string) (*AndroidDevice, error) {
	adbPath, err := findADB()
	if err != nil {
		return nil, err
	}

	d := &AndroidDevice{
		adbPath: adbPath,
		run:     execRunner,
	}

	if serial == "" {
		devices, err := d.listDevices(ctx)
		if err != nil {
			return nil, fmt.Errorf("no device specified and auto-detect failed: %w", err)
		}
		for _, e := range devices {
			if e.State == "device" {
				serial = e.Serial
				break
			}
		}
		if serial == "" {
			return nil, fmt.Errorf("no device specified and no connected devices found")
		}
	}
	d.serial = serial

	if err := d.waitForDevice(ctx, 5*time.Second); err != nil {
		return nil, fmt.Errorf("device not found: %w", err)
	}

	return d, nil
}

// ListDevices returns the devices known to adb.
func ListDevices(ctx context.Context) ([]Entry, error) {
	adbPath, err := findADB()
	if err != nil {
		return nil, err
	}
	d := &AndroidDevice{adbPath: adbPath, run: execRunner}
	return d.listDevices(ctx)
}

func (d *AndroidDevice) listDevices(ctx context.Context) ([]Entry, error) {
	out, err := d.adb(ctx, "devices")
	if err != nil {
		return nil, err
	}
	return parseDevices(out), nil
}

func parseDevices(out string) []Entry {
	var entries []Entry
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of") || strings.HasPrefix(line, "*") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) >= 2 {
			entries = append(entries, Entry{Serial: parts[0], State: parts[1]})
		}
	}
	return entries
}

// Serial returns the device serial number.
func (d *AndroidDevice) Serial() string {
	return d.serial
}

// Shell executes a shell command on the device.
func (d *AndroidDevice) Shell(ctx context.Context, cmd string) (string, error) {
	return d.adb(ctx, "shell", cmd)
}

// Install installs an APK on the device.
func (d *AndroidDevice) Install(ctx context.Context, apkPath string) error {
	_, err := d.adb(ctx, "install", "-r", "-g", apkPath)
	return err
}

// Uninstall removes a package from the device.
func (d *AndroidDevice) Uninstall(ctx context.Context, pkg string) error {
	_, err := d.adb(ctx, "uninstall", pkg)
	return err
}

// IsInstalled checks if a package is installed.
func (d *AndroidDevice) IsInstalled(ctx context.Context, pkg string) bool {
	out, err := d.Shell(ctx, "pm list packages "+pkg)
	if err != nil {
		return false
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == "package:"+pkg {
			return true
		}
	}
	return false
}

// Forward creates a port forward from local to device.
func (d *AndroidDevice) Forward(ctx context.Context, localPort, remotePort int) error {
	_, err := d.adb(ctx, "forward", fmt.Sprintf("tcp:%d", localPort), fmt.Sprintf("tcp:%d", remotePort))
	return err
}

// RemoveForward removes a port forward.
func (d *AndroidDevice) RemoveForward(ctx context.Context, localPort int) error {
	_, err := d.adb(ctx, "forward", "--remove", fmt.Sprintf("tcp:%d", localPort))
	return err
}

// ForwardSocket forwards a Unix socket to a device TCP port.
func (d *AndroidDevice) ForwardSocket(ctx context.Context, socketPath string, remotePort int) error {
	_, err := d.adb(ctx, "forward", fmt.Sprintf("localfilesystem:%s", socketPath), fmt.Sprintf("tcp:%d", remotePort))
	return err
}

// RemoveSocketForward removes a Unix socket forward.
func (d *AndroidDevice) RemoveSocketForward(ctx context.Context, socketPath string) error {
	_, err := d.adb(ctx, "forward", "--remove", fmt.Sprintf("localfilesystem:%s", socketPath))
	return err
}

// DefaultSocketPath returns the default Unix socket path for this device.
func (d *AndroidDevice) DefaultSocketPath() string {
	return fmt.Sprintf("/tmp/uia2-%s.sock", d.serial)
}

// SocketPath returns the current UiAutomator2 socket path (empty if not started or on Windows).
func (d *AndroidDevice) SocketPath() string {
	return d.socketPath
}

// LocalPort returns the current UiAutomator2 TCP port (0 if not started or on Linux/Mac).
func (d *AndroidDevice) LocalPort() int {
	return d.localPort
}

// Info returns device information.
func (d *AndroidDevice) Info(ctx context.Context) Info {
	info := Info{Serial: d.serial}
	getprop := func(name string) string {
		out, err := d.Shell(ctx, "getprop "+name)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(out)
	}

	info.Model = getprop("ro.product.model")
	info.SDK = getprop("ro.build.version.sdk")
	info.Release = getprop("ro.build.version.release")
	info.Brand = getprop("ro.product.brand")
	info.IsEmulator = getprop("ro.kernel.qemu") == "1" || strings.HasPrefix(d.serial, "emulator-")

	return info
}

// LauncherPackage returns the package that handles the HOME intent.
func (d *AndroidDevice) LauncherPackage(ctx context.Context) (string, error) {
	out, err := d.Shell(ctx, "cmd package resolve-activity --brief -a android.intent.action.MAIN -c android.intent.category.HOME")
	if err != nil {
		return "", err
	}
	component := lastLine(out)
	pkg, _, ok := strings.Cut(component, "/")
	if !ok || pkg == "" {
		return "", fmt.Errorf("could not resolve launcher from %q", strings.TrimSpace(out))
	}
	return pkg, nil
}

// LaunchApp starts the package's launcher activity in a fresh task.
// Any running instance is stopped first.
func (d *AndroidDevice) LaunchApp(ctx context.Context, pkg string) error {
	out, err := d.Shell(ctx, "cmd package resolve-activity --brief -c android.intent.category.LAUNCHER "+pkg)
	component := lastLine(out)
	if err != nil || !strings.HasPrefix(component, pkg+"/") {
		// resolve-activity is missing on old releases; monkey does not need the activity name
		d.Shell(ctx, "am force-stop "+pkg)
		if _, err := d.Shell(ctx, fmt.Sprintf("monkey -p %s -c android.intent.category.LAUNCHER 1", pkg)); err != nil {
			return fmt.Errorf("launch %s: %w", pkg, err)
		}
		return nil
	}

	cmd := fmt.Sprintf("am start -W -S --activity-new-task --activity-clear-task -n %s", component)
	out, err = d.Shell(ctx, cmd)
	if err != nil {
		return fmt.Errorf("launch %s: %w", pkg, err)
	}
	if strings.Contains(out, "Error:") {
		return fmt.Errorf("launch %s: %s", pkg, strings.TrimSpace(out))
	}
	return nil
}

// StopApp force-stops a package.
func (d *AndroidDevice) StopApp(ctx context.Context, pkg string) error {
	_, err := d.Shell(ctx, "am force-stop "+pkg)
	return err
}

var (
	focusWindowRe = regexp.MustCompile(`mCurrentFocus=Window\{\S+ \S+ ([A-Za-z0-9_.]+)`)
	focusAppRe    = regexp.MustCompile(`mFocusedApp=.*\{\S+ \S+ ([A-Za-z0-9_.]+)/`)
)

// CurrentPackage returns the package owning the focused window.
func (d *AndroidDevice) CurrentPackage(ctx context.Context) (string, error) {
	out, err := d.Shell(ctx, "dumpsys window")
	if err != nil {
		return "", err
	}
	pkg := parseFocusedPackage(out)
	if pkg == "" {
		return "", fmt.Errorf("no focused window")
	}
	return pkg, nil
}

func parseFocusedPackage(dumpsys string) string {
	if m := focusWindowRe.FindStringSubmatch(dumpsys); m != nil {
		return m[1]
	}
	if m := focusAppRe.FindStringSubmatch(dumpsys); m != nil {
		return m[1]
	}
	return ""
}

func lastLine(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

// adb executes an ADB command against this device.
func (d *AndroidDevice) adb(ctx context.Context, args ...string) (string, error) {
	cmdArgs := make([]string, 0, len(args)+2)
	if d.serial != "" {
		cmdArgs = append(cmdArgs, "-s", d.serial)
	}
	cmdArgs = append(cmdArgs, args...)

	stdout, stderr, err := d.run(ctx, d.adbPath, cmdArgs...)
	if err != nil {
		errMsg := string(stderr)
		if errMsg == "" {
			errMsg = string(stdout)
		}
		return "", fmt.Errorf("adb %s: %w: %s", strings.Join(args, " "), err, errMsg)
	}

	return string(stdout), nil
}

// waitForDevice waits for the device to be available.
func (d *AndroidDevice) waitForDevice(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if d.isConnected(ctx) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	return fmt.Errorf("timeout waiting for device %s", d.serial)
}

// isConnected checks if the device is connected.
func (d *AndroidDevice) isConnected(ctx context.Context) bool {
	out, err := d.adb(ctx, "get-state")
	if err != nil {
		return false
	}
	return strings.TrimSpace(out) == "device"
}

// findADB locates the ADB binary.
func findADB() (string, error) {
	if path, err := exec.LookPath("adb"); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("adb not found in PATH; ensure Android SDK platform-tools are installed")
}
