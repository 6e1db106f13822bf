// Package emulator boots and shuts down Android Virtual Devices for a run.
package emulator

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/devicelab-dev/device-features-runner/pkg/logger"
)

// First console port the emulator uses. Ports go up by two.
const (
	firstConsolePort = 5554
	lastConsolePort  = 5682
)

// Poll intervals while waiting on the emulator.
var (
	statePollInterval = 500 * time.Millisecond
	bootPollInterval  = time.Second
	shutdownTimeout   = 30 * time.Second
)

// runner runs adb and returns its stdout.
type runner func(ctx context.Context, args ...string) (string, error)

func adbRunner(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "adb", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("adb %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return string(out), nil
}

// process is a started emulator process.
type process interface {
	Kill() error
}

// starter launches the emulator binary.
type starter func(path string, args ...string) (process, error)

func execStarter(path string, args ...string) (process, error) {
	cmd := exec.Command(path, args...) //#nosec G204 -- emulator binary from the SDK
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	// reap the process when it exits
	go cmd.Wait()
	return cmd.Process, nil
}

// Emulator is an emulator started by this process.
type Emulator struct {
	AVD      string
	Serial   string
	BootTime time.Duration

	proc process
	adb  runner
}

// BootStatus represents emulator boot state
type BootStatus struct {
	StateReady     bool // adb get-state == "device"
	BootCompleted  bool // sys.boot_completed == "1"
	PackageManager bool // pm get-max-users succeeds
}

// IsFullyReady returns true if all boot checks passed
func (bs BootStatus) IsFullyReady() bool {
	return bs.StateReady && bs.BootCompleted && bs.PackageManager
}

// Booter starts emulators. The zero value is not usable, use NewBooter.
type Booter struct {
	emulatorPath string
	adb          runner
	start        starter
}

// NewBooter locates the emulator binary of the Android SDK.
func NewBooter() (*Booter, error) {
	path, err := FindEmulatorBinary()
	if err != nil {
		return nil, err
	}
	return &Booter{emulatorPath: path, adb: adbRunner, start: execStarter}, nil
}

// FindEmulatorBinary locates the Android emulator binary
func FindEmulatorBinary() (string, error) {
	if home := androidHome(); home != "" {
		for _, p := range []string{
			filepath.Join(home, "emulator", "emulator"),
			filepath.Join(home, "tools", "emulator"), // old layout
		} {
			if _, err := os.Stat(p); err == nil {
				return p, nil
			}
		}
	}
	if p, err := exec.LookPath("emulator"); err == nil {
		return p, nil
	}
	return "", fmt.Errorf("emulator not found. Set ANDROID_HOME or add emulator to PATH")
}

func androidHome() string {
	for _, env := range []string{"ANDROID_HOME", "ANDROID_SDK_ROOT", "ANDROID_SDK_HOME"} {
		if home := os.Getenv(env); home != "" {
			return home
		}
	}
	return ""
}

// ListAVDs returns the names of the available Android Virtual Devices.
func (b *Booter) ListAVDs(ctx context.Context) ([]string, error) {
	out, err := exec.CommandContext(ctx, b.emulatorPath, "-list-avds").Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list AVDs: %w", err)
	}
	return parseAVDs(string(out)), nil
}

func parseAVDs(out string) []string {
	var avds []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		// the emulator prints INFO lines before the list on some versions
		if line == "" || strings.HasPrefix(line, "INFO") {
			continue
		}
		avds = append(avds, line)
	}
	return avds
}

// Boot starts avd on the first free console port and waits until the
// package manager answers, or timeout elapses.
func (b *Booter) Boot(ctx context.Context, avd string, timeout time.Duration) (*Emulator, error) {
	port, err := b.freeConsolePort(ctx)
	if err != nil {
		return nil, err
	}
	serial := fmt.Sprintf("emulator-%d", port)

	logger.Info("Starting emulator: %s on port %d", avd, port)
	started := time.Now()
	proc, err := b.start(b.emulatorPath,
		"-avd", avd,
		"-port", fmt.Sprintf("%d", port),
		"-netdelay", "none",
		"-netspeed", "full",
		"-no-boot-anim",
		"-no-snapshot-load",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start emulator process: %w", err)
	}

	emu := &Emulator{AVD: avd, Serial: serial, proc: proc, adb: b.adb}
	if err := emu.waitForBoot(ctx, timeout); err != nil {
		proc.Kill()
		return nil, err
	}
	emu.BootTime = time.Since(started)
	logger.Info("Emulator %s booted in %v", serial, emu.BootTime)
	return emu, nil
}

// freeConsolePort returns the first console port no attached emulator uses.
func (b *Booter) freeConsolePort(ctx context.Context) (int, error) {
	out, err := b.adb(ctx, "devices")
	if err != nil {
		return 0, err
	}
	used := map[int]bool{}
	for _, line := range strings.Split(out, "\n") {
		var port int
		if _, err := fmt.Sscanf(strings.TrimSpace(line), "emulator-%d", &port); err == nil {
			used[port] = true
		}
	}
	for port := firstConsolePort; port <= lastConsolePort; port += 2 {
		if !used[port] {
			return port, nil
		}
	}
	return 0, fmt.Errorf("no free emulator port in %d-%d", firstConsolePort, lastConsolePort)
}

// CheckBootStatus checks all boot conditions of the emulator.
func (e *Emulator) CheckBootStatus(ctx context.Context) BootStatus {
	var status BootStatus
	state, err := e.adb(ctx, "-s", e.Serial, "get-state")
	status.StateReady = err == nil && strings.TrimSpace(state) == "device"
	if !status.StateReady {
		return status
	}

	boot, err := e.adb(ctx, "-s", e.Serial, "shell", "getprop", "sys.boot_completed")
	status.BootCompleted = err == nil && strings.TrimSpace(boot) == "1"

	_, err = e.adb(ctx, "-s", e.Serial, "shell", "pm", "get-max-users")
	status.PackageManager = err == nil
	return status
}

func (e *Emulator) waitForBoot(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var status BootStatus
	for {
		status = e.CheckBootStatus(ctx)
		logger.Debug("Boot status for %s: state=%v, boot=%v, pm=%v",
			e.Serial, status.StateReady, status.BootCompleted, status.PackageManager)
		if status.IsFullyReady() {
			return nil
		}

		interval := bootPollInterval
		if !status.StateReady {
			interval = statePollInterval
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("emulator boot timeout after %v (state:%v boot:%v pm:%v)",
				timeout, status.StateReady, status.BootCompleted, status.PackageManager)
		case <-time.After(interval):
		}
	}
}

// Shutdown asks the emulator to exit and kills its process when it does not
// leave adb in time.
func (e *Emulator) Shutdown(ctx context.Context) error {
	logger.Info("Shutting down emulator: %s", e.Serial)
	if _, err := e.adb(ctx, "-s", e.Serial, "emu", "kill"); err != nil {
		logger.Warn("adb emu kill failed for %s: %v", e.Serial, err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	for {
		if _, err := e.adb(waitCtx, "-s", e.Serial, "get-state"); err != nil {
			if waitCtx.Err() == nil {
				logger.Info("Emulator shutdown confirmed: %s", e.Serial)
				return nil
			}
		}
		select {
		case <-waitCtx.Done():
			logger.Warn("Emulator shutdown timeout, killing process: %s", e.Serial)
			if err := e.proc.Kill(); err != nil {
				return fmt.Errorf("kill emulator %s: %w", e.Serial, err)
			}
			return nil
		case <-time.After(statePollInterval):
		}
	}
}
