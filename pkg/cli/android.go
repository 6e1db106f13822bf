package cli

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/devicelab-dev/device-features-runner/pkg/config"
	"github.com/devicelab-dev/device-features-runner/pkg/core"
	"github.com/devicelab-dev/device-features-runner/pkg/device"
	uia2driver "github.com/devicelab-dev/device-features-runner/pkg/driver/uiautomator2"
	"github.com/devicelab-dev/device-features-runner/pkg/emulator"
	"github.com/devicelab-dev/device-features-runner/pkg/logger"
	"github.com/devicelab-dev/device-features-runner/pkg/uiautomator2"
)

// androidSession is a device with a running UiAutomator2 server.
type androidSession struct {
	Device *device.AndroidDevice
	Info   *core.PlatformInfo
	Opener *uia2driver.Opener
}

// Close stops the UiAutomator2 server.
func (s *androidSession) Close() {
	s.Device.StopUIAutomator2(context.Background())
}

// startAndroid connects to the device, makes sure the UiAutomator2 server is
// installed and running, and returns an opener creating one session per scenario.
func startAndroid(ctx context.Context, cfg *config.Config, outputDir string) (*androidSession, error) {
	if cfg.Device != "" {
		printSetupStep(fmt.Sprintf("Connecting to device %s...", cfg.Device))
		logger.Info("Connecting to Android device: %s", cfg.Device)
	} else {
		printSetupStep("Connecting to device...")
		logger.Info("Auto-detecting Android device...")
	}
	dev, err := device.New(ctx, cfg.Device)
	if err != nil {
		logger.Error("Failed to connect to device: %v", err)
		return nil, fmt.Errorf("connect to device: %w", err)
	}

	info := dev.Info(ctx)
	logger.Info("Device info: %s %s, Android %s (SDK %s), Serial %s, Emulator: %v",
		info.Brand, info.Model, info.Release, info.SDK, info.Serial, info.IsEmulator)
	printSetupSuccess(fmt.Sprintf("Connected to %s %s (Android %s)", info.Brand, info.Model, info.Release))

	// fail fast when another run holds the device
	if socketPath := dev.DefaultSocketPath(); isSocketInUse(socketPath) {
		return nil, fmt.Errorf("device %s is already in use\n"+
			"Another device-features-runner instance may be using this device.\n"+
			"Socket: %s", dev.Serial(), socketPath)
	}

	// each scenario reports the failed launch itself
	if !dev.IsInstalled(ctx, cfg.AppID) {
		logger.Warn("app %s is not installed on %s", cfg.AppID, dev.Serial())
		fmt.Fprintf(out, "  %s⚠%s App %s is not installed\n", color(colorYellow), color(colorReset), cfg.AppID)
	}

	if !dev.IsInstalled(ctx, device.UIAutomator2Server) || !dev.IsInstalled(ctx, device.UIAutomator2Test) {
		printSetupStep("Installing UiAutomator2 APKs...")
		if err := dev.InstallUIAutomator2(ctx, cfg.APKsDir()); err != nil {
			return nil, err
		}
		printSetupSuccess("UiAutomator2 installed")
	}

	printSetupStep("Starting UiAutomator2 server...")
	logger.Info("Starting UiAutomator2 server on device %s", dev.Serial())
	if err := dev.StartUIAutomator2(ctx, device.UIAutomator2Config{
		DevicePort: cfg.UIAutomator2.Port,
		Timeout:    cfg.UIA2StartupTimeout(),
	}); err != nil {
		logger.Error("Failed to start UiAutomator2: %v", err)
		return nil, fmt.Errorf("start UiAutomator2: %w", err)
	}
	printSetupSuccess("UiAutomator2 server started")

	socketPath, localPort := dev.SocketPath(), dev.LocalPort()
	clientLog := filepath.Join(outputDir, "client.log")
	newClient := func() *uiautomator2.Client {
		var client *uiautomator2.Client
		if socketPath != "" {
			client = uiautomator2.NewClient(socketPath)
		} else {
			client = uiautomator2.NewClientTCP(localPort)
		}
		client.SetLogPath(clientLog)
		return client
	}

	platformInfo := &core.PlatformInfo{
		Platform:    "android",
		DeviceID:    info.Serial,
		DeviceName:  fmt.Sprintf("%s %s", info.Brand, info.Model),
		OSVersion:   info.Release,
		IsSimulator: info.IsEmulator,
		AppID:       cfg.AppID,
	}

	return &androidSession{
		Device: dev,
		Info:   platformInfo,
		Opener: &uia2driver.Opener{
			NewClient:    newClient,
			Device:       dev,
			Info:         platformInfo,
			PollInterval: cfg.PollInterval(),
		},
	}, nil
}

// bootEmulator starts avd and waits for it to finish booting.
func bootEmulator(ctx context.Context, avd string, timeout time.Duration) (*emulator.Emulator, error) {
	printSetupStep(fmt.Sprintf("Booting emulator %s...", avd))
	booter, err := emulator.NewBooter()
	if err != nil {
		return nil, err
	}

	avds, err := booter.ListAVDs(ctx)
	if err != nil {
		return nil, err
	}
	known := false
	for _, name := range avds {
		known = known || name == avd
	}
	if !known {
		return nil, fmt.Errorf("AVD %q not found (available: %s)", avd, strings.Join(avds, ", "))
	}

	emu, err := booter.Boot(ctx, avd, timeout)
	if err != nil {
		return nil, fmt.Errorf("boot emulator: %w", err)
	}
	printSetupSuccess(fmt.Sprintf("Emulator %s booted in %s", emu.Serial, formatDuration(emu.BootTime)))
	return emu, nil
}

// isSocketInUse checks if a Unix socket is in use by attempting to connect to it.
// A socket file nobody listens on is stale and gets removed.
func isSocketInUse(socketPath string) bool {
	if socketPath == "" {
		return false
	}
	if _, err := os.Stat(socketPath); os.IsNotExist(err) {
		return false
	}

	conn, err := net.DialTimeout("unix", socketPath, 500*time.Millisecond)
	if err != nil {
		os.Remove(socketPath)
		return false
	}
	conn.Close()
	return true
}
