package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/device-features-runner/pkg/config"
	"github.com/devicelab-dev/device-features-runner/pkg/core"
	"github.com/devicelab-dev/device-features-runner/pkg/driver"
	"github.com/devicelab-dev/device-features-runner/pkg/logger"
	"github.com/devicelab-dev/device-features-runner/pkg/report"
	"github.com/devicelab-dev/device-features-runner/pkg/scenario"
)

// Name of the driver recorded in reports.
const driverName = "uiautomator2"

var reportFlags = []cli.Flag{
	&cli.StringFlag{
		Name:  "output",
		Usage: "Output directory for reports (default: ./reports)",
	},
	&cli.BoolFlag{
		Name:  "flatten",
		Usage: "Don't create timestamp subfolder (requires --output)",
	},
	&cli.BoolFlag{
		Name:  "allure",
		Usage: "Also write Allure results to <output>/allure-results",
	},
}

var emulatorFlags = []cli.Flag{
	&cli.StringFlag{
		Name:  "avd",
		Usage: "Boot this Android Virtual Device when no --device is given",
	},
	&cli.IntFlag{
		Name:  "boot-timeout",
		Usage: "Emulator boot timeout in seconds",
		Value: 180,
	},
	&cli.BoolFlag{
		Name:  "shutdown-after",
		Usage: "Shut down the emulator booted with --avd after the run",
		Value: true,
	},
}

var runCommand = &cli.Command{
	Name:      "run",
	Usage:     "Run Device Features scenarios on a device",
	ArgsUsage: "[scenario]...",
	Description: `Run the named scenarios, or all of them, in order. Each scenario starts
from the launcher, launches the app and opens the Device Features screen.

Reports are generated in the output directory:
  - Default: ./reports/<timestamp>/
  - With --output: <output>/<timestamp>/
  - With --output and --flatten: <output>/ (no timestamp subfolder)

Examples:
  device-features-runner run
  device-features-runner run location device-info
  device-features-runner run --output ./my-reports --flatten --allure`,
	Flags:  append(append([]cli.Flag{}, reportFlags...), emulatorFlags...),
	Action: func(c *cli.Context) error { return runScenarios(c, c.Args().Slice()) },
}

var checkCommand = &cli.Command{
	Name:  "check",
	Usage: "Check that every feature card is present",
	Description: `Run only the ui-presence scenario. Useful as a smoke test after an app
deployment.`,
	Flags:  append(append([]cli.Flag{}, reportFlags...), emulatorFlags...),
	Action: func(c *cli.Context) error { return runScenarios(c, []string{scenario.UIPresence}) },
}

// loadConfig reads the workspace config and applies command-line overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := c.String("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadFromDir(".")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if v := c.String("device"); v != "" {
		cfg.Device = v
	}
	if v := c.String("app-id"); v != "" {
		cfg.AppID = v
	}
	if v := c.String("output"); v != "" {
		cfg.OutputDir = v
	}
	if c.Bool("flatten") {
		if !c.IsSet("output") {
			return nil, fmt.Errorf("--flatten requires --output to be specified")
		}
		cfg.Flatten = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runScenarios(c *cli.Context, names []string) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if len(names) > 0 {
		cfg.Scenarios = names
		if _, err := scenario.Select(names); err != nil {
			return err
		}
	}

	printBanner()

	outputDir := report.OutputDir(cfg.OutputDir, cfg.Flatten, time.Now())
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	if err := logger.Init(filepath.Join(outputDir, "runner.log")); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()
	logger.SetDebug(c.Bool("verbose"))
	logger.Info("device-features-runner %s, app %s, output %s", Version, cfg.AppID, outputDir)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if avd := c.String("avd"); avd != "" && cfg.Device == "" {
		emu, err := bootEmulator(ctx, avd, time.Duration(c.Int("boot-timeout"))*time.Second)
		if err != nil {
			return err
		}
		cfg.Device = emu.Serial
		if c.Bool("shutdown-after") {
			defer func() {
				if err := emu.Shutdown(context.Background()); err != nil {
					logger.Warn("shutdown emulator: %v", err)
				}
			}()
		}
	}

	session, err := startAndroid(ctx, cfg, outputDir)
	if err != nil {
		return err
	}
	defer session.Close()

	suite, err := executeSuite(ctx, cfg, session.Opener, outputDir, session.Info, c.Bool("allure"))
	if err != nil {
		return err
	}

	printSummary(suite)
	fmt.Fprintf(out, "\n  Report: %s\n", outputDir)
	fmt.Fprintf(out, "  Log:    %s\n\n", logger.Path())

	if !suite.Success() {
		return cli.Exit(fmt.Sprintf("%d of %d scenarios failed", suite.FailedScenarios, suite.TotalScenarios), 1)
	}
	return nil
}

// executeSuite runs the configured scenarios through opener and writes the
// reports. info is read after the run since sessions may complete it.
func executeSuite(ctx context.Context, cfg *config.Config, opener driver.Opener, outputDir string, info *core.PlatformInfo, allure bool) (*core.SuiteResult, error) {
	runner := scenario.New(opener, scenario.Config{
		AppID:           cfg.AppID,
		DefaultTimeout:  cfg.DefaultTimeout(),
		GPSTimeout:      cfg.GPSTimeout(),
		Artifacts:       cfg.Artifacts,
		OnScenarioStart: onScenarioStart,
		OnStepComplete:  onStepComplete,
		OnScenarioEnd:   onScenarioEnd,
	})

	suite, err := runner.RunAll(ctx, cfg.Scenarios)
	if err != nil {
		return nil, err
	}

	meta := report.BuilderConfig{
		Device:        deviceReport(info),
		RunnerVersion: Version,
		DriverName:    driverName,
	}
	if _, err := report.Write(outputDir, suite, meta); err != nil {
		return suite, fmt.Errorf("write report: %w", err)
	}
	if allure {
		if err := report.GenerateAllure(outputDir); err != nil {
			logger.Warn("allure report: %v", err)
		}
	}
	return suite, nil
}

func deviceReport(info *core.PlatformInfo) report.Device {
	if info == nil {
		return report.Device{}
	}
	return report.Device{
		ID:          info.DeviceID,
		Name:        info.DeviceName,
		Platform:    info.Platform,
		OSVersion:   info.OSVersion,
		IsSimulator: info.IsSimulator,
		Screen:      screenSize(info),
	}
}

func screenSize(info *core.PlatformInfo) string {
	if info.ScreenWidth == 0 || info.ScreenHeight == 0 {
		return ""
	}
	return fmt.Sprintf("%dx%d", info.ScreenWidth, info.ScreenHeight)
}
