// Package cli provides the command-line interface for device-features-runner.
package cli

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// Version is set at build time.
var Version = "dev"

// GlobalFlags are available to all commands.
var GlobalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "device",
		Aliases: []string{"serial", "s"},
		Usage:   "adb serial of the device to run on (default: first connected device)",
		EnvVars: []string{"ANDROID_SERIAL"},
	},
	&cli.StringFlag{
		Name:    "app-id",
		Usage:   "Package of the app under test",
		EnvVars: []string{"DEVICE_FEATURES_APP_ID"},
	},
	&cli.StringFlag{
		Name:    "config",
		Usage:   "Path to config.yaml (default: ./config.yaml when present)",
		EnvVars: []string{"DEVICE_FEATURES_CONFIG"},
	},
	&cli.BoolFlag{
		Name:    "verbose",
		Usage:   "Enable verbose logging",
		EnvVars: []string{"DEVICE_FEATURES_VERBOSE"},
	},
	&cli.BoolFlag{
		Name:  "no-ansi",
		Usage: "Disable ANSI colors",
	},
}

// NewApp builds the CLI application.
func NewApp() *cli.App {
	return &cli.App{
		Name:    "device-features-runner",
		Usage:   "UI automation for the Device Features screen",
		Version: Version,
		Description: `device-features-runner drives the Device Features screen of the app
on an Android device through UiAutomator2 and reports each scenario.

Examples:
  device-features-runner run
  device-features-runner run location motion --output ./out
  device-features-runner --device emulator-5554 check
  device-features-runner locators`,
		Flags: GlobalFlags,
		Before: func(c *cli.Context) error {
			if c.Bool("no-ansi") {
				colorsEnabled = false
			}
			return nil
		},
		Commands: []*cli.Command{
			runCommand,
			checkCommand,
			locatorsCommand,
			scenariosCommand,
			devicesCommand,
			hierarchyCommand,
		},
	}
}

// Execute runs the CLI.
func Execute() {
	if err := NewApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
