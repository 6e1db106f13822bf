package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/device-features-runner/pkg/core"
	"github.com/devicelab-dev/device-features-runner/pkg/device"
	"github.com/devicelab-dev/device-features-runner/pkg/driver"
	"github.com/devicelab-dev/device-features-runner/pkg/locator"
	"github.com/devicelab-dev/device-features-runner/pkg/scenario"
)

var locatorsCommand = &cli.Command{
	Name:  "locators",
	Usage: "Print the accessibility identifiers the scenarios use",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Print as JSON",
		},
	},
	Action: func(c *cli.Context) error {
		return printLocators(c.Bool("json"))
	},
}

var scenariosCommand = &cli.Command{
	Name:  "scenarios",
	Usage: "List the available scenarios",
	Action: func(c *cli.Context) error {
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		for _, sc := range scenario.All() {
			fmt.Fprintf(w, "%s\t%s\n", sc.Name, sc.Description)
		}
		return w.Flush()
	},
}

var devicesCommand = &cli.Command{
	Name:  "devices",
	Usage: "List devices known to adb",
	Action: func(c *cli.Context) error {
		entries, err := device.ListDevices(c.Context)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintln(out, "No devices attached")
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\n", e.Serial, e.State)
		}
		return w.Flush()
	},
}

var hierarchyCommand = &cli.Command{
	Name:  "hierarchy",
	Usage: "Dump the UI hierarchy of the current screen",
	Description: `Print the UiAutomator2 page source of whatever is on screen. Useful to check
which content-descriptions the app exposes.`,
	Action: runHierarchy,
}

func printLocators(asJSON bool) error {
	locators := locator.All()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(locators)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%sNAME\tIDENTIFIER%s\n", color(colorBold), color(colorReset))
	for _, l := range locators {
		fmt.Fprintf(w, "%s\t%s\n", l.Name, l.Value)
	}
	return w.Flush()
}

func runHierarchy(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	dir, err := os.MkdirTemp("", "device-features-hierarchy")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	session, err := startAndroid(c.Context, cfg, dir)
	if err != nil {
		return err
	}
	defer session.Close()

	source, err := dumpHierarchy(c.Context, session.Opener)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, string(source))
	return nil
}

// dumpHierarchy opens a session and returns the page source.
func dumpHierarchy(ctx context.Context, o driver.Opener) ([]byte, error) {
	drv, err := o.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open driver: %w", err)
	}
	defer drv.Close()

	collector, ok := drv.(core.ArtifactCollector)
	if !ok {
		return nil, fmt.Errorf("driver cannot capture the UI hierarchy")
	}
	return collector.CaptureHierarchy()
}
