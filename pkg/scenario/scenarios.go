package scenario

import (
	"context"
	"fmt"
	"strings"

	"github.com/devicelab-dev/device-features-runner/pkg/core"
	"github.com/devicelab-dev/device-features-runner/pkg/driver"
	"github.com/devicelab-dev/device-features-runner/pkg/locator"
	"github.com/devicelab-dev/device-features-runner/pkg/logger"
)

// Scenario names.
const (
	Location   = "location"
	DeviceInfo = "device-info"
	Motion     = "motion"
	UIPresence = "ui-presence"
)

// Scenario is one end-to-end user journey on the Device Features screen.
type Scenario struct {
	Name        string
	Description string
	run         func(s *session) error
}

var scenarios = []Scenario{
	{Name: Location, Description: "get the current location and round trip to the map viewer", run: runLocation},
	{Name: DeviceInfo, Description: "show device information", run: runDeviceInfo},
	{Name: Motion, Description: "start motion sensors and read shake count", run: runMotion},
	{Name: UIPresence, Description: "all feature cards render", run: runUIPresence},
}

// All returns every scenario in run order.
func All() []Scenario {
	out := make([]Scenario, len(scenarios))
	copy(out, scenarios)
	return out
}

// Names returns the names of all scenarios in run order.
func Names() []string {
	names := make([]string, len(scenarios))
	for i, sc := range scenarios {
		names[i] = sc.Name
	}
	return names
}

// Get returns the scenario with the given name.
func Get(name string) (Scenario, bool) {
	for _, sc := range scenarios {
		if sc.Name == name {
			return sc, true
		}
	}
	return Scenario{}, false
}

// Select resolves names to scenarios, keeping the given order. An empty list
// selects every scenario.
func Select(names []string) ([]Scenario, error) {
	if len(names) == 0 {
		return All(), nil
	}
	out := make([]Scenario, 0, len(names))
	for _, name := range names {
		sc, ok := Get(name)
		if !ok {
			return nil, core.ErrInvalidConfig.WithMessage(
				fmt.Sprintf("unknown scenario %q (available: %s)", name, strings.Join(Names(), ", ")))
		}
		out = append(out, sc)
	}
	return out, nil
}

func runLocation(s *session) error {
	if err := s.navigateToDeviceFeatures(); err != nil {
		return err
	}
	if err := s.step("find location card", func(ctx context.Context) error {
		_, err := s.require(ctx, locator.Desc(locator.LocationCard), "Location feature card not found")
		return err
	}); err != nil {
		return err
	}

	var getLocation driver.Lookup
	if err := s.step("find get location button", func(ctx context.Context) (err error) {
		getLocation, err = s.optional(ctx, locator.Desc(locator.GetLocationButton))
		return err
	}); err != nil {
		return err
	}

	latitude := locator.TextContains(locator.TextLatitude)
	if button, ok := driver.ElementOf(getLocation); ok {
		if err := s.step("click get location button", func(ctx context.Context) error {
			return s.click(ctx, button)
		}); err != nil {
			return err
		}
		if err := s.step("wait for location", func(ctx context.Context) error {
			return s.expect(ctx, latitude, s.config.GPSTimeout, "Location not retrieved successfully")
		}); err != nil {
			return err
		}
	} else {
		if err := s.step("check location displayed", func(ctx context.Context) error {
			return s.present(ctx, latitude, "Location information not displayed")
		}); err != nil {
			return err
		}
	}

	var viewMap driver.Lookup
	if err := s.step("find view map button", func(ctx context.Context) (err error) {
		viewMap, err = s.optional(ctx, locator.Desc(locator.ViewMapButton))
		return err
	}); err != nil {
		return err
	}
	button, ok := driver.ElementOf(viewMap)
	if !ok {
		return nil
	}

	if err := s.step("click view map button", func(ctx context.Context) error {
		if err := s.click(ctx, button); err != nil {
			return err
		}
		if pkg, err := s.drv.CurrentPackage(ctx); err == nil {
			logger.Info("scenario %s: map opened in %s", s.result.Name, pkg)
		}
		return nil
	}); err != nil {
		return err
	}
	if err := s.step("press back", func(ctx context.Context) error {
		return s.command("press back", s.drv.PressBack(ctx))
	}); err != nil {
		return err
	}
	return s.step("wait for location card", func(ctx context.Context) error {
		return s.expect(ctx, locator.Desc(locator.LocationCard), s.config.DefaultTimeout,
			"Failed to return to app after viewing map")
	})
}

func runDeviceInfo(s *session) error {
	if err := s.navigateToDeviceFeatures(); err != nil {
		return err
	}
	if err := s.step("find device info card", func(ctx context.Context) error {
		_, err := s.require(ctx, locator.Desc(locator.DeviceInfoCard), "Device info card not found")
		return err
	}); err != nil {
		return err
	}

	var getInfo driver.Lookup
	if err := s.step("find get device info button", func(ctx context.Context) (err error) {
		getInfo, err = s.optional(ctx, locator.Desc(locator.GetDeviceInfoButton))
		return err
	}); err != nil {
		return err
	}

	platform := locator.TextContains(locator.TextPlatform)
	button, ok := driver.ElementOf(getInfo)
	if !ok {
		return s.step("check device info displayed", func(ctx context.Context) error {
			return s.present(ctx, platform, "Device information not displayed")
		})
	}
	if err := s.step("click get device info button", func(ctx context.Context) error {
		return s.click(ctx, button)
	}); err != nil {
		return err
	}
	return s.step("wait for device info", func(ctx context.Context) error {
		return s.expect(ctx, platform, s.config.DefaultTimeout, "Device info not retrieved successfully")
	})
}

// runMotion turns the sensors on and checks their readouts. Once the toggle
// has been clicked, the sensors are turned off again whatever happens next.
func runMotion(s *session) error {
	if err := s.navigateToDeviceFeatures(); err != nil {
		return err
	}
	if err := s.step("find motion card", func(ctx context.Context) error {
		_, err := s.require(ctx, locator.Desc(locator.MotionCard), "Motion feature card not found")
		return err
	}); err != nil {
		return err
	}

	var toggle driver.Element
	if err := s.step("find toggle motion button", func(ctx context.Context) (err error) {
		toggle, err = s.require(ctx, locator.Desc(locator.ToggleMotionButton), "Toggle motion button not found")
		return err
	}); err != nil {
		return err
	}
	if err := s.step("start sensors", func(ctx context.Context) error {
		return s.click(ctx, toggle)
	}); err != nil {
		return err
	}
	defer s.cleanupStep("stop sensors", func(ctx context.Context) error {
		return s.clickRequired(ctx, locator.Desc(locator.ToggleMotionButton), "Toggle motion button not found")
	})

	if err := s.step("wait for motion data", func(ctx context.Context) error {
		return s.expect(ctx, locator.Desc(locator.MotionDataDisplay), s.config.DefaultTimeout, "Motion data not displayed")
	}); err != nil {
		return err
	}
	return s.step("check shake count", func(ctx context.Context) error {
		return s.present(ctx, locator.Desc(locator.ShakeCount), "Shake count not displayed")
	})
}

func runUIPresence(s *session) error {
	if err := s.navigateToDeviceFeatures(); err != nil {
		return err
	}
	return s.step("check feature cards", func(ctx context.Context) error {
		var absent []string
		for _, card := range []string{locator.LocationCard, locator.DeviceInfoCard, locator.MotionCard} {
			sel := locator.Desc(card)
			l, err := s.drv.WaitFor(ctx, sel, s.config.DefaultTimeout)
			if err != nil {
				return s.command("find "+sel.Name(), err)
			}
			if _, ok := l.(driver.NotFound); ok {
				absent = append(absent, sel.Name())
			}
		}
		if len(absent) > 0 {
			return core.ErrElementMissing.
				WithMessage("Feature cards not found: " + strings.Join(absent, ", ")).
				WithDetails(map[string]interface{}{"missing": absent})
		}
		return nil
	})
}
