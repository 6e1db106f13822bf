package mock

import (
	"fmt"
	"time"

	"github.com/devicelab-dev/device-features-runner/pkg/locator"
)

// Texts rendered by the modelled app.
const (
	LocationText   = "Latitude: 37.4220, Longitude: -122.0841"
	DeviceInfoText = "Platform: android"
	StartSensors   = "Start Sensors"
	StopSensors    = "Stop Sensors"
	MapsPackage    = "com.google.android.apps.maps"
)

// featuresScreen marks the Device Features screen as rendered.
const featuresScreen = "device-features-screen"

// App describes how the modelled Device Features app renders.
type App struct {
	ID string

	// Cards rendered on the Device Features screen, by identifier.
	Cards []string

	GetLocationButton bool
	ViewMapButton     bool
	LocationPreloaded bool          // location text shown without asking
	GPSDelay          time.Duration // time until a requested fix shows

	GetDeviceInfoButton bool
	DeviceInfoPreloaded bool

	MotionData bool // motion-data-display appears when sensors start
	ShakeCount bool // shake-count appears when sensors start
}

// DefaultApp returns an app that renders every element and answers at once.
func DefaultApp(id string) App {
	return App{
		ID:                  id,
		Cards:               []string{locator.LocationCard, locator.DeviceInfoCard, locator.MotionCard},
		GetLocationButton:   true,
		ViewMapButton:       true,
		GPSDelay:            2 * time.Second,
		GetDeviceInfoButton: true,
		MotionData:          true,
		ShakeCount:          true,
	}
}

// NewApp creates a driver on the launcher home screen with app installed.
func NewApp(launcher string, app App) *Driver {
	d := New(launcher)
	app.Install(d)
	return d
}

// Install scripts the app's screens and transitions onto d.
func (a App) Install(d *Driver) {
	d.OnLaunch(func(d *Driver, pkg string) error {
		if pkg != a.ID {
			return fmt.Errorf("unable to resolve launcher activity for %s", pkg)
		}
		d.Start(pkg)
		d.Show(locator.Desc(locator.NavMenu))
		return nil
	})

	d.OnClick(locator.Desc(locator.NavMenu), func(d *Driver) {
		d.Show(locator.NavItem("device-features").Selector())
		d.Show(locator.Text(locator.TextDeviceFeatures))
	})
	d.OnClick(locator.Text(locator.TextDeviceFeatures), a.openFeatures)
	d.OnClick(locator.NavItem("device-features").Selector(), a.openFeatures)

	d.OnClick(locator.Desc(locator.GetLocationButton), func(d *Driver) {
		d.Hide(locator.Desc(locator.GetLocationButton))
		d.Show(locator.Desc(locator.RefreshLocationButton))
		d.ShowAfter(locator.Desc(locator.LocationDisplay), a.GPSDelay)
		d.ShowAfter(locator.Text(LocationText), a.GPSDelay)
	})
	d.OnClick(locator.Desc(locator.ViewMapButton), func(d *Driver) {
		d.Switch(MapsPackage)
	})

	d.OnClick(locator.Desc(locator.GetDeviceInfoButton), func(d *Driver) {
		d.Hide(locator.Desc(locator.GetDeviceInfoButton))
		d.Show(locator.Desc(locator.RefreshDeviceInfoButton))
		d.Show(locator.Text(DeviceInfoText))
	})

	d.OnClick(locator.Desc(locator.ToggleMotionButton), func(d *Driver) {
		if d.Visible(locator.Text(StartSensors)) {
			d.Hide(locator.Text(StartSensors))
			d.Show(locator.Text(StopSensors))
			if a.MotionData {
				d.Show(locator.Desc(locator.MotionDataDisplay))
			}
			if a.ShakeCount {
				d.Show(locator.Desc(locator.ShakeCount))
			}
			return
		}
		d.Hide(locator.Text(StopSensors))
		d.Hide(locator.Desc(locator.MotionDataDisplay))
		d.Hide(locator.Desc(locator.ShakeCount))
		d.Show(locator.Text(StartSensors))
	})
}

// openFeatures renders the Device Features screen. Opening it again keeps
// the state already on screen.
func (a App) openFeatures(d *Driver) {
	d.Hide(locator.NavItem("device-features").Selector())
	d.Hide(locator.Text(locator.TextDeviceFeatures))
	if d.Visible(locator.Desc(featuresScreen)) {
		return
	}
	d.Show(locator.Desc(featuresScreen))

	for _, card := range a.Cards {
		d.Show(locator.Desc(card))
		switch card {
		case locator.LocationCard:
			if a.GetLocationButton {
				d.Show(locator.Desc(locator.GetLocationButton))
			}
			if a.LocationPreloaded {
				d.Show(locator.Desc(locator.LocationDisplay))
				d.Show(locator.Text(LocationText))
			}
			if a.ViewMapButton {
				d.Show(locator.Desc(locator.ViewMapButton))
			}
		case locator.DeviceInfoCard:
			if a.GetDeviceInfoButton {
				d.Show(locator.Desc(locator.GetDeviceInfoButton))
			}
			if a.DeviceInfoPreloaded {
				d.Show(locator.Text(DeviceInfoText))
			}
		case locator.MotionCard:
			d.Show(locator.Desc(locator.ToggleMotionButton))
			d.Show(locator.Text(StartSensors))
		}
	}
}
