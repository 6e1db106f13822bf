// Package locator holds the accessibility identifiers the app attaches to the
// elements of its Device Features screen.
//
// The app sets both data-testid and aria-label to the same identifier, so on
// Android each identifier surfaces as the element's content-description.
// Values must stay in sync with TEST_IDS in the app's testUtils.ts.
package locator

import "fmt"

// Navigation elements.
const (
	NavMenu       = "navigation-menu"
	NavItemPrefix = "nav-item-"
)

// Location feature elements.
const (
	LocationCard          = "location-feature-card"
	GetLocationButton     = "get-location-button"
	RefreshLocationButton = "refresh-location-button"
	ViewMapButton         = "view-map-button"
	LocationDisplay       = "location-display"
)

// Device info elements.
const (
	DeviceInfoCard          = "device-info-card"
	GetDeviceInfoButton     = "get-device-info-button"
	RefreshDeviceInfoButton = "refresh-device-info-button"
)

// Motion feature elements.
const (
	MotionCard         = "motion-feature-card"
	ToggleMotionButton = "toggle-motion-button"
	MotionDataDisplay  = "motion-data-display"
	ShakeCount         = "shake-count"
)

// Visible texts rendered by the app.
const (
	TextDeviceFeatures = "Device Features"
	TextLatitude       = "Latitude:"
	TextPlatform       = "Platform:"
)

// Locator pairs a semantic name with the identifier the app exposes.
type Locator struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// Selector returns a selector matching the locator's content-description.
func (l Locator) Selector() Selector {
	return Selector{Kind: KindDesc, Value: l.Value, Label: l.Name}
}

// registry is ordered as declared above. Names are unique.
var registry = []Locator{
	{Name: "navigation menu", Value: NavMenu},
	{Name: "location card", Value: LocationCard},
	{Name: "get location button", Value: GetLocationButton},
	{Name: "refresh location button", Value: RefreshLocationButton},
	{Name: "view map button", Value: ViewMapButton},
	{Name: "location display", Value: LocationDisplay},
	{Name: "device info card", Value: DeviceInfoCard},
	{Name: "get device info button", Value: GetDeviceInfoButton},
	{Name: "refresh device info button", Value: RefreshDeviceInfoButton},
	{Name: "motion card", Value: MotionCard},
	{Name: "toggle motion button", Value: ToggleMotionButton},
	{Name: "motion data display", Value: MotionDataDisplay},
	{Name: "shake count", Value: ShakeCount},
}

// All returns a copy of the registry in declaration order.
func All() []Locator {
	out := make([]Locator, len(registry))
	copy(out, registry)
	return out
}

// Lookup returns the locator registered under name.
func Lookup(name string) (Locator, bool) {
	for _, l := range registry {
		if l.Name == name {
			return l, true
		}
	}
	return Locator{}, false
}

// ByValue returns the locator whose identifier is value.
func ByValue(value string) (Locator, bool) {
	for _, l := range registry {
		if l.Value == value {
			return l, true
		}
	}
	return Locator{}, false
}

// NavItem returns the locator of a navigation menu entry.
func NavItem(suffix string) Locator {
	return Locator{
		Name:  fmt.Sprintf("nav item %s", suffix),
		Value: NavItemPrefix + suffix,
	}
}

// Desc returns a selector for a registered identifier. Unknown identifiers
// are labelled with the identifier itself.
func Desc(value string) Selector {
	if l, ok := ByValue(value); ok {
		return l.Selector()
	}
	return Selector{Kind: KindDesc, Value: value, Label: value}
}
