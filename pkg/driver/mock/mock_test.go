package mock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/device-features-runner/pkg/driver"
	"github.com/devicelab-dev/device-features-runner/pkg/locator"
)

const (
	launcher = "com.android.launcher3"
	appID    = "com.example.features"
)

func click(t *testing.T, d *Driver, sel locator.Selector) {
	t.Helper()
	l, err := d.Find(context.Background(), sel)
	require.NoError(t, err)
	el, ok := driver.ElementOf(l)
	require.True(t, ok, "%s not visible", sel.Describe())
	require.NoError(t, d.Click(context.Background(), el))
}

func TestFindMatchesKinds(t *testing.T) {
	d := New(launcher)
	d.Start(appID)
	d.Show(locator.Desc(locator.NavMenu))
	d.Show(locator.Text("Latitude: 1.0"))

	assert.True(t, d.Visible(locator.Desc(locator.NavMenu)))
	assert.True(t, d.Visible(locator.Text("Latitude: 1.0")))
	assert.True(t, d.Visible(locator.TextContains(locator.TextLatitude)))
	assert.False(t, d.Visible(locator.Text(locator.TextLatitude)))
	assert.False(t, d.Visible(locator.Desc("Latitude: 1.0")))
	assert.True(t, d.Visible(locator.Package(appID)))
	assert.False(t, d.Visible(locator.Package(launcher)))
}

func TestScreensArePerPackage(t *testing.T) {
	d := New(launcher)
	d.Start(appID)
	d.Show(locator.Desc(locator.LocationCard))

	d.Switch(MapsPackage)
	assert.False(t, d.Visible(locator.Desc(locator.LocationCard)))

	require.NoError(t, d.PressBack(context.Background()))
	assert.Equal(t, appID, d.Foreground())
	assert.True(t, d.Visible(locator.Desc(locator.LocationCard)))
}

func TestHomeAndLaunch(t *testing.T) {
	d := New(launcher)
	ctx := context.Background()

	require.NoError(t, d.LaunchApp(ctx, appID))
	assert.Equal(t, appID, d.Foreground())

	require.NoError(t, d.PressHome(ctx))
	assert.Equal(t, launcher, d.Foreground())
	pkg, err := d.CurrentPackage(ctx)
	require.NoError(t, err)
	assert.Equal(t, launcher, pkg)

	assert.Equal(t, []string{appID}, d.Launches)
	assert.Equal(t, 1, d.Homes)
}

func TestShowAfterUsesVirtualTime(t *testing.T) {
	d := New(launcher)
	d.Start(appID)
	d.ShowAfter(locator.Text("Latitude: 1"), 8*time.Second)
	sel := locator.TextContains(locator.TextLatitude)

	l, err := d.WaitFor(context.Background(), sel, 5*time.Second)
	require.NoError(t, err)
	_, ok := l.(driver.NotFound)
	assert.True(t, ok, "should not appear within 5s")

	l, err = d.WaitFor(context.Background(), sel, 5*time.Second)
	require.NoError(t, err)
	_, ok = l.(driver.Found)
	assert.True(t, ok, "should appear after 10s in total")

	require.Len(t, d.Waits, 2)
	assert.Equal(t, 5*time.Second, d.Waits[0].Timeout)
	assert.False(t, d.Waits[0].Found)
	assert.True(t, d.Waits[1].Found)
}

func TestClickStaleElement(t *testing.T) {
	d := New(launcher)
	d.Start(appID)
	err := d.Click(context.Background(), driver.Element{Selector: locator.Desc(locator.ShakeCount)})
	assert.Error(t, err)
}

func TestFailOn(t *testing.T) {
	d := New(launcher)
	boom := errors.New("socket closed")
	d.FailOn(OpFind, boom)

	_, err := d.Find(context.Background(), locator.Desc(locator.NavMenu))
	assert.ErrorIs(t, err, boom)
	_, err = d.WaitFor(context.Background(), locator.Desc(locator.NavMenu), time.Second)
	assert.ErrorIs(t, err, boom)

	d.FailOn(OpFind, nil)
	_, err = d.Find(context.Background(), locator.Desc(locator.NavMenu))
	assert.NoError(t, err)
}

func TestOpenerCountsOpens(t *testing.T) {
	d := New(launcher)
	o := d.Opener()

	got, err := o.Open(context.Background())
	require.NoError(t, err)
	require.NoError(t, got.Close())
	assert.Equal(t, 1, d.Opens)
	assert.Equal(t, 1, d.Closes)

	d.FailOn(OpOpen, errors.New("no device"))
	_, err = o.Open(context.Background())
	assert.Error(t, err)
}

func TestAppNavigation(t *testing.T) {
	d := NewApp(launcher, DefaultApp(appID))
	require.NoError(t, d.LaunchApp(context.Background(), appID))

	for i := 0; i < 2; i++ {
		click(t, d, locator.Desc(locator.NavMenu))
		click(t, d, locator.Text(locator.TextDeviceFeatures))
	}

	for _, card := range []string{locator.LocationCard, locator.DeviceInfoCard, locator.MotionCard} {
		assert.True(t, d.Visible(locator.Desc(card)), card)
	}
	assert.False(t, d.Visible(locator.Text(locator.TextDeviceFeatures)))
}

func TestAppLaunchUnknownPackage(t *testing.T) {
	d := NewApp(launcher, DefaultApp(appID))
	assert.Error(t, d.LaunchApp(context.Background(), "com.other"))
}

func TestAppMotionToggle(t *testing.T) {
	d := NewApp(launcher, DefaultApp(appID))
	require.NoError(t, d.LaunchApp(context.Background(), appID))
	click(t, d, locator.Desc(locator.NavMenu))
	click(t, d, locator.Text(locator.TextDeviceFeatures))

	click(t, d, locator.Desc(locator.ToggleMotionButton))
	assert.True(t, d.Visible(locator.Text(StopSensors)))
	assert.True(t, d.Visible(locator.Desc(locator.ShakeCount)))

	click(t, d, locator.Desc(locator.ToggleMotionButton))
	assert.True(t, d.Visible(locator.Text(StartSensors)))
	assert.False(t, d.Visible(locator.Desc(locator.MotionDataDisplay)))
}

func TestAppViewMapRoundTrip(t *testing.T) {
	d := NewApp(launcher, DefaultApp(appID))
	require.NoError(t, d.LaunchApp(context.Background(), appID))
	click(t, d, locator.Desc(locator.NavMenu))
	click(t, d, locator.Text(locator.TextDeviceFeatures))

	click(t, d, locator.Desc(locator.ViewMapButton))
	assert.Equal(t, MapsPackage, d.Foreground())

	require.NoError(t, d.PressBack(context.Background()))
	assert.True(t, d.Visible(locator.Desc(locator.LocationCard)))
}

func TestAppRelaunchClearsState(t *testing.T) {
	d := NewApp(launcher, DefaultApp(appID))
	ctx := context.Background()
	require.NoError(t, d.LaunchApp(ctx, appID))
	click(t, d, locator.Desc(locator.NavMenu))
	click(t, d, locator.Text(locator.TextDeviceFeatures))
	click(t, d, locator.Desc(locator.ToggleMotionButton))

	require.NoError(t, d.PressHome(ctx))
	require.NoError(t, d.LaunchApp(ctx, appID))
	assert.False(t, d.Visible(locator.Desc(locator.ShakeCount)))
	assert.False(t, d.Visible(locator.Desc(locator.MotionCard)))
}
