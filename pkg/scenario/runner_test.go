package scenario

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/device-features-runner/pkg/core"
	"github.com/devicelab-dev/device-features-runner/pkg/driver"
	"github.com/devicelab-dev/device-features-runner/pkg/driver/mock"
	"github.com/devicelab-dev/device-features-runner/pkg/locator"
)

const (
	testLauncher = "com.android.launcher3"
	testAppID    = "app.lovable.test"
)

func newRunner(d *mock.Driver) *Runner {
	return New(d.Opener(), Config{AppID: testAppID})
}

func run(t *testing.T, d *mock.Driver, name string) *core.ScenarioResult {
	t.Helper()
	sc, ok := Get(name)
	require.True(t, ok)
	return newRunner(d).Run(context.Background(), sc)
}

func stepNames(steps []core.StepResult) []string {
	var names []string
	for _, s := range steps {
		names = append(names, s.Name)
	}
	return names
}

func lastStep(r *core.ScenarioResult) core.StepResult {
	return r.Steps[len(r.Steps)-1]
}

func TestRunAllPasses(t *testing.T) {
	d := mock.NewApp(testLauncher, mock.DefaultApp(testAppID))

	suite, err := newRunner(d).RunAll(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 4, suite.TotalScenarios)
	assert.Equal(t, 4, suite.PassedScenarios, "%+v", suite.Scenarios)
	assert.True(t, suite.Success())
	assert.NotEmpty(t, suite.RunID)
	assert.Equal(t, testAppID, suite.AppID)

	// each scenario gets its own driver and a fresh launch
	assert.Equal(t, 4, d.Opens)
	assert.Equal(t, 4, d.Closes)
	assert.Len(t, d.Launches, 4)
}

func TestSetupSteps(t *testing.T) {
	d := mock.NewApp(testLauncher, mock.DefaultApp(testAppID))
	r := run(t, d, UIPresence)

	assert.Equal(t, []string{"open driver", "press home", "wait for launcher", "launch app", "wait for app"}, stepNames(r.Setup))
	assert.Equal(t, []string{"open navigation menu", "open Device Features", "check feature cards"}, stepNames(r.Steps))
	assert.Equal(t, core.StatusPassed, r.Status)
}

func TestNavigationIsIdempotent(t *testing.T) {
	d := mock.NewApp(testLauncher, mock.DefaultApp(testAppID))
	result := &core.ScenarioResult{Name: "nav"}
	s := &session{ctx: context.Background(), config: newRunner(d).config, result: result}
	require.NoError(t, s.setup(d.Opener()))

	require.NoError(t, s.navigateToDeviceFeatures())
	require.NoError(t, s.navigateToDeviceFeatures())

	for _, card := range []string{locator.LocationCard, locator.DeviceInfoCard, locator.MotionCard} {
		assert.True(t, d.Visible(locator.Desc(card)), card)
	}
	assert.Equal(t, testAppID, d.Foreground())
}

func TestNavigationMenuMissing(t *testing.T) {
	d := mock.NewApp(testLauncher, mock.DefaultApp(testAppID))
	d.OnLaunch(func(d *mock.Driver, pkg string) error {
		d.Start(pkg)
		return nil
	})

	r := run(t, d, Location)
	assert.Equal(t, core.StatusFailed, r.Status)
	assert.Equal(t, core.ErrCategoryElementMissing, r.Category)
	assert.Equal(t, "Navigation menu not found", r.Message)
	assert.Len(t, r.Steps, 1)
}

func TestLocationWithButtonWithinGPSTimeout(t *testing.T) {
	app := mock.DefaultApp(testAppID)
	app.GPSDelay = 9 * time.Second
	d := mock.NewApp(testLauncher, app)

	r := run(t, d, Location)
	require.Equal(t, core.StatusPassed, r.Status, r.Message)
	assert.Contains(t, d.Clicks, locator.GetLocationButton)

	var gpsWait *mock.Wait
	for i := range d.Waits {
		if d.Waits[i].Selector.Kind == locator.KindTextContains {
			gpsWait = &d.Waits[i]
		}
	}
	require.NotNil(t, gpsWait)
	assert.Equal(t, 10*time.Second, gpsWait.Timeout)
	assert.True(t, gpsWait.Found)
}

func TestLocationFixTooSlow(t *testing.T) {
	app := mock.DefaultApp(testAppID)
	app.GPSDelay = 11 * time.Second
	d := mock.NewApp(testLauncher, app)

	r := run(t, d, Location)
	assert.Equal(t, core.StatusFailed, r.Status)
	assert.Equal(t, core.ErrCategoryAssertion, r.Category)
	assert.Equal(t, "Location not retrieved successfully", r.Message)
	assert.Equal(t, "wait for location", lastStep(r).Name)
	assert.NotContains(t, d.Clicks, locator.ViewMapButton)
}

func TestLocationAlreadyDisplayed(t *testing.T) {
	app := mock.DefaultApp(testAppID)
	app.GetLocationButton = false
	app.LocationPreloaded = true
	d := mock.NewApp(testLauncher, app)

	r := run(t, d, Location)
	require.Equal(t, core.StatusPassed, r.Status, r.Message)
	assert.NotContains(t, d.Clicks, locator.GetLocationButton)
	assert.Contains(t, stepNames(r.Steps), "check location displayed")
}

func TestLocationNotDisplayed(t *testing.T) {
	app := mock.DefaultApp(testAppID)
	app.GetLocationButton = false
	d := mock.NewApp(testLauncher, app)

	r := run(t, d, Location)
	assert.Equal(t, core.StatusFailed, r.Status)
	assert.Equal(t, "Location information not displayed", r.Message)
}

func TestLocationCardMissing(t *testing.T) {
	app := mock.DefaultApp(testAppID)
	app.Cards = []string{locator.DeviceInfoCard, locator.MotionCard}
	d := mock.NewApp(testLauncher, app)

	r := run(t, d, Location)
	assert.Equal(t, core.ErrCategoryElementMissing, r.Category)
	assert.Equal(t, "Location feature card not found", r.Message)
}

func TestLocationMapRoundTrip(t *testing.T) {
	d := mock.NewApp(testLauncher, mock.DefaultApp(testAppID))

	r := run(t, d, Location)
	require.Equal(t, core.StatusPassed, r.Status, r.Message)
	assert.Contains(t, d.Clicks, locator.ViewMapButton)
	assert.Equal(t, 1, d.Backs)
	assert.Equal(t, "wait for location card", lastStep(r).Name)
	assert.Equal(t, testAppID, d.Foreground())
}

func TestLocationMapDoesNotReturn(t *testing.T) {
	d := mock.NewApp(testLauncher, mock.DefaultApp(testAppID))
	d.OnBack(func(*mock.Driver) {})

	r := run(t, d, Location)
	assert.Equal(t, core.StatusFailed, r.Status)
	assert.Equal(t, core.ErrCategoryAssertion, r.Category)
	assert.Equal(t, "Failed to return to app after viewing map", r.Message)
}

func TestLocationWithoutMapButton(t *testing.T) {
	app := mock.DefaultApp(testAppID)
	app.ViewMapButton = false
	d := mock.NewApp(testLauncher, app)

	r := run(t, d, Location)
	require.Equal(t, core.StatusPassed, r.Status, r.Message)
	assert.Equal(t, 0, d.Backs)
	assert.Equal(t, "find view map button", lastStep(r).Name)
}

func TestDeviceInfoClick(t *testing.T) {
	d := mock.NewApp(testLauncher, mock.DefaultApp(testAppID))

	r := run(t, d, DeviceInfo)
	require.Equal(t, core.StatusPassed, r.Status, r.Message)
	assert.Contains(t, d.Clicks, locator.GetDeviceInfoButton)
	assert.Equal(t, "wait for device info", lastStep(r).Name)
}

func TestDeviceInfoAlreadyDisplayed(t *testing.T) {
	app := mock.DefaultApp(testAppID)
	app.GetDeviceInfoButton = false
	app.DeviceInfoPreloaded = true
	d := mock.NewApp(testLauncher, app)

	r := run(t, d, DeviceInfo)
	require.Equal(t, core.StatusPassed, r.Status, r.Message)
	assert.NotContains(t, d.Clicks, locator.GetDeviceInfoButton)
}

func TestDeviceInfoNotDisplayed(t *testing.T) {
	app := mock.DefaultApp(testAppID)
	app.GetDeviceInfoButton = false
	d := mock.NewApp(testLauncher, app)

	r := run(t, d, DeviceInfo)
	assert.Equal(t, core.StatusFailed, r.Status)
	assert.Equal(t, "Device information not displayed", r.Message)
}

func TestMotionTogglesOnAndOff(t *testing.T) {
	d := mock.NewApp(testLauncher, mock.DefaultApp(testAppID))

	r := run(t, d, Motion)
	require.Equal(t, core.StatusPassed, r.Status, r.Message)

	toggles := 0
	for _, c := range d.Clicks {
		if c == locator.ToggleMotionButton {
			toggles++
		}
	}
	assert.Equal(t, 2, toggles)
	require.Len(t, r.Cleanup, 1)
	assert.Equal(t, core.StatusPassed, r.Cleanup[0].Status)
	assert.True(t, d.Visible(locator.Text(mock.StartSensors)))
	assert.False(t, d.Visible(locator.Desc(locator.MotionDataDisplay)))
}

func TestMotionShakeCountMissingStillStopsSensors(t *testing.T) {
	app := mock.DefaultApp(testAppID)
	app.ShakeCount = false
	d := mock.NewApp(testLauncher, app)

	r := run(t, d, Motion)
	assert.Equal(t, core.StatusFailed, r.Status)
	assert.Equal(t, "Shake count not displayed", r.Message)
	require.Len(t, r.Cleanup, 1)
	assert.Equal(t, "stop sensors", r.Cleanup[0].Name)
	assert.True(t, d.Visible(locator.Text(mock.StartSensors)))
}

func TestMotionDataMissing(t *testing.T) {
	app := mock.DefaultApp(testAppID)
	app.MotionData = false
	d := mock.NewApp(testLauncher, app)

	r := run(t, d, Motion)
	assert.Equal(t, core.ErrCategoryAssertion, r.Category)
	assert.Equal(t, "Motion data not displayed", r.Message)
	assert.Len(t, r.Cleanup, 1)
}

func TestMotionCleanupFailureKeepsVerdict(t *testing.T) {
	d := mock.NewApp(testLauncher, mock.DefaultApp(testAppID))
	d.OnClick(locator.Desc(locator.ToggleMotionButton), func(d *mock.Driver) {
		d.Show(locator.Desc(locator.MotionDataDisplay))
		d.Show(locator.Desc(locator.ShakeCount))
		d.Hide(locator.Desc(locator.ToggleMotionButton))
	})

	r := run(t, d, Motion)
	assert.Equal(t, core.StatusPassed, r.Status)
	require.Len(t, r.Cleanup, 1)
	assert.Equal(t, core.StatusFailed, r.Cleanup[0].Status)
	assert.Empty(t, r.Message)
}

func TestMotionToggleMissingSkipsCleanup(t *testing.T) {
	d := mock.NewApp(testLauncher, mock.DefaultApp(testAppID))
	d.OnClick(locator.Text(locator.TextDeviceFeatures), func(d *mock.Driver) {
		d.Show(locator.Desc(locator.MotionCard))
	})

	r := run(t, d, Motion)
	assert.Equal(t, "Toggle motion button not found", r.Message)
	assert.Empty(t, r.Cleanup)
}

func TestUIPresenceNamesMissingCard(t *testing.T) {
	app := mock.DefaultApp(testAppID)
	app.Cards = []string{locator.LocationCard, locator.MotionCard}
	d := mock.NewApp(testLauncher, app)

	r := run(t, d, UIPresence)
	assert.Equal(t, core.StatusFailed, r.Status)
	assert.Contains(t, r.Message, "device info card")
	assert.NotContains(t, r.Message, "location card")
	assert.NotContains(t, r.Message, "motion card")
}

func TestLauncherNotVisible(t *testing.T) {
	d := mock.NewApp(testLauncher, mock.DefaultApp(testAppID))
	d.Start("com.other")
	d.OnHome(func(*mock.Driver) {})

	r := run(t, d, Location)
	assert.Equal(t, core.StatusFailed, r.Status)
	assert.Equal(t, core.ErrCategoryPrecondition, r.Category)
	assert.Contains(t, r.Message, testLauncher)
	assert.Empty(t, r.Steps)
	assert.Empty(t, d.Launches)
	assert.Equal(t, 1, d.Closes)
}

func TestAppNotVisible(t *testing.T) {
	d := mock.NewApp(testLauncher, mock.DefaultApp(testAppID))
	d.OnLaunch(func(*mock.Driver, string) error { return nil })

	r := run(t, d, Motion)
	assert.Equal(t, core.ErrCategoryPrecondition, r.Category)
	assert.Equal(t, "wait for app", r.Setup[len(r.Setup)-1].Name)
	assert.Empty(t, r.Steps)
}

func TestAppLaunchFails(t *testing.T) {
	d := mock.NewApp(testLauncher, mock.DefaultApp(testAppID))
	d.FailOn(mock.OpLaunch, errors.New("activity not found"))

	r := run(t, d, DeviceInfo)
	assert.Equal(t, core.ErrCategoryPrecondition, r.Category)
	assert.Contains(t, r.Error, "activity not found")
}

func TestOpenFailureIsErrored(t *testing.T) {
	d := mock.NewApp(testLauncher, mock.DefaultApp(testAppID))
	d.FailOn(mock.OpOpen, errors.New("no devices"))

	suite, err := newRunner(d).RunAll(context.Background(), []string{Location, UIPresence})
	require.NoError(t, err)
	require.Len(t, suite.Scenarios, 2)
	for _, r := range suite.Scenarios {
		assert.Equal(t, core.StatusErrored, r.Status)
		assert.Equal(t, core.ErrCategoryConnection, r.Category)
	}
	assert.Equal(t, 0, d.Closes)
	assert.False(t, suite.Success())
}

func TestDriverFailureMidScenario(t *testing.T) {
	d := mock.NewApp(testLauncher, mock.DefaultApp(testAppID))
	d.OnClick(locator.Desc(locator.NavMenu), func(d *mock.Driver) {
		d.FailOn(mock.OpFind, errors.New("socket closed"))
	})

	r := run(t, d, Location)
	assert.Equal(t, core.StatusErrored, r.Status)
	assert.Equal(t, core.ErrCategoryConnection, r.Category)
	assert.Contains(t, r.Error, "socket closed")
}

func TestScenarioIsolation(t *testing.T) {
	d := mock.NewApp(testLauncher, mock.DefaultApp(testAppID))
	d.OnClick(locator.Desc(locator.ToggleMotionButton), func(d *mock.Driver) {
		d.Show(locator.Desc(locator.MotionDataDisplay))
	})

	suite, err := newRunner(d).RunAll(context.Background(), []string{Motion, UIPresence})
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, suite.Scenarios[0].Status)
	assert.Equal(t, core.StatusPassed, suite.Scenarios[1].Status)
}

func TestRunAllRejectsUnknownScenario(t *testing.T) {
	d := mock.New(testLauncher)
	_, err := newRunner(d).RunAll(context.Background(), []string{"bluetooth"})
	require.Error(t, err)
	assert.Equal(t, core.ErrCategoryConfig, core.CategoryOf(err))
	assert.Contains(t, err.Error(), "bluetooth")
	assert.Equal(t, 0, d.Opens)
}

func TestRunAllRequiresAppID(t *testing.T) {
	d := mock.New(testLauncher)
	_, err := New(d.Opener(), Config{}).RunAll(context.Background(), nil)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}

func TestRunAllCancelled(t *testing.T) {
	d := mock.NewApp(testLauncher, mock.DefaultApp(testAppID))
	ctx, cancel := context.WithCancel(context.Background())
	r := New(d.Opener(), Config{
		AppID: testAppID,
		OnScenarioEnd: func(*core.ScenarioResult) {
			cancel()
		},
	})

	suite, err := r.RunAll(ctx, []string{UIPresence, Motion})
	require.NoError(t, err)
	assert.Equal(t, core.StatusPassed, suite.Scenarios[0].Status)
	assert.Equal(t, core.StatusSkipped, suite.Scenarios[1].Status)
	assert.Equal(t, 1, suite.SkippedScenarios)
}

func TestCallbacks(t *testing.T) {
	d := mock.NewApp(testLauncher, mock.DefaultApp(testAppID))
	var started []string
	var steps int
	var ended []core.StepStatus
	r := New(d.Opener(), Config{
		AppID:           testAppID,
		OnScenarioStart: func(_, _ int, name string) { started = append(started, name) },
		OnStepComplete:  func(string, core.StepResult) { steps++ },
		OnScenarioEnd:   func(res *core.ScenarioResult) { ended = append(ended, res.Status) },
	})

	_, err := r.RunAll(context.Background(), []string{UIPresence})
	require.NoError(t, err)
	assert.Equal(t, []string{UIPresence}, started)
	assert.Equal(t, 8, steps)
	assert.Equal(t, []core.StepStatus{core.StatusPassed}, ended)
}

// capturingDriver adds artifact capture to the mock driver.
type capturingDriver struct {
	*mock.Driver
}

func (capturingDriver) CaptureScreenshot() ([]byte, error) { return []byte("png"), nil }
func (capturingDriver) CaptureHierarchy() ([]byte, error)  { return []byte("<hierarchy/>"), nil }

func TestArtifactsCapturedOnFailure(t *testing.T) {
	app := mock.DefaultApp(testAppID)
	app.Cards = nil
	d := mock.NewApp(testLauncher, app)
	opener := driver.OpenerFunc(func(ctx context.Context) (driver.Driver, error) {
		inner, err := d.Opener().Open(ctx)
		if err != nil {
			return nil, err
		}
		return capturingDriver{inner.(*mock.Driver)}, nil
	})
	r := New(opener, Config{AppID: testAppID, Artifacts: core.DefaultArtifactConfig()})

	sc, _ := Get(UIPresence)
	res := r.Run(context.Background(), sc)
	assert.Equal(t, core.StatusFailed, res.Status)
	require.Len(t, res.Attachments, 2)
	assert.Equal(t, core.AttachmentScreenshot, res.Attachments[0].Name)
	assert.Equal(t, core.AttachmentHierarchy, res.Attachments[1].Name)

	sc, _ = Get(Location)
	d2 := mock.NewApp(testLauncher, mock.DefaultApp(testAppID))
	res = New(d2.Opener(), Config{AppID: testAppID, Artifacts: core.DefaultArtifactConfig()}).Run(context.Background(), sc)
	assert.Equal(t, core.StatusPassed, res.Status)
	assert.Empty(t, res.Attachments)
}

func TestSelect(t *testing.T) {
	all, err := Select(nil)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	some, err := Select([]string{Motion, Location})
	require.NoError(t, err)
	assert.Equal(t, Motion, some[0].Name)
	assert.Equal(t, Location, some[1].Name)

	assert.Equal(t, []string{Location, DeviceInfo, Motion, UIPresence}, Names())
}
