package uiautomator2

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/device-features-runner/pkg/core"
	"github.com/devicelab-dev/device-features-runner/pkg/driver"
	"github.com/devicelab-dev/device-features-runner/pkg/locator"
	"github.com/devicelab-dev/device-features-runner/pkg/uiautomator2"
)

// fakeServer is a minimal UiAutomator2 server. Elements are keyed by the
// selector string sent in the find request.
type fakeServer struct {
	mu       sync.Mutex
	elements map[string]string // selector -> element id
	clicked  []string
	paths    []string
	sessions int
	deleted  int
	failFind bool
	notReady bool
}

func (f *fakeServer) handler(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, r.Method+" "+r.URL.Path)

	switch {
	case r.Method == "GET" && r.URL.Path == "/status":
		writeJSON(w, map[string]interface{}{"value": map[string]interface{}{"ready": !f.notReady}})
	case strings.HasSuffix(r.URL.Path, "/appium/device/info"):
		writeJSON(w, map[string]interface{}{"value": map[string]interface{}{"model": "sdk_gphone64", "realDisplaySize": "1080x2400"}})
	case r.Method == "POST" && r.URL.Path == "/session":
		f.sessions++
		writeJSON(w, map[string]interface{}{"sessionId": "s1", "value": map[string]interface{}{}})
	case r.Method == "DELETE" && r.URL.Path == "/session/s1":
		f.deleted++
		writeJSON(w, map[string]interface{}{"value": nil})
	case strings.HasSuffix(r.URL.Path, "/element"):
		if f.failFind {
			w.WriteHeader(http.StatusInternalServerError)
			writeJSON(w, map[string]interface{}{"value": map[string]string{"error": "unknown error", "message": "instrumentation crashed"}})
			return
		}
		var req uiautomator2.FindElementRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		id, ok := f.elements[req.Selector]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			writeJSON(w, map[string]interface{}{"value": map[string]string{"error": "no such element", "message": "not found"}})
			return
		}
		writeJSON(w, map[string]interface{}{"value": map[string]string{"ELEMENT": id}})
	case strings.HasSuffix(r.URL.Path, "/click"):
		parts := strings.Split(r.URL.Path, "/")
		f.clicked = append(f.clicked, parts[len(parts)-2])
		writeJSON(w, map[string]interface{}{"value": nil})
	case strings.HasSuffix(r.URL.Path, "/screenshot"):
		writeJSON(w, map[string]interface{}{"value": base64.StdEncoding.EncodeToString([]byte("png"))})
	case strings.HasSuffix(r.URL.Path, "/source"):
		writeJSON(w, map[string]interface{}{"value": "<hierarchy/>"})
	default:
		writeJSON(w, map[string]interface{}{"value": nil})
	}
}

func (f *fakeServer) show(selector, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.elements[selector] = id
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	_ = json.NewEncoder(w).Encode(v)
}

type fakeDevice struct {
	launcher string
	current  string
	launched []string
	err      error
}

func (f *fakeDevice) LauncherPackage(context.Context) (string, error) { return f.launcher, f.err }
func (f *fakeDevice) CurrentPackage(context.Context) (string, error)  { return f.current, f.err }
func (f *fakeDevice) LaunchApp(_ context.Context, pkg string) error {
	f.launched = append(f.launched, pkg)
	return f.err
}

func startFake(t *testing.T) (*fakeServer, func() *uiautomator2.Client) {
	t.Helper()
	fake := &fakeServer{elements: map[string]string{}}
	server := httptest.NewServer(http.HandlerFunc(fake.handler))
	t.Cleanup(server.Close)

	port := server.Listener.Addr().(*net.TCPAddr).Port
	return fake, func() *uiautomator2.Client { return uiautomator2.NewClientTCP(port) }
}

func openDriver(t *testing.T, dev Device) (*fakeServer, *Driver) {
	t.Helper()
	fake, newClient := startFake(t)
	o := &Opener{NewClient: newClient, Device: dev, Info: &core.PlatformInfo{Platform: "android"}, PollInterval: 5 * time.Millisecond}
	d, err := o.Open(context.Background())
	require.NoError(t, err)
	return fake, d.(*Driver)
}

func TestBuildSelector(t *testing.T) {
	tests := []struct {
		sel          locator.Selector
		wantStrategy string
		wantValue    string
	}{
		{locator.Desc(locator.NavMenu), uiautomator2.StrategyAccessibilityID, "navigation-menu"},
		{locator.Text(locator.TextDeviceFeatures), uiautomator2.StrategyUiAutomator, `new UiSelector().text("Device Features")`},
		{locator.TextContains(locator.TextLatitude), uiautomator2.StrategyUiAutomator, `new UiSelector().textContains("Latitude:")`},
		{locator.Package("com.example"), uiautomator2.StrategyUiAutomator, `new UiSelector().packageName("com.example")`},
		{locator.Text(`say "hi"`), uiautomator2.StrategyUiAutomator, `new UiSelector().text("say \"hi\"")`},
	}
	for _, tt := range tests {
		strategy, value := buildSelector(tt.sel)
		assert.Equal(t, tt.wantStrategy, strategy, tt.sel.Describe())
		assert.Equal(t, tt.wantValue, value, tt.sel.Describe())
	}
}

func TestOpenCreatesSession(t *testing.T) {
	fake, d := openDriver(t, &fakeDevice{})
	assert.Equal(t, 1, fake.sessions)
	assert.Contains(t, fake.paths, "POST /session/s1/timeouts")
	assert.Equal(t, "android", d.PlatformInfo().Platform)
	assert.Equal(t, 1080, d.PlatformInfo().ScreenWidth)
	assert.Equal(t, 2400, d.PlatformInfo().ScreenHeight)
	assert.Equal(t, "sdk_gphone64", d.PlatformInfo().DeviceName)
}

func TestOpenServerNotReady(t *testing.T) {
	fake, newClient := startFake(t)
	fake.notReady = true
	o := &Opener{NewClient: newClient, Device: &fakeDevice{}}

	_, err := o.Open(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not ready")
	assert.Equal(t, 0, fake.sessions)
}

func TestOpenKeepsKnownScreenSize(t *testing.T) {
	fake, newClient := startFake(t)
	info := &core.PlatformInfo{DeviceName: "Pixel 8", ScreenWidth: 720, ScreenHeight: 1280}
	o := &Opener{NewClient: newClient, Device: &fakeDevice{}, Info: info}

	_, err := o.Open(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 720, info.ScreenWidth)
	assert.Equal(t, "Pixel 8", info.DeviceName)
	assert.NotContains(t, fake.paths, "GET /session/s1/appium/device/info")
}

func TestParseDisplaySize(t *testing.T) {
	tests := []struct {
		in   string
		w, h int
		ok   bool
	}{
		{"1080x2400", 1080, 2400, true},
		{" 720 x 1280 ", 720, 1280, true},
		{"1080", 0, 0, false},
		{"axb", 0, 0, false},
		{"0x100", 0, 0, false},
	}
	for _, tt := range tests {
		w, h, ok := parseDisplaySize(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.w, w, tt.in)
		assert.Equal(t, tt.h, h, tt.in)
	}
}

func TestFindFoundAndNotFound(t *testing.T) {
	fake, d := openDriver(t, &fakeDevice{})
	fake.show(locator.LocationCard, "card-1")

	l, err := d.Find(context.Background(), locator.Desc(locator.LocationCard))
	require.NoError(t, err)
	el, ok := driver.ElementOf(l)
	require.True(t, ok)
	assert.Equal(t, "card-1", el.ID)

	l, err = d.Find(context.Background(), locator.Desc(locator.ViewMapButton))
	require.NoError(t, err)
	nf, ok := l.(driver.NotFound)
	require.True(t, ok)
	assert.Equal(t, locator.ViewMapButton, nf.Selector.Value)
}

func TestFindServerFailureIsError(t *testing.T) {
	fake, d := openDriver(t, &fakeDevice{})
	fake.failFind = true

	_, err := d.Find(context.Background(), locator.Desc(locator.NavMenu))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "instrumentation crashed")
}

func TestWaitForAppears(t *testing.T) {
	fake, d := openDriver(t, &fakeDevice{})
	go func() {
		time.Sleep(20 * time.Millisecond)
		fake.show(`new UiSelector().textContains("Latitude:")`, "lat")
	}()

	l, err := d.WaitFor(context.Background(), locator.TextContains(locator.TextLatitude), time.Second)
	require.NoError(t, err)
	_, ok := l.(driver.Found)
	assert.True(t, ok)
}

func TestWaitForTimesOut(t *testing.T) {
	_, d := openDriver(t, &fakeDevice{})

	l, err := d.WaitFor(context.Background(), locator.Desc(locator.ShakeCount), 30*time.Millisecond)
	require.NoError(t, err)
	_, ok := l.(driver.NotFound)
	assert.True(t, ok)
}

func TestClickAndKeys(t *testing.T) {
	fake, d := openDriver(t, &fakeDevice{})
	ctx := context.Background()

	require.NoError(t, d.Click(ctx, driver.Element{ID: "btn-7", Selector: locator.Desc(locator.GetLocationButton)}))
	require.NoError(t, d.PressBack(ctx))
	require.NoError(t, d.PressHome(ctx))

	assert.Equal(t, []string{"btn-7"}, fake.clicked)
	assert.Contains(t, fake.paths, "POST /session/s1/back")
	assert.Contains(t, fake.paths, "POST /session/s1/appium/device/press_keycode")
}

func TestDeviceDelegation(t *testing.T) {
	dev := &fakeDevice{launcher: "com.android.launcher3", current: "com.example"}
	_, d := openDriver(t, dev)
	ctx := context.Background()

	launcher, err := d.LauncherPackage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "com.android.launcher3", launcher)

	current, err := d.CurrentPackage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "com.example", current)

	require.NoError(t, d.LaunchApp(ctx, "com.example"))
	assert.Equal(t, []string{"com.example"}, dev.launched)

	dev.err = errors.New("adb gone")
	assert.Error(t, d.LaunchApp(ctx, "com.example"))
}

func TestArtifacts(t *testing.T) {
	_, d := openDriver(t, &fakeDevice{})

	png, err := d.CaptureScreenshot()
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), png)

	xml, err := d.CaptureHierarchy()
	require.NoError(t, err)
	assert.Equal(t, "<hierarchy/>", string(xml))
}

func TestCloseDeletesSessionOnce(t *testing.T) {
	fake, d := openDriver(t, &fakeDevice{})

	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	assert.Equal(t, 1, fake.deleted)
}
