package emulator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeADB answers adb calls from a function of the joined args.
type fakeADB struct {
	mu    sync.Mutex
	calls []string
	reply func(args string) (string, error)
}

func (f *fakeADB) run(_ context.Context, args ...string) (string, error) {
	joined := strings.Join(args, " ")
	f.mu.Lock()
	f.calls = append(f.calls, joined)
	f.mu.Unlock()
	return f.reply(joined)
}

func (f *fakeADB) count(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

type fakeProcess struct {
	killed bool
}

func (p *fakeProcess) Kill() error {
	p.killed = true
	return nil
}

func fastPolling(t *testing.T) {
	t.Helper()
	prevState, prevBoot, prevShutdown := statePollInterval, bootPollInterval, shutdownTimeout
	statePollInterval, bootPollInterval, shutdownTimeout = time.Millisecond, time.Millisecond, 50*time.Millisecond
	t.Cleanup(func() {
		statePollInterval, bootPollInterval, shutdownTimeout = prevState, prevBoot, prevShutdown
	})
}

func newTestBooter(adb *fakeADB, proc *fakeProcess, gotArgs *[]string) *Booter {
	return &Booter{
		emulatorPath: "/sdk/emulator/emulator",
		adb:          adb.run,
		start: func(path string, args ...string) (process, error) {
			*gotArgs = args
			return proc, nil
		},
	}
}

func TestBootStatus_IsFullyReady(t *testing.T) {
	assert.True(t, BootStatus{StateReady: true, BootCompleted: true, PackageManager: true}.IsFullyReady())
	assert.False(t, BootStatus{StateReady: true, BootCompleted: true}.IsFullyReady(), "package manager pending")
}

func TestParseAVDs(t *testing.T) {
	out := "INFO    | Storing crashdata in: /tmp/android\nPixel_7_API_34\n\nSmall_Phone\n"
	assert.Equal(t, []string{"Pixel_7_API_34", "Small_Phone"}, parseAVDs(out))
}

func TestAndroidHome(t *testing.T) {
	t.Setenv("ANDROID_HOME", "")
	t.Setenv("ANDROID_SDK_ROOT", "/other/path")
	t.Setenv("ANDROID_SDK_HOME", "")
	assert.Equal(t, "/other/path", androidHome())

	t.Setenv("ANDROID_HOME", "/path/to/android")
	assert.Equal(t, "/path/to/android", androidHome())
}

func TestFindEmulatorBinary_NewLayout(t *testing.T) {
	home := t.TempDir()
	bin := filepath.Join(home, "emulator", "emulator")
	require.NoError(t, os.MkdirAll(filepath.Dir(bin), 0o755))
	require.NoError(t, os.WriteFile(bin, nil, 0o755))
	t.Setenv("ANDROID_HOME", home)

	got, err := FindEmulatorBinary()
	require.NoError(t, err)
	assert.Equal(t, bin, got)
}

func TestFreeConsolePort(t *testing.T) {
	adb := &fakeADB{reply: func(string) (string, error) {
		return "List of devices attached\nemulator-5554\tdevice\nemulator-5556\toffline\nR58M\tdevice\n", nil
	}}
	b := &Booter{adb: adb.run}

	port, err := b.freeConsolePort(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5558, port)
}

func TestBoot(t *testing.T) {
	fastPolling(t)
	polls := 0
	adb := &fakeADB{reply: func(args string) (string, error) {
		switch {
		case args == "devices":
			return "List of devices attached\n", nil
		case strings.HasSuffix(args, "get-state"):
			polls++
			if polls < 3 {
				return "", errors.New("device not found")
			}
			return "device\n", nil
		case strings.HasSuffix(args, "sys.boot_completed"):
			return "1\n", nil
		default:
			return "", nil
		}
	}}
	proc := &fakeProcess{}
	var args []string

	emu, err := newTestBooter(adb, proc, &args).Boot(context.Background(), "Pixel_7_API_34", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "emulator-5554", emu.Serial)
	assert.Equal(t, "Pixel_7_API_34", emu.AVD)
	require.GreaterOrEqual(t, len(args), 4)
	assert.Equal(t, []string{"-avd", "Pixel_7_API_34", "-port", "5554"}, args[:4])
	assert.False(t, proc.killed, "booted emulator must keep running")
}

func TestBoot_TimeoutKillsProcess(t *testing.T) {
	fastPolling(t)
	adb := &fakeADB{reply: func(args string) (string, error) {
		switch {
		case args == "devices":
			return "", nil
		case strings.HasSuffix(args, "get-state"):
			return "device\n", nil
		case strings.HasSuffix(args, "sys.boot_completed"):
			return "0\n", nil
		default:
			return "", nil
		}
	}}
	proc := &fakeProcess{}
	var args []string

	_, err := newTestBooter(adb, proc, &args).Boot(context.Background(), "Slow", 20*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boot timeout")
	assert.Contains(t, err.Error(), "boot:false")
	assert.True(t, proc.killed)
}

func TestShutdown(t *testing.T) {
	fastPolling(t)
	adb := &fakeADB{reply: func(args string) (string, error) {
		if strings.HasSuffix(args, "get-state") {
			return "", errors.New("device not found")
		}
		return "", nil
	}}
	proc := &fakeProcess{}
	emu := &Emulator{Serial: "emulator-5554", proc: proc, adb: adb.run}

	require.NoError(t, emu.Shutdown(context.Background()))
	assert.Equal(t, 1, adb.count("-s emulator-5554 emu kill"), "calls: %v", adb.calls)
	assert.False(t, proc.killed, "clean shutdown needs no kill")
}

func TestShutdown_KillsWhenStillAttached(t *testing.T) {
	fastPolling(t)
	adb := &fakeADB{reply: func(string) (string, error) { return "device\n", nil }}
	proc := &fakeProcess{}
	emu := &Emulator{Serial: "emulator-5554", proc: proc, adb: adb.run}

	require.NoError(t, emu.Shutdown(context.Background()))
	assert.True(t, proc.killed)
}
