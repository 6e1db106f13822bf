// Package mock provides a scripted driver for testing without a real device.
//
// The driver keeps one screen per package and a foreground stack. Waits use
// virtual time: an element scheduled with ShowAfter resolves on the first
// WaitFor whose timeout covers its delay, without sleeping.
package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/devicelab-dev/device-features-runner/pkg/driver"
	"github.com/devicelab-dev/device-features-runner/pkg/locator"
)

// Operations that can be made to fail with FailOn.
const (
	OpOpen     = "open"
	OpFind     = "find"
	OpClick    = "click"
	OpBack     = "back"
	OpHome     = "home"
	OpLaunch   = "launch"
	OpLauncher = "launcher"
	OpCurrent  = "current"
)

// Wait records one WaitFor call.
type Wait struct {
	Selector locator.Selector
	Timeout  time.Duration
	Found    bool
}

type element struct {
	kind  locator.Kind // KindDesc or KindText
	value string
}

type pending struct {
	el    element
	delay time.Duration
}

type screen struct {
	elements []element
	pending  []pending
}

// Driver is a scripted implementation of driver.Driver.
type Driver struct {
	mu sync.Mutex

	launcher string
	stack    []string
	screens  map[string]*screen

	onClick  map[element]func(*Driver)
	onLaunch func(*Driver, string) error
	onHome   func(*Driver)
	onBack   func(*Driver)
	errs     map[string]error

	// Recorded interactions.
	Opens    int
	Closes   int
	Clicks   []string
	Waits    []Wait
	Backs    int
	Homes    int
	Launches []string
}

var _ driver.Driver = (*Driver)(nil)

// New creates a driver showing the home screen of launcher.
func New(launcher string) *Driver {
	return &Driver{
		launcher: launcher,
		stack:    []string{launcher},
		screens:  map[string]*screen{},
		onClick:  map[element]func(*Driver){},
		errs:     map[string]error{},
	}
}

// Opener returns an opener handing out this driver.
func (d *Driver) Opener() driver.Opener {
	return driver.OpenerFunc(func(context.Context) (driver.Driver, error) {
		d.mu.Lock()
		defer d.mu.Unlock()
		if err := d.errs[OpOpen]; err != nil {
			return nil, err
		}
		d.Opens++
		return d, nil
	})
}

// FailOn makes every later call of op return err. A nil err clears it.
func (d *Driver) FailOn(op string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.errs, op)
		return
	}
	d.errs[op] = err
}

// OnClick runs fn after an element matching sel is clicked.
func (d *Driver) OnClick(sel locator.Selector, fn func(*Driver)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onClick[element{kind: sel.Kind, value: sel.Value}] = fn
}

// OnLaunch replaces the default launch behaviour.
func (d *Driver) OnLaunch(fn func(*Driver, string) error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onLaunch = fn
}

// OnHome replaces the default home key behaviour.
func (d *Driver) OnHome(fn func(*Driver)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onHome = fn
}

// OnBack replaces the default back key behaviour.
func (d *Driver) OnBack(fn func(*Driver)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onBack = fn
}

// Foreground returns the package on top of the stack.
func (d *Driver) Foreground() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.foreground()
}

// Switch brings pkg to the foreground on top of the current package.
func (d *Driver) Switch(pkg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stack = append(d.stack, pkg)
}

// GoHome clears the stack down to the launcher.
func (d *Driver) GoHome() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stack = []string{d.launcher}
}

// Start puts pkg in the foreground over the launcher with an empty screen.
func (d *Driver) Start(pkg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stack = []string{d.launcher, pkg}
	d.screens[pkg] = &screen{}
}

// Show makes sel visible on the foreground screen. Only KindDesc and KindText
// selectors describe elements.
func (d *Driver) Show(sel locator.Selector) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.current()
	el := element{kind: sel.Kind, value: sel.Value}
	if s.index(el) < 0 {
		s.elements = append(s.elements, el)
	}
}

// ShowAfter makes sel visible once a wait of at least delay covers it.
func (d *Driver) ShowAfter(sel locator.Selector, delay time.Duration) {
	if delay <= 0 {
		d.Show(sel)
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.current()
	s.pending = append(s.pending, pending{el: element{kind: sel.Kind, value: sel.Value}, delay: delay})
}

// Hide removes sel from the foreground screen.
func (d *Driver) Hide(sel locator.Selector) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.current()
	if i := s.index(element{kind: sel.Kind, value: sel.Value}); i >= 0 {
		s.elements = append(s.elements[:i], s.elements[i+1:]...)
	}
}

// Visible reports whether sel currently resolves.
func (d *Driver) Visible(sel locator.Selector) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.match(sel)
	return ok
}

// Find looks the selector up on the foreground screen.
func (d *Driver) Find(_ context.Context, sel locator.Selector) (driver.Lookup, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.errs[OpFind]; err != nil {
		return nil, err
	}
	return d.lookup(sel), nil
}

// WaitFor resolves sel if it is visible or scheduled within timeout.
func (d *Driver) WaitFor(_ context.Context, sel locator.Selector, timeout time.Duration) (driver.Lookup, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.errs[OpFind]; err != nil {
		return nil, err
	}

	// time only passes when the element is not already there
	if _, ok := d.match(sel); !ok {
		d.promote(timeout)
	}
	l := d.lookup(sel)
	_, found := l.(driver.Found)
	d.Waits = append(d.Waits, Wait{Selector: sel, Timeout: timeout, Found: found})
	return l, nil
}

// Click taps an element and runs its click hook.
func (d *Driver) Click(_ context.Context, el driver.Element) error {
	d.mu.Lock()
	if err := d.errs[OpClick]; err != nil {
		d.mu.Unlock()
		return err
	}
	if _, ok := d.match(el.Selector); !ok {
		d.mu.Unlock()
		return fmt.Errorf("stale element: %s", el.Selector.Describe())
	}
	d.Clicks = append(d.Clicks, el.Selector.Value)
	fn := d.onClick[element{kind: el.Selector.Kind, value: el.Selector.Value}]
	d.mu.Unlock()

	if fn != nil {
		fn(d)
	}
	return nil
}

// PressBack pops the foreground package unless a back hook is set.
func (d *Driver) PressBack(context.Context) error {
	d.mu.Lock()
	if err := d.errs[OpBack]; err != nil {
		d.mu.Unlock()
		return err
	}
	d.Backs++
	fn := d.onBack
	if fn == nil && len(d.stack) > 1 {
		d.stack = d.stack[:len(d.stack)-1]
	}
	d.mu.Unlock()

	if fn != nil {
		fn(d)
	}
	return nil
}

// PressHome returns to the launcher unless a home hook is set.
func (d *Driver) PressHome(context.Context) error {
	d.mu.Lock()
	if err := d.errs[OpHome]; err != nil {
		d.mu.Unlock()
		return err
	}
	d.Homes++
	fn := d.onHome
	if fn == nil {
		d.stack = []string{d.launcher}
	}
	d.mu.Unlock()

	if fn != nil {
		fn(d)
	}
	return nil
}

// LauncherPackage returns the launcher package given to New.
func (d *Driver) LauncherPackage(context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.errs[OpLauncher]; err != nil {
		return "", err
	}
	return d.launcher, nil
}

// CurrentPackage returns the foreground package.
func (d *Driver) CurrentPackage(context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.errs[OpCurrent]; err != nil {
		return "", err
	}
	return d.foreground(), nil
}

// LaunchApp starts pkg with an empty screen, or runs the launch hook.
func (d *Driver) LaunchApp(_ context.Context, pkg string) error {
	d.mu.Lock()
	if err := d.errs[OpLaunch]; err != nil {
		d.mu.Unlock()
		return err
	}
	d.Launches = append(d.Launches, pkg)
	fn := d.onLaunch
	d.mu.Unlock()

	if fn != nil {
		return fn(d, pkg)
	}
	d.Start(pkg)
	return nil
}

// Close records that the handle was released.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Closes++
	return nil
}

func (d *Driver) foreground() string {
	return d.stack[len(d.stack)-1]
}

func (d *Driver) current() *screen {
	pkg := d.foreground()
	s, ok := d.screens[pkg]
	if !ok {
		s = &screen{}
		d.screens[pkg] = s
	}
	return s
}

func (d *Driver) lookup(sel locator.Selector) driver.Lookup {
	el, ok := d.match(sel)
	if !ok {
		return driver.NotFound{Selector: sel}
	}
	return driver.Found{Element: driver.Element{ID: el.kind.String() + ":" + el.value, Selector: sel}}
}

func (d *Driver) match(sel locator.Selector) (element, bool) {
	if sel.Kind == locator.KindPackage {
		if d.foreground() == sel.Value {
			return element{kind: locator.KindPackage, value: sel.Value}, true
		}
		return element{}, false
	}
	for _, el := range d.current().elements {
		if matches(el, sel) {
			return el, true
		}
	}
	return element{}, false
}

// promote moves pending elements whose delay fits in timeout onto the screen.
// Delays of the ones left are reduced by the time waited.
func (d *Driver) promote(timeout time.Duration) {
	s := d.current()
	var left []pending
	for _, p := range s.pending {
		if p.delay <= timeout {
			if s.index(p.el) < 0 {
				s.elements = append(s.elements, p.el)
			}
			continue
		}
		p.delay -= timeout
		left = append(left, p)
	}
	s.pending = left
}

func (s *screen) index(el element) int {
	for i, e := range s.elements {
		if e == el {
			return i
		}
	}
	return -1
}

func matches(el element, sel locator.Selector) bool {
	switch sel.Kind {
	case locator.KindDesc:
		return el.kind == locator.KindDesc && el.value == sel.Value
	case locator.KindText:
		return el.kind == locator.KindText && el.value == sel.Value
	case locator.KindTextContains:
		return el.kind == locator.KindText && strings.Contains(el.value, sel.Value)
	default:
		return false
	}
}
