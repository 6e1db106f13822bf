// Package driver defines the automation driver contract the scenarios run
// against, plus helpers shared by its implementations.
package driver

import (
	"context"
	"time"

	"github.com/devicelab-dev/device-features-runner/pkg/locator"
)

// DefaultPollInterval is the delay between two lookups of a bounded wait.
const DefaultPollInterval = 250 * time.Millisecond

// Element is a handle to an on-screen element returned by a lookup.
// ID is only meaningful to the driver that produced it.
type Element struct {
	ID       string
	Selector locator.Selector
}

// Lookup is the outcome of a find: either Found or NotFound.
type Lookup interface {
	isLookup()
}

// Found carries the element a selector resolved to.
type Found struct {
	Element Element
}

// NotFound carries the selector that did not resolve.
type NotFound struct {
	Selector locator.Selector
}

func (Found) isLookup()    {}
func (NotFound) isLookup() {}

// ElementOf returns the element of a Found lookup.
func ElementOf(l Lookup) (Element, bool) {
	f, ok := l.(Found)
	return f.Element, ok
}

// Driver is a handle to one automation session on a device.
//
// Find and WaitFor report an absent element as NotFound with a nil error. A
// non-nil error always means the driver itself failed (transport, session).
type Driver interface {
	// Find looks the selector up once.
	Find(ctx context.Context, sel locator.Selector) (Lookup, error)

	// WaitFor polls until the selector resolves or timeout elapses.
	WaitFor(ctx context.Context, sel locator.Selector, timeout time.Duration) (Lookup, error)

	Click(ctx context.Context, el Element) error
	PressBack(ctx context.Context) error
	PressHome(ctx context.Context) error

	// LauncherPackage returns the package of the device's home screen.
	LauncherPackage(ctx context.Context) (string, error)

	// CurrentPackage returns the package in the foreground.
	CurrentPackage(ctx context.Context) (string, error)

	// LaunchApp starts pkg in a fresh task, clearing any previous one.
	LaunchApp(ctx context.Context, pkg string) error

	// Close releases the session. Safe to call more than once.
	Close() error
}

// Opener acquires a driver. Each scenario opens its own and closes it when done.
type Opener interface {
	Open(ctx context.Context) (Driver, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context) (Driver, error)

// Open calls f.
func (f OpenerFunc) Open(ctx context.Context) (Driver, error) {
	return f(ctx)
}

// FindFunc is a single lookup attempt.
type FindFunc func(ctx context.Context, sel locator.Selector) (Lookup, error)

// finalLookupTimeout bounds the lookup made at the deadline of a wait.
var finalLookupTimeout = 2 * time.Second

// Poll calls find until it returns Found or timeout elapses, sleeping interval
// between attempts. The first attempt is made immediately and a last one at
// the deadline, so a selector that resolves inside the window is never
// reported missing. An expired timeout yields NotFound; cancellation of ctx
// itself yields ctx.Err().
func Poll(ctx context.Context, sel locator.Selector, timeout, interval time.Duration, find FindFunc) (Lookup, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	deadline := time.Now().Add(timeout)
	waitCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	for {
		l, err := find(waitCtx, sel)
		if err != nil {
			// a request cut short by our own deadline is a miss, not a failure
			if waitCtx.Err() != nil && ctx.Err() == nil {
				return lastLookup(ctx, sel, find)
			}
			return nil, err
		}
		if _, ok := l.(Found); ok {
			return l, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		left := time.Until(deadline)
		if left <= 0 {
			return lastLookup(ctx, sel, find)
		}
		timer := time.NewTimer(min(interval, left))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		if time.Until(deadline) <= 0 {
			return lastLookup(ctx, sel, find)
		}
	}
}

// lastLookup makes the deadline attempt on a context of its own, since the
// wait's context has already expired.
func lastLookup(ctx context.Context, sel locator.Selector, find FindFunc) (Lookup, error) {
	lctx, cancel := context.WithTimeout(ctx, finalLookupTimeout)
	defer cancel()

	l, err := find(lctx, sel)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if lctx.Err() != nil {
			return NotFound{Selector: sel}, nil
		}
		return nil, err
	}
	return l, nil
}
