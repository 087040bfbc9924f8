package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// LocatorKind selects how a Locator query is interpreted.
type LocatorKind int

const (
	CSS LocatorKind = iota
	XPath
)

// Locator is one element lookup strategy.
type Locator struct {
	Query string
	Kind  LocatorKind
}

func (l Locator) String() string {
	if l.Kind == XPath {
		return "xpath:" + l.Query
	}
	return l.Query
}

// LaunchOptions configures an isolated browser session.
type LaunchOptions struct {
	Headless bool
	ExecPath string
}

// Launcher starts isolated browser sessions.
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Session, error)
}

// Session is one isolated browser page. Every blocking call honours ctx.
type Session interface {
	Navigate(ctx context.Context, url string) error
	Exists(ctx context.Context, loc Locator) (bool, error)
	Click(ctx context.Context, loc Locator) error
	SelectValue(ctx context.Context, loc Locator, value string) error
	Clear(ctx context.Context, loc Locator) error
	Type(ctx context.Context, loc Locator, text string) error
	PressEnter(ctx context.Context, loc Locator) error
	// WaitIdle blocks until the document has finished loading or timeout
	// elapses. Hitting the timeout is not an error.
	WaitIdle(ctx context.Context, timeout time.Duration) error
	Sleep(ctx context.Context, d time.Duration) error
	BodyText(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// ============================================================================
// SELECTOR CASCADES
// ============================================================================

// ErrNoMatch is returned when no locator of a cascade is present on the page.
var ErrNoMatch = errors.New("no element matched the selector cascade")

// Cascade is a ranked list of lookup strategies; the first present one wins.
type Cascade []Locator

// Resolve returns the first locator of the cascade present on the page.
// Lookup errors on one strategy do not stop the cascade.
func (c Cascade) Resolve(ctx context.Context, s Session) (Locator, error) {
	var lastErr error
	for _, loc := range c {
		if err := ctx.Err(); err != nil {
			return Locator{}, err
		}
		ok, err := s.Exists(ctx, loc)
		if err != nil {
			lastErr = err
			continue
		}
		if ok {
			return loc, nil
		}
	}
	if lastErr != nil {
		return Locator{}, fmt.Errorf("%w (last lookup error: %v)", ErrNoMatch, lastErr)
	}
	return Locator{}, ErrNoMatch
}

// ModeAction is how a query-mode control is operated once found.
type ModeAction int

const (
	ModeSelect ModeAction = iota // choose Value in a <select>
	ModeClick                    // click a radio button or label
)

// ModeStep is one entry of a query-mode cascade.
type ModeStep struct {
	Locator Locator
	Action  ModeAction
	Value   string
}
