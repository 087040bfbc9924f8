package scraper

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/LovationAdmin/aldia-api/models"
	"github.com/LovationAdmin/aldia-api/utils"
)

// Options are the per-call knobs of a provider query.
type Options struct {
	Headless                 bool
	CaptureScreenshotOnError bool
	// Timeout bounds navigation and each element lookup. Zero uses the
	// driver default.
	Timeout time.Duration
}

// Profile describes one provider portal as data: where it lives, how to put
// it in "query by account" mode, where to type, how to submit and which labels
// to read back.
type Profile struct {
	Kind models.ProviderKind
	URL  string

	// ModeSteps is optional; the first present step is applied and the rest
	// are ignored. An empty list or no present step is not an error.
	ModeSteps []ModeStep
	Input     Cascade
	Submit    Cascade

	// ExtraSettle is added to the settle delay for slower portals.
	ExtraSettle time.Duration

	Fields    []FieldSpec
	Normalize func(f Fields, identifier string, loc *time.Location) models.QueryResult
}

// Timing holds the fixed waits of the query flow.
type Timing struct {
	Navigation  time.Duration
	Submit      time.Duration
	ModeSettle  time.Duration
	EnterWait   time.Duration
	SettleDelay time.Duration
}

// DefaultTiming mirrors what the provider portals tolerate in practice.
func DefaultTiming() Timing {
	return Timing{
		Navigation:  30 * time.Second,
		Submit:      15 * time.Second,
		ModeSettle:  500 * time.Millisecond,
		EnterWait:   1500 * time.Millisecond,
		SettleDelay: time.Second,
	}
}

// Driver runs queries against one provider portal. It is safe for concurrent
// use; every query gets its own browser session.
type Driver struct {
	profile  Profile
	launcher Launcher
	timing   Timing
	execPath string
	loc      *time.Location
	logger   *zap.Logger
}

type DriverConfig struct {
	Timing   Timing
	ExecPath string
	Location *time.Location
}

func NewDriver(profile Profile, launcher Launcher, cfg DriverConfig, logger *zap.Logger) *Driver {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Timing.Navigation == 0 {
		cfg.Timing = DefaultTiming()
	}
	return &Driver{
		profile:  profile,
		launcher: launcher,
		timing:   cfg.Timing,
		execPath: cfg.ExecPath,
		loc:      cfg.Location,
		logger:   logger.Named("driver").With(zap.String("provider", string(profile.Kind))),
	}
}

func (d *Driver) Kind() models.ProviderKind {
	return d.profile.Kind
}

// stepError marks the query step that failed, for logs and user messages.
type stepError struct {
	step string
	err  error
}

func (e *stepError) Error() string { return e.step + ": " + e.err.Error() }
func (e *stepError) Unwrap() error { return e.err }

func step(name string, err error) error {
	if err == nil {
		return nil
	}
	return &stepError{step: name, err: err}
}

// Query looks up one account. It never returns an error: every failure,
// including a panic inside the browser layer, becomes an ok=false result. The
// browser session is closed on every path and nothing is retried.
func (d *Driver) Query(ctx context.Context, identifier string, opts Options) (result models.QueryResult) {
	start := time.Now()
	logger := d.logger.With(utils.AccountField(identifier))

	session, err := d.launcher.Launch(ctx, LaunchOptions{Headless: opts.Headless, ExecPath: d.execPath})
	if err != nil {
		logger.Error("Failed to launch browser", zap.Error(err))
		return models.FailedResult(d.profile.Kind, fmt.Sprintf("could not start browser: %v", err))
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			logger.Warn("Failed to close browser session", zap.Error(cerr))
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Provider query panicked", zap.Any("panic", r))
			result = d.fail(ctx, session, opts, fmt.Errorf("unexpected failure: %v", r))
		}
	}()

	text, err := d.run(ctx, session, identifier, opts)
	if err != nil {
		logger.Warn("Provider query failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return d.fail(ctx, session, opts, err)
	}

	fields := Extract(text, d.profile.Fields)
	result = d.profile.Normalize(fields, identifier, d.loc)
	result.Provider = d.profile.Kind
	result.RawText = text
	result.FetchedAt = time.Now()

	logger.Info("Provider query completed",
		zap.Int("fields_found", len(fields)),
		zap.Duration("elapsed", time.Since(start)))
	return result
}

func (d *Driver) run(ctx context.Context, s Session, identifier string, opts Options) (string, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = d.timing.Navigation
	}

	navCtx, cancel := context.WithTimeout(ctx, timeout)
	err := s.Navigate(navCtx, d.profile.URL)
	cancel()
	if err != nil {
		return "", step("navigation", err)
	}

	if err := d.selectMode(ctx, s, timeout); err != nil {
		return "", step("query mode", err)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, timeout)
	input, err := d.profile.Input.Resolve(lookupCtx, s)
	cancel()
	if err != nil {
		return "", step("account input not found", err)
	}

	if err := d.fill(ctx, s, input, identifier, timeout); err != nil {
		return "", step("typing account", err)
	}

	if err := d.submit(ctx, s, input, timeout); err != nil {
		return "", step("submit", err)
	}

	if err := s.Sleep(ctx, d.timing.SettleDelay+d.profile.ExtraSettle); err != nil {
		return "", step("settle", err)
	}

	readCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	text, err := s.BodyText(readCtx)
	if err != nil {
		return "", step("reading page", err)
	}
	return text, nil
}

// selectMode applies the first present mode step. Absence of every mode
// control is tolerated, and so is a control that refuses the action.
func (d *Driver) selectMode(ctx context.Context, s Session, timeout time.Duration) error {
	for _, ms := range d.profile.ModeSteps {
		lookupCtx, cancel := context.WithTimeout(ctx, timeout)
		ok, err := s.Exists(lookupCtx, ms.Locator)
		if err != nil || !ok {
			cancel()
			continue
		}
		switch ms.Action {
		case ModeSelect:
			err = s.SelectValue(lookupCtx, ms.Locator, ms.Value)
		case ModeClick:
			err = s.Click(lookupCtx, ms.Locator)
		}
		cancel()
		if err != nil {
			d.logger.Debug("Query mode control present but not usable",
				zap.Stringer("locator", ms.Locator), zap.Error(err))
			continue
		}
		return s.Sleep(ctx, d.timing.ModeSettle)
	}
	return ctx.Err()
}

func (d *Driver) fill(ctx context.Context, s Session, input Locator, identifier string, timeout time.Duration) error {
	fillCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := s.Clear(fillCtx, input); err != nil {
		return err
	}
	return s.Type(fillCtx, input, identifier)
}

// submit prefers a submit control followed by a bounded wait for the page to
// settle; without one it presses Enter in the input and waits a fixed time.
func (d *Driver) submit(ctx context.Context, s Session, input Locator, timeout time.Duration) error {
	lookupCtx, cancel := context.WithTimeout(ctx, timeout)
	button, err := d.profile.Submit.Resolve(lookupCtx, s)
	if err == nil {
		err = s.Click(lookupCtx, button)
	}
	cancel()

	if err == nil {
		return s.WaitIdle(ctx, d.timing.Submit)
	}
	if !errors.Is(err, ErrNoMatch) {
		d.logger.Debug("Submit control not clickable, pressing Enter", zap.Error(err))
	}

	enterCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := s.PressEnter(enterCtx, input); err != nil {
		return err
	}
	return s.Sleep(ctx, d.timing.EnterWait)
}

// fail converts err into an ok=false result, attaching a screenshot when
// requested. The screenshot is best-effort and its own failure is ignored.
func (d *Driver) fail(ctx context.Context, s Session, opts Options, err error) models.QueryResult {
	res := models.FailedResult(d.profile.Kind, err.Error())
	if !opts.CaptureScreenshotOnError {
		return res
	}

	shotCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	png, serr := safeScreenshot(shotCtx, s)
	if serr != nil {
		d.logger.Debug("Screenshot capture failed", zap.Error(serr))
		return res
	}
	res.Screenshot = "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	return res
}

func safeScreenshot(ctx context.Context, s Session) (png []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("screenshot panicked: %v", r)
		}
	}()
	png, err = s.Screenshot(ctx)
	if err == nil && len(png) == 0 {
		err = errors.New("empty screenshot")
	}
	return png, err
}
