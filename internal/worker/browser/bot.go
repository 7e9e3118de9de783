// Package browser drives the Salesforce state and country configuration pages with
// a headless Chrome instance, one browser per work item.
package browser

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/addressbot/internal/models"
	"github.com/ternarybob/addressbot/internal/worker"
	"github.com/ternarybob/arbor"
)

// MinCountryLinks is how many countries a fully loaded configuration page lists
const MinCountryLinks = 239

const defaultStepTimeout = 30 * time.Second

// Bot implements worker.Bot for one country or state
type Bot struct {
	wctx     models.WorkerContext
	item     models.WorkItem
	timeout  time.Duration
	entitled string
	logger   arbor.ILogger

	browserCtx      context.Context
	browserCancel   context.CancelFunc
	allocatorCancel context.CancelFunc

	countryLinks map[string]string
	stateLinks   map[string]string
	countryFound bool
	stateFound   bool
}

// NewFactory returns a worker.BotFactory that launches a browser per item
func NewFactory(logger arbor.ILogger) worker.BotFactory {
	return func(ctx context.Context, wctx models.WorkerContext, item models.WorkItem) (worker.Bot, error) {
		return New(ctx, wctx, item, logger)
	}
}

// New starts a browser for item. The browser is shut down when ctx is cancelled or Close is called.
func New(ctx context.Context, wctx models.WorkerContext, item models.WorkItem, logger arbor.ILogger) (*Bot, error) {
	b := newBot(wctx, item, logger)

	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", wctx.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1280, 1024),
	)
	if wctx.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(wctx.UserAgent))
	}

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx,
		chromedp.WithLogf(func(s string, i ...interface{}) {
			logger.Debug().Msgf("chromedp: "+s, i...)
		}),
	)
	b.browserCtx = browserCtx
	b.browserCancel = browserCancel
	b.allocatorCancel = allocatorCancel

	startCtx, cancel := context.WithTimeout(browserCtx, b.timeout)
	defer cancel()
	if err := chromedp.Run(startCtx, chromedp.Navigate("about:blank")); err != nil {
		b.Close()
		return nil, fmt.Errorf("browser failed startup test: %w", err)
	}

	logger.Debug().
		Str("label", item.Label).
		Bool("headless", wctx.Headless).
		Msg("Browser started")
	return b, nil
}

func newBot(wctx models.WorkerContext, item models.WorkItem, logger arbor.ILogger) *Bot {
	timeout := wctx.StepTimeout
	if timeout <= 0 {
		timeout = defaultStepTimeout
	}
	return &Bot{
		wctx:         wctx,
		item:         item,
		timeout:      timeout,
		entitled:     fmt.Sprintf("[%s %s %s] ", wctx.Action, item.Kind, item.Label),
		logger:       logger,
		countryLinks: map[string]string{},
		stateLinks:   map[string]string{},
	}
}

// Close shuts the browser down
func (b *Bot) Close() error {
	if b.browserCancel != nil {
		b.browserCancel()
	}
	if b.allocatorCancel != nil {
		b.allocatorCancel()
	}
	return nil
}

// Screenshot writes a PNG of the current page to path
func (b *Bot) Screenshot(ctx context.Context, path string) error {
	var buf []byte
	err := b.run(chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().WithFormat(page.CaptureScreenshotFormatPng).Do(ctx)
		return err
	}))
	if err != nil {
		return fmt.Errorf("failed to capture screenshot: %w", err)
	}
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return fmt.Errorf("failed to save screenshot: %w", err)
	}
	return nil
}

// run executes actions with the per-step timeout
func (b *Bot) run(actions ...chromedp.Action) error {
	if b.browserCtx == nil {
		return fmt.Errorf("browser not started")
	}
	ctx, cancel := context.WithTimeout(b.browserCtx, b.timeout)
	defer cancel()
	return chromedp.Run(ctx, actions...)
}

// evalBool runs a script that yields a boolean. Any browser error reads as false.
func (b *Bot) evalBool(script string) bool {
	var ok bool
	if err := b.run(chromedp.Evaluate(script, &ok)); err != nil {
		b.logger.Debug().Err(err).Str("label", b.item.Label).Msg("Script evaluation failed")
		return false
	}
	return ok
}

func (b *Bot) html() (string, error) {
	var html string
	if err := b.run(chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

func (b *Bot) message(text string) string {
	return b.entitled + text
}

func js(s string) string {
	return strconv.Quote(s)
}

func existsByID(id string) string {
	return fmt.Sprintf(`document.getElementById(%s) !== null`, js(id))
}

func existsBySelector(selector string) string {
	return fmt.Sprintf(`document.querySelector(%s) !== null`, js(selector))
}

func idOfSelector(selector string) string {
	return fmt.Sprintf(`(function(){ var e = document.querySelector(%s); return e === null ? "" : e.id })()`, js(selector))
}

// clickByID dispatches a bubbling mouse click on the element with id
func clickByID(id string) string {
	return fmt.Sprintf(`(function(){
	var e = document.getElementById(%s);
	if (e === null) { return false; }
	e.dispatchEvent(new MouseEvent("click", {bubbles: true, cancelable: true, view: window}));
	return true;
})()`, js(id))
}

func fillCredentials(login, password string) string {
	return fmt.Sprintf(`(function(){
	var u = document.getElementById("username"), p = document.getElementById("password");
	if (u === null || p === null) { return false; }
	u.value = %s;
	p.value = %s;
	return true;
})()`, js(login), js(password))
}

// fillFields sets the edit form. Standard entries keep their ISO code and active flag.
func fillFields(item models.WorkItem) string {
	return fmt.Sprintf(`(function(intval, code, name, isStandard, isActive){
	var active = document.querySelector("[id$=editActive]");
	var iso = document.querySelector("[id$=editIsoCode]");
	var intVal = document.querySelector("[id$=editIntVal]");
	var label = document.querySelector("[id$=editName]");
	if (active === null || intVal === null || label === null) { return false; }
	if (!isStandard) {
		if (active.checked !== isActive) { active.click(); }
		if (iso !== null) { iso.value = code; }
	}
	intVal.value = intval;
	label.value = name;
	return true;
})(%s, %s, %s, %t, %t)`, js(item.IntegrationValue), js(item.IsoCode), js(item.Label), item.Standard, item.Active)
}

func fillVisible(visible bool) string {
	return fmt.Sprintf(`(function(isVisible){
	var v = document.querySelector("[id$=editVisible]");
	if (v === null) { return false; }
	if (v.checked !== isVisible) { v.click(); }
	return true;
})(%t)`, visible)
}

// configPageURL maps the post-login home page to the states and countries setup page
func configPageURL(current string) string {
	return strings.Replace(current, "/home/home.jsp", "/i18n/ConfigStateCountry.apexp?setupid=AddressCleanerOverview", 1)
}
