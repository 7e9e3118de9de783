package browser

import (
	"context"
	"strings"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/addressbot/internal/models"
	"github.com/ternarybob/addressbot/internal/worker"
)

// Steps returns the login steps followed by the steps for the bot's action and item kind
func (b *Bot) Steps() []worker.Step {
	steps := []worker.Step{
		b.navigateToLogin,
		b.fillCredentials,
		b.clickByIDStep("Login"),
		b.waitForLogin,
		b.navigateToConfigPage,
	}

	switch {
	case b.wctx.Action == models.ActionEdit && b.item.IsState():
		steps = append(steps,
			b.createCountryLinks,
			b.navigateToCountry,
			b.createStateLinks,
			b.navigateToState,
			b.fillFields,
			b.fillVisible,
			b.editNode,
		)
	case b.wctx.Action == models.ActionEdit:
		steps = append(steps,
			b.createCountryLinks,
			b.navigateToCountry,
			b.fillFields,
			b.fillVisible,
			b.editNode,
		)
	case b.item.IsState():
		steps = append(steps,
			b.createCountryLinks,
			b.navigateToCountry,
			b.addNewNode,
			b.fillFields,
			b.fillVisible,
			b.addNode,
		)
	default:
		steps = append(steps,
			b.addNewNode,
			b.fillFields,
			b.fillVisible,
			b.addNode,
		)
	}
	return steps
}

func (b *Bot) navigateToLogin(ctx context.Context) worker.StepResult {
	err := b.run(chromedp.Navigate(b.wctx.LoginURL))
	return worker.StepResult{Message: b.message("Navigate to:" + b.wctx.LoginURL), Done: err == nil}
}

func (b *Bot) fillCredentials(ctx context.Context) worker.StepResult {
	if !b.evalBool(fillCredentials(b.wctx.Login, b.wctx.Password)) {
		return worker.StepResult{Message: b.message("Waiting for Filling credential")}
	}
	return worker.StepResult{Message: b.message("Credential filled"), Done: true}
}

func (b *Bot) clickByIDStep(id string) worker.Step {
	return func(ctx context.Context) worker.StepResult {
		if !b.evalBool(clickByID(id)) {
			return worker.StepResult{Message: b.message("Trying to click on " + id)}
		}
		return worker.StepResult{Message: b.message("Clicked on " + id), Done: true}
	}
}

func (b *Bot) waitForLogin(ctx context.Context) worker.StepResult {
	if !b.evalBool(existsByID("setupLink")) {
		return worker.StepResult{Message: b.message("Waiting for logged in")}
	}
	return worker.StepResult{Message: b.message("Logged in"), Done: true}
}

func (b *Bot) navigateToConfigPage(ctx context.Context) worker.StepResult {
	var current string
	err := b.run(
		chromedp.Location(&current),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return chromedp.Navigate(configPageURL(current)).Do(ctx)
		}),
	)
	return worker.StepResult{Message: b.message("Navigate to: countries and states page"), Done: err == nil}
}

func (b *Bot) createCountryLinks(ctx context.Context) worker.StepResult {
	iso := b.item.CountryIsoCode()
	if !b.evalBool(existsBySelector("[id^=configstatecountry]")) {
		return worker.StepResult{Message: b.message("Trying to find url for " + iso)}
	}
	links, err := b.pageLinks()
	if err != nil {
		return worker.StepResult{Message: b.message("Trying to find url for " + iso)}
	}
	b.countryLinks = links
	return worker.StepResult{
		Message: b.message("Url for " + iso + " found"),
		Done:    len(links) >= MinCountryLinks,
	}
}

func (b *Bot) navigateToCountry(ctx context.Context) worker.StepResult {
	iso := b.item.CountryIsoCode()
	link, ok := b.countryLinks[iso]
	if !ok {
		b.countryFound = false
		return worker.StepResult{Message: b.message("Trying to click on " + iso + " link")}
	}
	if !b.evalBool(existsByID(link)) {
		return worker.StepResult{Message: b.message("Trying to click on " + iso + " link")}
	}
	b.countryFound = true
	return worker.StepResult{Message: b.message("Clicking on " + link + " link"), Done: b.evalBool(clickByID(link))}
}

func (b *Bot) createStateLinks(ctx context.Context) worker.StepResult {
	if !b.evalBool(existsBySelector("[id^=configurecountry]")) {
		return worker.StepResult{Message: b.message("Trying to find url for " + b.item.IsoCode)}
	}
	links, err := b.pageLinks()
	if err != nil {
		return worker.StepResult{Message: b.message("Trying to find url for " + b.item.IsoCode)}
	}
	b.stateLinks = links
	return worker.StepResult{
		Message: b.message("Url for " + b.item.IsoCode + " found"),
		Done:    len(links) > 0,
	}
}

func (b *Bot) navigateToState(ctx context.Context) worker.StepResult {
	link, ok := b.stateLinks[b.item.IsoCode]
	if !ok {
		b.stateFound = false
		return worker.StepResult{Message: b.message("State has not been found")}
	}
	if !b.evalBool(existsByID(link)) {
		return worker.StepResult{Message: b.message("State has not been found")}
	}
	b.stateFound = true
	return worker.StepResult{Message: b.message("State has been found"), Done: b.evalBool(clickByID(link))}
}

func (b *Bot) fillFields(ctx context.Context) worker.StepResult {
	if !b.evalBool(fillFields(b.item)) {
		return worker.StepResult{Message: b.message("Trying to fill " + string(b.item.Kind))}
	}
	return worker.StepResult{Message: b.message("Fill " + string(b.item.Kind)), Done: true}
}

func (b *Bot) fillVisible(ctx context.Context) worker.StepResult {
	if !b.evalBool(fillVisible(b.item.Visible)) {
		return worker.StepResult{Message: b.message("Trying to set visible field")}
	}
	return worker.StepResult{Message: b.message("Set visible field with success"), Done: true}
}

// editNode saves the edit form. In check-only mode it stops short of saving.
func (b *Bot) editNode(ctx context.Context) worker.StepResult {
	pending := worker.StepResult{Message: b.message("Editing " + string(b.item.Kind) + " " + b.item.Label)}
	found := b.stateFound
	if b.item.IsCountry() {
		found = b.countryFound
	}
	if !found {
		return pending
	}
	if b.wctx.CheckOnly {
		return worker.StepResult{Message: b.message("Check only: " + string(b.item.Kind) + " has not been edited"), Done: true}
	}
	if !b.clickSelector("[id$=saveButtonTop]") {
		return pending
	}
	return worker.StepResult{Message: b.message("has been edited"), Done: true}
}

func (b *Bot) addNewNode(ctx context.Context) worker.StepResult {
	return worker.StepResult{
		Message: b.message("Trying to click on add new " + string(b.item.Kind)),
		Done:    b.clickSelector("[id$=buttonAddNew]"),
	}
}

// addNode submits the new entry. In check-only mode it stops short of adding.
func (b *Bot) addNode(ctx context.Context) worker.StepResult {
	if b.wctx.CheckOnly {
		return worker.StepResult{Message: b.message("Check only: " + string(b.item.Kind) + " has not been added"), Done: true}
	}
	if !b.clickSelector("[id$=addButton]") {
		return worker.StepResult{Message: b.message("Adding " + string(b.item.Kind) + " " + b.item.Label)}
	}
	return worker.StepResult{Message: b.message("has been added"), Done: true}
}

func (b *Bot) clickSelector(selector string) bool {
	if !b.evalBool(existsBySelector(selector)) {
		return false
	}
	var id string
	if err := b.run(chromedp.Evaluate(idOfSelector(selector), &id)); err != nil || strings.TrimSpace(id) == "" {
		return false
	}
	return b.evalBool(clickByID(id))
}

func (b *Bot) pageLinks() (map[string]string, error) {
	html, err := b.html()
	if err != nil {
		return nil, err
	}
	return LinkMap(html, "[id$=code]")
}
