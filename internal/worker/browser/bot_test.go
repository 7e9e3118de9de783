package browser

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/addressbot/internal/models"
	"github.com/ternarybob/arbor"
)

const countryPage = `<html><body>
<table id="configstatecountry:table">
  <tr>
    <td><a id="configstatecountry:table:0:editLink">Edit</a></td>
    <td id="configstatecountry:table:0:name">France</td>
    <td id="configstatecountry:table:0:code">FR</td>
  </tr>
  <tr>
    <td><a id="configstatecountry:table:1:editLink">Edit</a></td>
    <td id="configstatecountry:table:1:name">Canada</td>
    <td id="configstatecountry:table:1:code"> CA </td>
  </tr>
  <tr><td id="configstatecountry:table:2:postcode">not a row</td></tr>
</table>
</body></html>`

func TestLinkMap(t *testing.T) {
	links, err := LinkMap(countryPage, "[id$=code]")
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"FR":     "configstatecountry:table:0:editLink",
		"France": "configstatecountry:table:0:editLink",
		"CA":     "configstatecountry:table:1:editLink",
		"Canada": "configstatecountry:table:1:editLink",
	}, links)
}

func TestLinkMap_EmptyPage(t *testing.T) {
	links, err := LinkMap("<html></html>", "[id$=code]")
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestLinkMap_FullCountryList(t *testing.T) {
	var rows strings.Builder
	for i := 0; i < 120; i++ {
		fmt.Fprintf(&rows, `<tr><td id="c:%d:name">Country %d</td><td id="c:%d:code">K%d</td></tr>`, i, i, i, i)
	}
	links, err := LinkMap("<table>"+rows.String()+"</table>", "[id$=code]")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(links), MinCountryLinks, "codes and labels are both keys")
}

func newTestBot(action models.Action, item models.WorkItem, checkOnly bool) *Bot {
	return newBot(models.WorkerContext{Action: action, CheckOnly: checkOnly}, item, arbor.NewLogger())
}

var (
	france  = models.NewCountryItem(models.ItemAttributes{Label: "France", IsoCode: "FR"}, false)
	ontario = models.NewStateItem(models.ItemAttributes{Label: "Ontario", IsoCode: "ON"}, "CA")
)

func TestSteps_PerActionAndKind(t *testing.T) {
	tests := []struct {
		action models.Action
		item   models.WorkItem
		want   int
	}{
		{models.ActionAdd, france, 9},
		{models.ActionAdd, ontario, 11},
		{models.ActionEdit, france, 10},
		{models.ActionEdit, ontario, 12},
	}
	for _, tt := range tests {
		t.Run(string(tt.action)+"-"+string(tt.item.Kind), func(t *testing.T) {
			assert.Len(t, newTestBot(tt.action, tt.item, false).Steps(), tt.want)
		})
	}
}

func TestCheckOnly_AddStopsBeforeSaving(t *testing.T) {
	b := newTestBot(models.ActionAdd, france, true)
	result := b.addNode(context.Background())

	assert.True(t, result.Done)
	assert.Equal(t, "[add country France] Check only: country has not been added", result.Message)
}

func TestCheckOnly_EditRequiresTheEntryToBeFound(t *testing.T) {
	b := newTestBot(models.ActionEdit, ontario, true)

	result := b.editNode(context.Background())
	assert.False(t, result.Done, "nothing to edit until the state link was followed")

	b.stateFound = true
	result = b.editNode(context.Background())
	assert.True(t, result.Done)
	assert.Equal(t, "[edit state Ontario] Check only: state has not been edited", result.Message)
}

func TestNavigateToCountry_UnknownIso(t *testing.T) {
	b := newTestBot(models.ActionEdit, france, false)
	b.countryLinks = map[string]string{"CA": "x:editLink"}

	result := b.navigateToCountry(context.Background())
	assert.False(t, result.Done)
	assert.False(t, b.countryFound)
}

func TestNavigateToState_UsesParentCountryForCountryLink(t *testing.T) {
	assert.Equal(t, "CA", ontario.CountryIsoCode())
	b := newTestBot(models.ActionEdit, ontario, false)
	b.countryLinks = map[string]string{}

	result := b.navigateToCountry(context.Background())
	assert.Contains(t, result.Message, "CA link")
}

func TestBrowserStepsFailWithoutBrowser(t *testing.T) {
	b := newTestBot(models.ActionAdd, france, false)
	assert.False(t, b.navigateToLogin(context.Background()).Done)
	assert.False(t, b.addNode(context.Background()).Done)
	assert.Error(t, b.Screenshot(context.Background(), t.TempDir()+"/x.png"))
	assert.NoError(t, b.Close())
}

func TestConfigPageURL(t *testing.T) {
	assert.Equal(t,
		"https://eu1.salesforce.com/i18n/ConfigStateCountry.apexp?setupid=AddressCleanerOverview",
		configPageURL("https://eu1.salesforce.com/home/home.jsp"))
}

func TestFillFieldsScriptEscapesValues(t *testing.T) {
	item := models.NewCountryItem(models.ItemAttributes{Label: `Côte d"Ivoire`, IsoCode: "CI", Active: true}, false)
	script := fillFields(item)
	assert.Contains(t, script, `"Côte d\"Ivoire"`)
	assert.True(t, strings.HasSuffix(script, `false, true)`))
}
