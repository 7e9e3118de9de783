// Package metadata turns the org's address settings into the selectable data tree and
// reads selection plans built from it.
package metadata

import (
	"strings"

	"github.com/ternarybob/addressbot/internal/models"
)

// BuildTree projects the raw settings into tree nodes, one per country with its states
// as children. Node ids are assigned depth first starting at 0, the order a tree view
// enumerates them.
func BuildTree(settings *models.AddressSettings) []*models.TreeNode {
	if settings == nil {
		return nil
	}

	var tree []*models.TreeNode
	nextID := 0
	for _, country := range settings.CountriesAndStates.Countries {
		countryNode := countryNode(country)
		countryNode.NodeID = nextID
		nextID++

		for _, state := range country.States {
			stateNode := stateNode(state, countryNode.IsoCode)
			stateNode.NodeID = nextID
			nextID++
			countryNode.Nodes = append(countryNode.Nodes, stateNode)
		}
		tree = append(tree, countryNode)
	}
	return tree
}

func countryNode(c models.RawCountry) *models.TreeNode {
	return &models.TreeNode{
		Text:             c.Label,
		IntegrationValue: c.IntegrationValue,
		IsoCode:          c.IsoCode,
		OrgDefault:       c.OrgDefault.Bool(),
		Standard:         c.Standard.Bool(),
		Active:           c.Active.Bool(),
		Visible:          c.Visible.Bool(),
		TypeNode:         models.NodeTypeCountry,
		Selectable:       true,
	}
}

func stateNode(s models.RawState, parentIsoCode string) *models.TreeNode {
	return &models.TreeNode{
		Text:             s.Label,
		IntegrationValue: s.IntegrationValue,
		IsoCode:          s.IsoCode,
		Standard:         s.Standard.Bool(),
		Active:           s.Active.Bool(),
		Visible:          s.Visible.Bool(),
		ParentIsoCode:    parentIsoCode,
		TypeNode:         models.NodeTypeState,
		Selectable:       true,
	}
}

// Flatten returns every node depth first
func Flatten(tree []*models.TreeNode) []*models.TreeNode {
	var out []*models.TreeNode
	var walk func(nodes []*models.TreeNode)
	walk = func(nodes []*models.TreeNode) {
		for _, n := range nodes {
			out = append(out, n)
			walk(n.Nodes)
		}
	}
	walk(tree)
	return out
}

// CountryCodes returns the upper-cased ISO codes of the tree's countries
func CountryCodes(tree []*models.TreeNode) map[string]bool {
	codes := make(map[string]bool, len(tree))
	for _, n := range tree {
		if n.TypeNode == models.NodeTypeCountry {
			codes[strings.ToUpper(n.IsoCode)] = true
		}
	}
	return codes
}

// Find returns the node with the given country and, optionally, state ISO codes
func Find(tree []*models.TreeNode, countryIso, stateIso string) (*models.TreeNode, bool) {
	for _, c := range tree {
		if !strings.EqualFold(c.IsoCode, countryIso) {
			continue
		}
		if stateIso == "" {
			return c, true
		}
		for _, s := range c.Nodes {
			if strings.EqualFold(s.IsoCode, stateIso) {
				return s, true
			}
		}
		return nil, false
	}
	return nil, false
}
