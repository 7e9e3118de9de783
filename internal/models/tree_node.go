package models

import "fmt"

// NodeState is the presentation state of a tree node. The orchestrator never changes it.
type NodeState struct {
	Checked  bool `json:"checked" yaml:"checked"`
	Disabled bool `json:"disabled" yaml:"disabled"`
	Expanded bool `json:"expanded" yaml:"expanded"`
	Selected bool `json:"selected" yaml:"selected"`
}

// TreeNode is the UI-facing projection of a work item. Country nodes own their states.
type TreeNode struct {
	NodeID           int         `json:"nodeId" yaml:"nodeId"`
	Text             string      `json:"text" yaml:"text"`
	IntegrationValue string      `json:"integrationValue" yaml:"integrationValue"`
	IsoCode          string      `json:"isoCode" yaml:"isoCode"`
	OrgDefault       bool        `json:"orgDefault,omitempty" yaml:"orgDefault,omitempty"`
	Standard         bool        `json:"standard" yaml:"standard"`
	Active           bool        `json:"active" yaml:"active"`
	Visible          bool        `json:"visible" yaml:"visible"`
	ParentIsoCode    string      `json:"parentIsoCode,omitempty" yaml:"parentIsoCode,omitempty"`
	TypeNode         NodeType    `json:"typeNode" yaml:"typeNode"`
	Selectable       bool        `json:"selectable" yaml:"selectable"`
	State            NodeState   `json:"state" yaml:"state"`
	Nodes            []*TreeNode `json:"nodes,omitempty" yaml:"nodes,omitempty"`
}

// WorkItem converts the node into a work item, using TypeNode to pick the variant.
// Nodes without a type (hand-written plan files) fall back to the parent ISO code.
func (n *TreeNode) WorkItem() (WorkItem, error) {
	attrs := ItemAttributes{
		Label:            n.Text,
		IntegrationValue: n.IntegrationValue,
		IsoCode:          n.IsoCode,
		Standard:         n.Standard,
		Active:           n.Active,
		Visible:          n.Visible,
	}

	kind := n.TypeNode
	if kind == "" {
		kind = NodeTypeCountry
		if n.ParentIsoCode != "" {
			kind = NodeTypeState
		}
	}

	var item WorkItem
	switch kind {
	case NodeTypeCountry:
		item = NewCountryItem(attrs, n.OrgDefault)
	case NodeTypeState:
		if n.ParentIsoCode == "" {
			return WorkItem{}, fmt.Errorf("state node %q has no parent ISO code", n.Text)
		}
		item = NewStateItem(attrs, n.ParentIsoCode)
	default:
		return WorkItem{}, fmt.Errorf("node %q has unknown type %q", n.Text, n.TypeNode)
	}
	item.NodeID = n.NodeID
	return item, nil
}
