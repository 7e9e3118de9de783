package models

import (
	"fmt"
	"strings"
)

// NodeType discriminates the two kinds of work item
type NodeType string

const (
	NodeTypeCountry NodeType = "country"
	NodeTypeState   NodeType = "state"
)

// Action is what a phase does to its items
type Action string

const (
	ActionAdd  Action = "add"
	ActionEdit Action = "edit"
)

// IsValid reports whether the action is one a worker understands
func (a Action) IsValid() bool {
	return a == ActionAdd || a == ActionEdit
}

// ItemAttributes are the fields shared by countries and states
type ItemAttributes struct {
	Label            string `json:"text" yaml:"text" validate:"required"`
	IntegrationValue string `json:"integrationValue" yaml:"integrationValue"`
	IsoCode          string `json:"isoCode" yaml:"isoCode" validate:"required"`
	Standard         bool   `json:"standard" yaml:"standard"`
	Active           bool   `json:"active" yaml:"active"`
	Visible          bool   `json:"visible" yaml:"visible"`
}

// WorkItem is one record of work. Kind is fixed by the constructor; a state
// always carries its parent ISO code and a country never does.
type WorkItem struct {
	ItemAttributes `yaml:",inline"`
	Kind           NodeType `json:"typeNode" yaml:"typeNode" validate:"oneof=country state"`
	OrgDefault     bool     `json:"orgDefault,omitempty" yaml:"orgDefault,omitempty"`
	ParentIsoCode  string   `json:"parentIsoCode,omitempty" yaml:"parentIsoCode,omitempty" validate:"required_if=Kind state,excluded_if=Kind country"`
	NodeID         int      `json:"nodeId" yaml:"nodeId"`
}

// NewCountryItem builds a country work item
func NewCountryItem(attrs ItemAttributes, orgDefault bool) WorkItem {
	return WorkItem{
		ItemAttributes: attrs,
		Kind:           NodeTypeCountry,
		OrgDefault:     orgDefault,
	}
}

// NewStateItem builds a state work item owned by the country with parentIsoCode
func NewStateItem(attrs ItemAttributes, parentIsoCode string) WorkItem {
	return WorkItem{
		ItemAttributes: attrs,
		Kind:           NodeTypeState,
		ParentIsoCode:  parentIsoCode,
	}
}

func (w WorkItem) IsCountry() bool { return w.Kind == NodeTypeCountry }
func (w WorkItem) IsState() bool   { return w.Kind == NodeTypeState }

// CountryIsoCode returns the ISO code of the country the item lives under
func (w WorkItem) CountryIsoCode() string {
	if w.IsState() {
		return w.ParentIsoCode
	}
	return w.IsoCode
}

// Labels returns the labels of items in order
func Labels(items []WorkItem) []string {
	labels := make([]string, len(items))
	for i, item := range items {
		labels[i] = item.Label
	}
	return labels
}

func (w WorkItem) String() string {
	if w.IsState() {
		return fmt.Sprintf("%s %s (%s/%s)", w.Kind, w.Label, strings.ToUpper(w.ParentIsoCode), strings.ToUpper(w.IsoCode))
	}
	return fmt.Sprintf("%s %s (%s)", w.Kind, w.Label, strings.ToUpper(w.IsoCode))
}
