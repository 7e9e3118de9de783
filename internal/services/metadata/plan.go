package metadata

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/addressbot/internal/models"
)

// Plan is a selection of nodes to add and nodes to edit
type Plan struct {
	Add  []*models.TreeNode `json:"add" yaml:"add"`
	Edit []*models.TreeNode `json:"edit" yaml:"edit"`
}

// LoadPlan reads a plan file (JSON or YAML by extension)
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan: %w", err)
	}

	var plan Plan
	if err := decode(path, data, &plan); err != nil {
		return nil, fmt.Errorf("failed to parse plan %s: %w", path, err)
	}
	return &plan, nil
}

// Items converts the plan into validated add and edit work items. Nested state
// nodes under a country entry are selected with it.
func (p *Plan) Items() (add, edit []models.WorkItem, err error) {
	v := validator.New()
	if add, err = toItems(v, p.Add); err != nil {
		return nil, nil, fmt.Errorf("add: %w", err)
	}
	if edit, err = toItems(v, p.Edit); err != nil {
		return nil, nil, fmt.Errorf("edit: %w", err)
	}
	return add, edit, nil
}

func toItems(v *validator.Validate, nodes []*models.TreeNode) ([]models.WorkItem, error) {
	var items []models.WorkItem
	for _, node := range Flatten(nodes) {
		if node.TypeNode == models.NodeTypeCountry || node.TypeNode == "" {
			for _, child := range node.Nodes {
				if child.ParentIsoCode == "" {
					child.ParentIsoCode = node.IsoCode
				}
			}
		}

		item, err := node.WorkItem()
		if err != nil {
			return nil, err
		}
		if err := v.Struct(item); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", item, err)
		}
		items = append(items, item)
	}
	return items, nil
}
