package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/tree"
	"github.com/ternarybob/addressbot/internal/common"
	"github.com/ternarybob/addressbot/internal/models"
	"github.com/ternarybob/addressbot/internal/services/metadata"
	"github.com/ternarybob/arbor"
)

var inactiveStyle = lipgloss.NewStyle().Faint(true)

// treeCommand prints the data tree built from a metadata export
func treeCommand(ctx context.Context, config *common.Config, logger arbor.ILogger, metadataPath string) error {
	if metadataPath == "" {
		return errors.New("-metadata is required")
	}

	settings, err := metadata.NewFileSource(metadataPath, logger).
		Retrieve(ctx, config.ResolveLoginURL(), config.Target.Login, config.Target.Password)
	if err != nil {
		return err
	}

	fmt.Fprintln(os.Stdout, renderTree(metadata.BuildTree(settings)))
	return nil
}

// renderTree draws countries and their states; inactive nodes are dimmed
func renderTree(nodes []*models.TreeNode) string {
	root := tree.Root(fmt.Sprintf("Countries (%d)", len(nodes))).Enumerator(tree.RoundedEnumerator)
	for _, node := range nodes {
		root.Child(subtree(node))
	}
	return root.String()
}

func subtree(node *models.TreeNode) any {
	label := fmt.Sprintf("[%d] %s (%s)", node.NodeID, node.Text, node.IsoCode)
	if !node.Active {
		label = inactiveStyle.Render(label + " inactive")
	}
	if len(node.Nodes) == 0 {
		return label
	}

	t := tree.Root(label)
	for _, child := range node.Nodes {
		t.Child(subtree(child))
	}
	return t
}
