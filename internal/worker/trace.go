package worker

import (
	"fmt"
	"path/filepath"

	"github.com/ternarybob/addressbot/internal/models"
)

// ImageDir returns where trace screenshots for item are written:
// <debug>/images/countries/<iso> or <debug>/images/states/<country>/<iso>.
func ImageDir(debugDir string, item models.WorkItem) string {
	if item.IsState() {
		return filepath.Join(debugDir, "images", "states", item.ParentIsoCode, item.IsoCode)
	}
	return filepath.Join(debugDir, "images", "countries", item.IsoCode)
}

// ScreenshotPath is the trace file for the step at index
func ScreenshotPath(debugDir string, item models.WorkItem, index int) string {
	return filepath.Join(ImageDir(debugDir, item), fmt.Sprintf("step_%s_%d.png", item.IsoCode, index))
}
