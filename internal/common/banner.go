package common

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner prints the startup banner and logs the settings a run depends on.
// Secrets are never logged. Workers must not call it: their stdout carries progress.
func PrintBanner(config *Config, logger arbor.ILogger) {
	banner.PrintSimple("AddressBot", GetVersion())

	mode := "save"
	if config.Batch.CheckOnly {
		mode = "check only"
	}

	logger.Info().
		Str("environment", config.Environment).
		Str("org_type", config.Target.OrgType).
		Str("login_url", config.ResolveLoginURL()).
		Int("capacity", config.Batch.Capacity).
		Str("mode", mode).
		Bool("trace", config.Batch.Trace).
		Msg("AddressBot starting")
}
