package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ternarybob/addressbot/internal/common"
	"github.com/ternarybob/arbor"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	// Command-line flags
	configFiles  configPaths // Multiple -config flags supported
	planPath     = flag.String("plan", "", "Selection of nodes to add and edit (JSON or YAML)")
	metadataPath = flag.String("metadata", "", "Address settings export used to build the data tree (JSON or YAML)")
	checkOnly    = flag.Bool("check-only", false, "Perform every step except the final save")
	trace        = flag.Bool("trace", false, "Screenshot every browser step into the debug directory")
	capacity     = flag.Int("capacity", 0, "Items per group, i.e. browser bots per worker (overrides config)")
	listen       = flag.String("listen", "", "Serve run progress on host:port (overrides config)")
	reportPDF    = flag.String("report-pdf", "", "Write the run report as PDF to this path")
	showVersion  = flag.Bool("version", false, "Print version information")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] [run|tree|results [run-id]]\n\n", os.Args[0])
		flag.PrintDefaults()
	}
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("AddressBot version %s\n", common.GetFullVersion())
		os.Exit(0)
	}
	common.LoadVersionFromFile()

	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("addressbot.toml"); err == nil {
			configFiles = append(configFiles, "addressbot.toml")
		}
	}

	// 1. Load configuration (default -> file1 -> file2 -> ... -> env)
	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		arbor.NewLogger().Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration files")
		os.Exit(1)
	}

	// 2. Apply command-line flag overrides (highest priority)
	if err := common.ApplyFlagOverrides(config, common.FlagOverrides{
		Capacity:  *capacity,
		CheckOnly: *checkOnly,
		Trace:     *trace,
		Listen:    *listen,
	}); err != nil {
		arbor.NewLogger().Fatal().Err(err).Msg("Invalid command-line flags")
		os.Exit(1)
	}
	if err := config.Validate(); err != nil {
		arbor.NewLogger().Fatal().Err(err).Msg("Invalid configuration")
		os.Exit(1)
	}

	// 3. Initialize logger with final configuration
	logger := common.SetupLogger(config)
	common.InstallCrashHandler("")
	defer common.RecoverWithCrashFile()

	// 4. Print banner
	common.PrintBanner(config, logger)

	logger.Debug().
		Strs("config_files", configFiles).
		Str("badger_path", config.Storage.Badger.Path).
		Str("debug_dir", config.Worker.DebugDir).
		Msg("Resolved configuration")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	verb := "run"
	if flag.NArg() > 0 {
		verb = flag.Arg(0)
	}

	switch verb {
	case "run":
		err = runCommand(ctx, config, logger, runOptions{
			PlanPath:     *planPath,
			MetadataPath: *metadataPath,
			ReportPDF:    *reportPDF,
		})
	case "tree":
		err = treeCommand(ctx, config, logger, *metadataPath)
	case "results":
		err = resultsCommand(ctx, config, logger, flag.Arg(1), *reportPDF)
	default:
		flag.Usage()
		err = fmt.Errorf("unknown command %q", verb)
	}

	if err != nil {
		logger.Error().Err(err).Str("command", verb).Msg("Command failed")
		os.Exit(1)
	}
}
