// Package cli implements dochubctl, the operator command line of the
// document pipeline.
package cli

import (
	"context"
	"encoding/json"

	"github.com/OFFIS-RIT/dochub/backend/internal/app"
	"github.com/OFFIS-RIT/dochub/backend/internal/util"
	"github.com/OFFIS-RIT/dochub/backend/pkg/logger"
	"github.com/OFFIS-RIT/dochub/backend/pkg/logger/console"

	"github.com/spf13/cobra"
)

var (
	debugFlag    bool
	jsonLogsFlag bool
	localFlag    bool
)

var rootCmd = &cobra.Command{
	Use:   "dochubctl",
	Short: "Operate the document processing pipeline",
	Long: `dochubctl runs, inspects and repairs document pipeline runs.

Without --local it talks to the database configured by DATABASE_URL.
With --local documents, chunks and the graph stay in memory and logs,
artifacts and schemas go to the badger store at PIPELINE_LOG_PATH.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		util.LoadEnv()
		logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{
			Debug:  debugFlag || util.GetEnvBool("DEBUG", false),
			JSON:   jsonLogsFlag,
			Output: cmd.ErrOrStderr(),
		}))
	},
}

// openServices builds the services for a command. Tests replace it.
var openServices = func(ctx context.Context, cfg app.Config, opts app.Options) (*app.Services, error) {
	return app.New(ctx, cfg, opts)
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLogsFlag, "json-logs", false, "Write logs as JSON lines")
	rootCmd.PersistentFlags().BoolVar(&localFlag, "local", false, "Run without postgres using in-memory and badger stores")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func loadConfig() app.Config {
	cfg := app.LoadConfig()
	if localFlag && util.GetEnv("FILE_SOURCE") == "" {
		cfg.FileSource = "local"
	}
	if localFlag {
		cfg.PipelineLogStore = "badger"
		if cfg.ArtifactStore != "s3" {
			cfg.ArtifactStore = "badger"
		}
	}
	return cfg
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
