package cli

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/dochub/backend/internal/app"
	"github.com/OFFIS-RIT/dochub/backend/pkg/common"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [doc-id]",
	Short: "Show the processing status of a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var logsCmd = &cobra.Command{
	Use:   "logs [doc-id]",
	Short: "Print the pipeline log of a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogs,
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Fail documents stuck in processing",
	Long:  `Marks every document that has been processing for longer than CLEANUP_TIMEOUT as failed.`,
	Args:  cobra.NoArgs,
	RunE:  runCleanup,
}

var graphCmd = &cobra.Command{
	Use:   "graph [doc-id]",
	Short: "Print or delete the graph of a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runGraph,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.Migrate(loadConfig()); err != nil {
			return err
		}
		cmd.Println("Database is up to date")
		return nil
	},
}

var (
	logsArtifacts string
	logsJSON      bool
	graphDelete   bool
)

func init() {
	logsCmd.Flags().StringVar(&logsArtifacts, "artifacts", "", "List the artifacts of a stage instead (\"all\" for every stage)")
	logsCmd.Flags().BoolVar(&logsJSON, "json", false, "Print entries as JSON")
	graphCmd.Flags().BoolVar(&graphDelete, "delete", false, "Delete the document node, its entities and their edges")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(migrateCmd)
}

func withServices(cmd *cobra.Command, fn func(ctx context.Context, s *app.Services) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	services, err := openServices(ctx, loadConfig(), app.Options{Local: localFlag})
	if err != nil {
		return err
	}
	defer services.Close()
	return fn(ctx, services)
}

func runStatus(cmd *cobra.Command, args []string) error {
	return withServices(cmd, func(ctx context.Context, s *app.Services) error {
		status, err := s.Executor.Status(ctx, args[0])
		if err != nil {
			return fmt.Errorf("get status: %w", err)
		}
		cmd.Printf("%s: %s\n", status.DocumentID, status.Status)
		if status.RunID != "" {
			cmd.Printf("  Run: %s\n", status.RunID)
		}
		if status.Status == common.StatusError {
			cmd.Printf("  Stage: %s\n", status.ErrorStage)
			cmd.Printf("  Error: %s\n", status.ErrorMessage)
		}
		return nil
	})
}

func runLogs(cmd *cobra.Command, args []string) error {
	docID := args[0]
	return withServices(cmd, func(ctx context.Context, s *app.Services) error {
		if logsArtifacts != "" {
			stage := logsArtifacts
			if stage == "all" {
				stage = ""
			}
			artifacts, err := s.Logs.GetArtifacts(ctx, docID, stage)
			if err != nil {
				return fmt.Errorf("list artifacts: %w", err)
			}
			if len(artifacts) == 0 {
				cmd.Printf("No artifacts for %s\n", docID)
				return nil
			}
			for _, a := range artifacts {
				cmd.Printf("%-22s %-28s %8d bytes  %s\n", a.Stage, a.Name, len(a.Payload), a.ContentType)
			}
			return nil
		}

		entries, err := s.Logs.GetLog(ctx, docID)
		if err != nil {
			return fmt.Errorf("read log: %w", err)
		}
		if logsJSON {
			return printJSON(cmd, entries)
		}
		if len(entries) == 0 {
			cmd.Printf("No log entries for %s\n", docID)
			return nil
		}
		for _, e := range entries {
			cmd.Printf("%s  %-22s %-11s", e.Timestamp.Format("2006-01-02 15:04:05.000"), e.Stage, e.Status)
			if msg, ok := e.Details["error"]; ok {
				cmd.Printf("  %v", msg)
			} else if d, ok := e.Details["duration_ms"]; ok {
				cmd.Printf("  %v ms", d)
			}
			cmd.Println()
		}
		return nil
	})
}

func runCleanup(cmd *cobra.Command, args []string) error {
	return withServices(cmd, func(ctx context.Context, s *app.Services) error {
		n, err := s.Executor.Cleanup(ctx)
		if err != nil {
			return err
		}
		cmd.Printf("Failed %d stuck document(s)\n", n)
		return nil
	})
}

func runGraph(cmd *cobra.Command, args []string) error {
	docID := args[0]
	return withServices(cmd, func(ctx context.Context, s *app.Services) error {
		if graphDelete {
			if err := s.Graph.DeleteDocumentData(ctx, docID); err != nil {
				return fmt.Errorf("delete graph: %w", err)
			}
			cmd.Printf("Deleted graph data of %s\n", docID)
			return nil
		}
		g, err := s.Graph.GetDocumentGraph(ctx, docID)
		if err != nil {
			return fmt.Errorf("get graph: %w", err)
		}
		return printJSON(cmd, g)
	})
}
