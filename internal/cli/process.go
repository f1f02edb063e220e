package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/OFFIS-RIT/dochub/backend/internal/app"
	"github.com/OFFIS-RIT/dochub/backend/pkg/common"
	"github.com/OFFIS-RIT/dochub/backend/pkg/executor"
	"github.com/OFFIS-RIT/dochub/backend/pkg/pipeline"

	"github.com/spf13/cobra"
)

var processCmd = &cobra.Command{
	Use:   "process [doc-id]",
	Short: "Run the pipeline for a document in this process",
	Long: `Claims the document, runs every stage in this process and prints a
per-stage summary. With --local the document is described by --file and
never touches the database.`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

var (
	processFile      string
	processName      string
	processFolder    string
	processUser      string
	processReprocess bool
)

func init() {
	processCmd.Flags().StringVarP(&processFile, "file", "f", "", "File path of the document (required with --local)")
	processCmd.Flags().StringVar(&processName, "name", "", "Document name, defaults to the file name")
	processCmd.Flags().StringVar(&processFolder, "folder", "", "Folder id of the document")
	processCmd.Flags().StringVar(&processUser, "user", "", "Owner whose schema applies")
	processCmd.Flags().BoolVar(&processReprocess, "reprocess", false, "Rerun a document whose last run failed")
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	docID := args[0]

	cfg := loadConfig()
	opts := app.Options{Local: localFlag}
	if localFlag {
		if processFile == "" {
			return errors.New("--file is required with --local")
		}
		name := processName
		if name == "" {
			name = filepath.Base(processFile)
		}
		opts.Documents = executor.NewMemoryDocumentStore(common.Document{
			ID:       docID,
			Name:     name,
			FilePath: processFile,
			FolderID: processFolder,
			UserID:   processUser,
		})
	}

	services, err := openServices(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer services.Close()

	var accepted bool
	if processReprocess {
		accepted, err = services.Executor.Reprocess(ctx, docID)
	} else {
		accepted, err = services.Executor.Trigger(ctx, docID)
	}
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	if !accepted {
		cmd.Printf("Document %s is already processing\n", docID)
		return nil
	}

	cmd.Printf("Processing document %s...\n", docID)
	services.Executor.Wait()

	status, err := services.Executor.Status(ctx, docID)
	if err != nil {
		return err
	}
	res, _ := services.Executor.LastResult(docID)
	printSummary(cmd, status, res)

	if status.Status == common.StatusError {
		return fmt.Errorf("document %s failed in %s", docID, status.ErrorStage)
	}
	return nil
}

func printSummary(cmd *cobra.Command, status executor.Status, res pipeline.Result) {
	cmd.Println()
	cmd.Printf("Document:      %s\n", status.DocumentID)
	cmd.Printf("Status:        %s\n", status.Status)
	if status.ErrorStage != "" {
		cmd.Printf("Failed stage:  %s\n", status.ErrorStage)
		cmd.Printf("Error:         %s\n", status.ErrorMessage)
	}
	if res.DocumentType != "" {
		cmd.Printf("Document type: %s\n", res.DocumentType)
	}
	cmd.Println()

	cmd.Println("Stages:")
	for _, stage := range pipeline.Stages {
		marker := "ok"
		switch {
		case stage == res.FailedStage:
			marker = "FAILED"
		case res.Durations == nil:
			marker = "-"
		default:
			if _, ran := res.Durations[stage]; !ran {
				marker = "skipped"
			}
		}
		cmd.Printf("  %-22s %-8s %6d ms\n", stage, marker, res.Durations[stage])
	}
	cmd.Println()

	cmd.Printf("Chunks:        %d\n", res.ChunkCount)
	cmd.Printf("Embeddings:    %d\n", res.EmbeddingCount)
	cmd.Printf("Entities:      %d\n", res.EntityCount)
	cmd.Printf("Relationships: %d\n", res.RelationshipCount)
	if res.SkippedRecords > 0 {
		cmd.Printf("Skipped:       %d\n", res.SkippedRecords)
	}
	if res.RelatedDocuments > 0 {
		cmd.Printf("Related docs:  %d\n", res.RelatedDocuments)
	}
}
