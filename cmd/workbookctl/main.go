// Package main provides the workbookctl command line: import files, validate
// and check workbooks, submit them and run the API server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go-workbook-pipeline/internal/api"
	"go-workbook-pipeline/internal/app"
	"go-workbook-pipeline/internal/config"
	"go-workbook-pipeline/internal/model"
	"go-workbook-pipeline/internal/pipeline"
	"go-workbook-pipeline/pkg/router"

	"github.com/spf13/cobra"
)

var (
	configPath string
	pretty     bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "workbookctl",
		Short: "Check and submit workbooks",
		Long: `workbookctl imports CSV, JSON and XLSX files as workbooks, validates
their records and submits a workbook once every record is processed.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", ".", "Config file or directory holding config.yaml")
	rootCmd.PersistentFlags().BoolVar(&pretty, "pretty", false, "Pretty-print JSON output")

	rootCmd.AddCommand(newServeCmd(), newIngestCmd(), newValidateCmd(), newCheckCmd(), newSubmitCmd())
	return rootCmd
}

// withApp loads config, builds the app and runs fn with a signal-aware context.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSON(w io.Writer, v interface{}) error {
	var data []byte
	var err error
	if pretty {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return fmt.Errorf("serialization failed: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if addr == "" {
					addr = a.Config.Server.Addr
				}
				return router.Serve(ctx, addr, api.NewServer(a))
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: server.addr)")
	return cmd
}

func newIngestCmd() *cobra.Command {
	var space, username, metadata string
	cmd := &cobra.Command{
		Use:   "ingest [file or location]",
		Short: "Import a CSV, JSON or XLSX file as a new workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := pipeline.ImportRequest{SpaceName: space, Username: username}
			if metadata != "" {
				if err := json.Unmarshal([]byte(metadata), &req.Metadata); err != nil {
					return fmt.Errorf("invalid --metadata: %w", err)
				}
			}

			if _, err := os.Stat(args[0]); err == nil {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				req.Data = f
				req.FileName = filepath.Base(args[0])
			} else {
				req.Location = args[0]
			}

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Importer.Import(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().StringVar(&space, "space", "", "Space name")
	cmd.Flags().StringVar(&username, "username", "", "Uploading user, stored as the customer_id secret")
	cmd.Flags().StringVar(&metadata, "metadata", "", "Space metadata as a JSON object")
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [workbook-id]",
		Short: "Apply validation rules and mark every record processed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				summary, err := a.Validator.ValidateWorkbook(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), summary)
			})
		},
	}
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [workbook-id]",
		Short: "Report whether every record of a workbook is processed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Checker.Check(ctx, args[0])
				if err != nil {
					return err
				}
				out := map[string]interface{}{"readiness": res}
				if res.Ready() {
					out["summary"] = pipeline.Summarize(res.Payload)
				}
				return printJSON(cmd.OutOrStdout(), out)
			})
		},
	}
}

func newSubmitCmd() *cobra.Command {
	var spaceID, jobID string
	cmd := &cobra.Command{
		Use:   "submit [workbook-id]",
		Short: "Submit a workbook under a new or existing job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workbookID := args[0]
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if spaceID == "" {
					if wb, err := a.Store.GetWorkbook(ctx, workbookID); err == nil {
						spaceID = wb.SpaceID
					}
				}
				if jobID == "" {
					job, err := a.Source.CreateJob(ctx, model.Job{
						WorkbookID: workbookID,
						SpaceID:    spaceID,
						Operation:  model.OperationSubmit,
					})
					if err != nil {
						return fmt.Errorf("failed to create job: %w", err)
					}
					jobID = job.ID
				}

				out := a.Driver.Submit(ctx, pipeline.SubmitRequest{
					JobID:      jobID,
					WorkbookID: workbookID,
					SpaceID:    spaceID,
				})
				if err := printJSON(cmd.OutOrStdout(), out); err != nil {
					return err
				}
				if out.Status != pipeline.OutcomeCompleted {
					return fmt.Errorf("submission %s: %s", out.Status, out.Error)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&spaceID, "space", "", "Space ID (default: the workbook's space)")
	cmd.Flags().StringVar(&jobID, "job", "", "Existing job ID to report on")
	return cmd
}
