package main

import (
	"fmt"
	"os"

	"github.com/sakashimaa/paybot/internal/domain"
	"github.com/sakashimaa/paybot/internal/receipt"
	"github.com/sakashimaa/paybot/internal/repository"
	"github.com/sakashimaa/paybot/pkg/config"
	"github.com/sakashimaa/paybot/pkg/db"
	"github.com/sakashimaa/paybot/pkg/storage"
	"github.com/spf13/cobra"
)

func receiptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "receipt [processor-id]",
		Short: "Render the receipt of a stored payment",
		Long: `Render the PDF receipt of a stored payment from its local record.

Examples:
  paybot receipt cs_test_a1b2c3
  paybot receipt cs_test_a1b2c3 -o /tmp/receipt.pdf
  paybot receipt cs_test_a1b2c3 --store`,
		Args: cobra.ExactArgs(1),
		RunE: runReceipt,
	}

	cmd.Flags().StringP("output", "o", "", "Output file (default receipt_<processor-id>.pdf)")
	cmd.Flags().Bool("store", false, "Write to the configured receipt storage instead of a file")
	cmd.Flags().Bool("force", false, "Render even if the payment has not succeeded")

	return cmd
}

func runReceipt(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	processorID := args[0]

	output, _ := cmd.Flags().GetString("output")
	toStorage, _ := cmd.Flags().GetBool("store")
	force, _ := cmd.Flags().GetBool("force")

	cfg, err := config.Read()
	if err != nil {
		return err
	}
	if _, err := cfg.DatabaseURL(); err != nil {
		return err
	}

	logger, sync, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer sync()

	pool, err := db.NewPostgresDB(ctx, cfg.Postgres, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	record, err := repository.NewPaymentRepository(pool, logger).GetByProcessorID(ctx, processorID)
	if err != nil {
		return fmt.Errorf("payment %s: %w", processorID, err)
	}

	if record.Status != domain.StatusSucceeded && !force {
		return fmt.Errorf("payment %s has status %s, use --force to render anyway", processorID, record.Status)
	}

	if toStorage {
		store, err := storage.New(ctx, cfg.Storage)
		if err != nil {
			return err
		}

		doc, err := receipt.NewGenerator(store, logger).Generate(ctx, record)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), doc.Location)
		return nil
	}

	data, err := receipt.RenderPDF(record)
	if err != nil {
		return err
	}

	if output == "" {
		output = fmt.Sprintf("receipt_%s.pdf", processorID)
	}

	if err := os.WriteFile(output, data, 0o644); err != nil {
		return fmt.Errorf("error writing %s: %w", output, err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), output)
	return nil
}
