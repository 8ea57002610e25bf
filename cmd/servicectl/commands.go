package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ms-service-orders/internal/bootstrap"
	"ms-service-orders/internal/config"
	"ms-service-orders/internal/kafka"
	"ms-service-orders/internal/logger"
	"ms-service-orders/internal/models"
	"ms-service-orders/internal/order"
	orderkafka "ms-service-orders/internal/order/kafka"
	"ms-service-orders/internal/report"
)

var verbose bool

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "servicectl",
		Short:        "Service order tracker admin tool",
		Long:         `servicectl inspects and maintains the service order store configured through the environment (STORE_BACKEND, ID_STORE, ...).`,
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log backend activity to stderr")

	root.AddCommand(newStatsCmd())
	root.AddCommand(newExportCmd())
	root.AddCommand(newImportCmd())
	root.AddCommand(newClearAllCmd())
	root.AddCommand(newEventsCmd())
	return root
}

func newLogger() *logger.Logger {
	log := logger.NewWithWriter(os.Stderr)
	if !verbose {
		log.SetLevel(logger.WARN)
	}
	return log
}

// openApp builds the service with Kafka publishing turned off; admin changes are not lifecycle events.
func openApp(ctx context.Context) (*bootstrap.App, error) {
	cfg := config.Load()
	cfg.Kafka.Enabled = false
	app, err := bootstrap.Build(ctx, cfg, newLogger())
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return app, nil
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show order counts per status and order id pool usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			out := cmd.OutOrStdout()
			counts := app.Service.StatusCounts()
			fmt.Fprintln(out, "Active orders by status:")
			for _, st := range models.KnownStatuses {
				if n, ok := counts[st]; ok {
					fmt.Fprintf(out, "  %-16s %d\n", st, n)
				}
			}

			var custom []string
			for st := range counts {
				if !st.IsKnown() {
					custom = append(custom, string(st))
				}
			}
			sort.Strings(custom)
			for _, st := range custom {
				fmt.Fprintf(out, "  %-16s %d\n", st, counts[models.Status(st)])
			}

			archived := app.Service.List(models.PartitionArchived, order.ListOptions{})
			fmt.Fprintf(out, "Archived orders: %d\n", len(archived))

			stats := app.Service.AllocatorStats()
			fmt.Fprintf(out, "Order ids: %d/%d used (%d%%), %d available, %d resets\n",
				stats.Used, stats.Total, stats.Percentage, stats.Available, stats.Resets)
			return nil
		},
	}
}

func newExportCmd() *cobra.Command {
	var (
		includeArchived bool
		outPath         string
		format          string
		exportedBy      string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a backup of the service orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "json" && format != "xlsx" {
				return fmt.Errorf("unknown format %q, use json or xlsx", format)
			}

			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			doc := app.Service.Export(includeArchived, exportedBy)
			if outPath == "" {
				outPath = fmt.Sprintf("service-orders-%s.%s", doc.ExportDate.Format("2006-01-02"), format)
			}

			f, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", outPath, err)
			}
			defer f.Close()

			if format == "xlsx" {
				err = report.WriteWorkbook(f, doc)
			} else {
				enc := json.NewEncoder(f)
				enc.SetIndent("", "  ")
				err = enc.Encode(doc)
			}
			if err != nil {
				return fmt.Errorf("failed to write %s: %w", outPath, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d service order(s) to %s\n", doc.RecordCount, outPath)
			return nil
		},
	}

	cmd.Flags().BoolVar(&includeArchived, "include-archived", false, "Include archived orders")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output file (default service-orders-<date>.<format>)")
	cmd.Flags().StringVar(&format, "format", "json", "Output format: json or xlsx")
	cmd.Flags().StringVar(&exportedBy, "exported-by", os.Getenv("USER"), "Name recorded in the backup")
	return cmd
}

func newImportCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Merge a JSON backup into the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", file, err)
			}

			var doc models.ExportDocument
			if err := json.Unmarshal(raw, &doc); err != nil {
				return fmt.Errorf("%s is not a service order backup: %w", file, err)
			}

			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			result, err := app.Service.Import(cmd.Context(), doc)
			if err != nil {
				return fmt.Errorf("import failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d new and %d updated service order(s)\n", result.Added, result.Updated)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Backup file produced by export")
	cmd.MarkFlagRequired("file")
	return cmd
}

func newClearAllCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear-all",
		Short: "Delete every order and reset the order id pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to delete everything without --yes")
			}

			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Service.ClearAll(cmd.Context()); err != nil {
				return fmt.Errorf("clear failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "All service orders deleted and order id pool reset")
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm deleting all data")
	return cmd
}

func newEventsCmd() *cobra.Command {
	var group string

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Tail order lifecycle events from Kafka",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			consumer := kafka.NewConsumer(cfg.Kafka.Brokers, orderkafka.Topics(cfg.Kafka.TopicPrefix), group, newLogger())
			defer consumer.Close()

			out := cmd.OutOrStdout()
			return consumer.Start(ctx, func(ev models.OrderEvent) {
				fmt.Fprintf(out, "%s  %-14s order %s  %s  %s\n",
					ev.OccurredAt.Local().Format(time.DateTime), ev.Type, ev.OrderID, ev.Status, ev.Notes)
			})
		},
	}

	cmd.Flags().StringVar(&group, "group", "servicectl", "Kafka consumer group")
	return cmd
}
