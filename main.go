package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"supply_tracker/internal/accounts"
	"supply_tracker/internal/app"
	"supply_tracker/internal/digest"
	"supply_tracker/internal/export"
	"supply_tracker/internal/filter"
	"supply_tracker/internal/normalize"
	"supply_tracker/internal/server"
	"supply_tracker/internal/sheets"
	"supply_tracker/internal/supply"
	"supply_tracker/internal/writeback"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	v       = app.NewViper()
	cfg     app.Config

	rootCmd = &cobra.Command{
		Use:               "supply-tracker",
		Short:             "Vendor supply monitoring backed by a shared Google Sheet",
		SilenceUsage:      true,
		PersistentPreRunE: initConfig,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().String("sheet", "", "spreadsheet name to open")
	rootCmd.PersistentFlags().String("sheet-id", "", "spreadsheet id, overrides --sheet")
	_ = v.BindPFlag("sheet.name", rootCmd.PersistentFlags().Lookup("sheet"))
	_ = v.BindPFlag("sheet.id", rootCmd.PersistentFlags().Lookup("sheet-id"))

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(summaryCmd())
	rootCmd.AddCommand(digestCmd())
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	cancel()

	if err != nil {
		log.Error().Err(err).Msg(supply.UserMessage(err))
		os.Exit(1)
	}
}

func initConfig(_ *cobra.Command, _ []string) error {
	setupEnvironment()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	loaded, err := app.Load(v)
	if err != nil {
		return err
	}
	cfg = loaded
	return nil
}

func serveCmd() *cobra.Command {
	var withDigest bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the monitoring dashboard and vendor portal API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := cfg.RequireJWTSecret(); err != nil {
				return err
			}

			book, err := accounts.Load(cfg.AccountsFile)
			if err != nil {
				return err
			}
			store, err := app.OpenStore(ctx, cfg)
			if err != nil {
				return err
			}
			notifier := app.InitializeNotificationClient(cfg)

			srv := server.New(store, book, writeback.NewCommitter(store, cfg.WriteMode), notifier, cfg.Server)

			if withDigest && notifier.Enabled() {
				c := digest.NewCron(cfg.DigestLocation)
				runner := digest.NewRunner(store, notifier, cfg.DigestYear)
				if _, err := runner.Schedule(ctx, c, cfg.DigestSchedule, cfg.DigestTimeout); err != nil {
					return err
				}
				c.Start()
				defer c.Stop()
				log.Info().Str("schedule", cfg.DigestSchedule).Msg("Digest scheduled")
			}

			return listen(ctx, cfg.Addr, srv.Router())
		},
	}
	cmd.Flags().BoolVar(&withDigest, "digest", true, "send the unresponded digest on its schedule")
	return cmd
}

func listen(ctx context.Context, addr string, handler http.Handler) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

// filterFlags are shared by the commands that print or export a view.
type filterFlags struct {
	status  string
	vendors []string
	year    string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.status, "status", "any", "response status: any, responded, unresponded")
	cmd.Flags().StringSliceVar(&f.vendors, "vendor", nil, "vendor names to keep (repeatable)")
	cmd.Flags().StringVar(&f.year, "year", filter.AllYears, "PO year or All")
}

func (f *filterFlags) predicates() (filter.Predicates, error) {
	status, err := filter.ParseStatus(f.status)
	if err != nil {
		return filter.Predicates{}, err
	}
	return filter.Predicates{Status: status, Vendors: f.vendors, Year: f.year}, nil
}

func loadTable(ctx context.Context) (supply.Table, error) {
	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		return supply.Table{}, err
	}
	return fetchTable(ctx, store)
}

func fetchTable(ctx context.Context, store sheets.Store) (supply.Table, error) {
	header, records, err := store.FetchAll(ctx)
	if err != nil {
		return supply.Table{}, err
	}
	return normalize.Normalize(header, records), nil
}

// writeSummary prints the scorecard of the filtered table. A failed read
// prints the empty scorecard after a warning, like the dashboard does.
func writeSummary(ctx context.Context, w io.Writer, store sheets.Store, preds filter.Predicates) {
	table, err := fetchTable(ctx, store)
	if err != nil {
		log.Warn().Err(err).Msg("Sheet load failed, summarizing empty table")
		fmt.Fprintf(w, "Warning: %s\n", supply.UserMessage(err))
		table = normalize.Normalize(nil, nil)
	}

	_, totals := filter.Apply(table, preds)
	card := filter.FormatTotals(totals)
	fmt.Fprintf(w, "Total Item:     %s\n", card.Items)
	fmt.Fprintf(w, "Total Qty Sisa: %s\n", card.RemainingQty)
	fmt.Fprintf(w, "Total Nilai PO: %s\n", card.NetValue)
}

func exportCmd() *cobra.Command {
	var flags filterFlags
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the monitoring view to an xlsx report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			preds, err := flags.predicates()
			if err != nil {
				return err
			}
			table, err := loadTable(cmd.Context())
			if err != nil {
				return err
			}
			view, totals := filter.Apply(table, preds)
			columns := supply.PresentColumns(supply.MonitoringColumns, table.Header, table.VendorColumn)

			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("create %s: %w", out, err)
			}
			if err := export.WriteXLSX(f, columns, view); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("close %s: %w", out, err)
			}

			log.Info().Str("file", out).Int("rows", totals.RowCount).Msg("Report written")
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", export.FileName, "output file")
	return cmd
}

func summaryCmd() *cobra.Command {
	var flags filterFlags
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print the scorecard for a filtered view",
		RunE: func(cmd *cobra.Command, _ []string) error {
			preds, err := flags.predicates()
			if err != nil {
				return err
			}
			store, err := app.OpenStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			writeSummary(cmd.Context(), cmd.OutOrStdout(), store, preds)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func digestCmd() *cobra.Command {
	var schedule bool
	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Send the unresponded-lines digest through ntfy",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := app.OpenStore(ctx, cfg)
			if err != nil {
				return err
			}
			notifier := app.InitializeNotificationClient(cfg)
			runner := digest.NewRunner(store, notifier, cfg.DigestYear)

			if !schedule {
				backlog, err := runner.Run(ctx)
				if err != nil {
					return err
				}
				for _, b := range backlog {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d/%d\n", b.Vendor, b.Unresponded, b.Open)
				}
				return nil
			}

			c := digest.NewCron(cfg.DigestLocation)
			if _, err := runner.Schedule(ctx, c, cfg.DigestSchedule, cfg.DigestTimeout); err != nil {
				return err
			}
			log.Info().Str("schedule", cfg.DigestSchedule).Msg("Digest scheduler started")
			c.Start()
			<-ctx.Done()
			<-c.Stop().Done()
			return nil
		},
	}
	cmd.Flags().BoolVar(&schedule, "schedule", false, "keep running and send on the configured cron schedule")
	return cmd
}
