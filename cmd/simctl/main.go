// Package main implements simctl, the command line companion of the
// backtest service. It runs scenario batches locally and imports daily
// price history into the service's database.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aristath/backtest/internal/batch"
	"github.com/aristath/backtest/internal/config"
	"github.com/aristath/backtest/internal/database"
	"github.com/aristath/backtest/internal/marketdata"
	"github.com/aristath/backtest/internal/report"
	"github.com/aristath/backtest/internal/scenario"
	"github.com/aristath/backtest/internal/statistics"
	"github.com/aristath/backtest/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
	})

	var (
		tier       string
		workers    int
		jsonOutput bool
	)

	rootCmd := &cobra.Command{
		Use:   "simctl",
		Short: "Run portfolio simulations from scenario files",
		Long: `simctl runs time-stepped portfolio simulations without the HTTP service.

Scenario files are YAML documents describing a shared price source and a
set of named configurations to run against it.`,
		SilenceUsage: true,
	}

	runCmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run all scenarios in a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := scenario.Load(args[0])
			if err != nil {
				return err
			}

			// history scenarios need the price database; others run standalone
			var provider marketdata.Provider
			if file.Prices.Source == scenario.SourceHistory {
				historyDB, err := database.New(database.Config{
					Path:    filepath.Join(cfg.DataDir, "history.db"),
					Profile: database.ProfileHistory,
					Name:    "history",
				})
				if err != nil {
					return fmt.Errorf("failed to open history database: %w", err)
				}
				defer historyDB.Close()

				store, err := marketdata.NewHistoryStore(historyDB, log)
				if err != nil {
					return err
				}
				provider = store
			}

			scenarios, err := file.Resolve(provider, cfg.MinObservations)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if workers <= 0 {
				workers = cfg.BatchWorkers
			}
			runner := batch.NewRunner(workers, statistics.NewCalculator(log), log)
			results := runner.Run(ctx, scenarios)

			if jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(results)
			}

			for _, res := range results {
				fmt.Printf("=== %s ===\n", res.Name)
				if res.Err != nil {
					fmt.Printf("error: %v\n", res.Err)
				}
				if res.Result != nil {
					fmt.Println(report.Render(res.Result, report.ParseTier(tier)))
				}
			}
			return ctx.Err()
		},
	}
	runCmd.Flags().StringVar(&tier, "tier", string(report.TierProfessional), "narrative tier: retail, professional, quantitative")
	runCmd.Flags().IntVar(&workers, "workers", 0, "concurrent scenario workers (0 uses service default)")
	runCmd.Flags().BoolVar(&jsonOutput, "json", false, "emit raw JSON results instead of narratives")

	importCmd := &cobra.Command{
		Use:   "import <symbol> <prices.csv>",
		Short: "Import daily closing prices from a CSV file",
		Long:  "The CSV must have two columns per row: date (YYYY-MM-DD) and closing price.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			symbol, csvPath := args[0], args[1]

			prices, err := readPricesCSV(csvPath)
			if err != nil {
				return err
			}

			historyDB, err := database.New(database.Config{
				Path:    filepath.Join(cfg.DataDir, "history.db"),
				Profile: database.ProfileHistory,
				Name:    "history",
			})
			if err != nil {
				return fmt.Errorf("failed to open history database: %w", err)
			}
			defer historyDB.Close()

			store, err := marketdata.NewHistoryStore(historyDB, log)
			if err != nil {
				return err
			}
			if err := store.SavePrices(symbol, prices); err != nil {
				return err
			}

			fmt.Printf("imported %d prices for %s\n", len(prices), symbol)
			return nil
		},
	}

	rootCmd.AddCommand(runCmd, importCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// readPricesCSV parses date,close rows, skipping an optional header line.
func readPricesCSV(path string) ([]marketdata.DailyPrice, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV file: %w", err)
	}

	prices := make([]marketdata.DailyPrice, 0, len(records))
	for i, record := range records {
		if len(record) < 2 {
			return nil, fmt.Errorf("row %d: expected date,close columns", i+1)
		}
		closePrice, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			if i == 0 {
				continue // header row
			}
			return nil, fmt.Errorf("row %d: invalid close %q: %w", i+1, record[1], err)
		}
		prices = append(prices, marketdata.DailyPrice{Date: record[0], Close: closePrice})
	}
	if len(prices) == 0 {
		return nil, fmt.Errorf("no price rows found in %s", path)
	}
	return prices, nil
}
