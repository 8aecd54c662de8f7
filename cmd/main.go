// File: main.go

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"netquality-tester/pkg/catalog"
	"netquality-tester/pkg/database"
	"netquality-tester/pkg/ipinfo"
	"netquality-tester/pkg/measurement"
	"netquality-tester/pkg/models"
	"netquality-tester/pkg/pingstats"
	"netquality-tester/pkg/probe"
	"netquality-tester/pkg/provider"
	"netquality-tester/pkg/report"
	"netquality-tester/pkg/selector"
	"netquality-tester/pkg/trials"
)

var (
	debugFlag bool
	logger    *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "netquality-tester",
	Short: "A tool for measuring end-to-end network quality",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Set up logging based on the debug flag
		var logLevel slog.Level
		if debugFlag {
			logLevel = slog.LevelDebug
		} else {
			logLevel = slog.LevelInfo
		}

		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
		slog.SetDefault(logger)
	},
}

var measureCmd = &cobra.Command{
	Use:   "measure",
	Short: "Run one end-to-end measurement and report the result",
	Long: `Run one end-to-end measurement: select a reachable server from the
catalog, measure download and upload throughput against it, and collect
packet-loss and latency statistics over the same resolved address.`,
	Run: func(cmd *cobra.Command, args []string) {
		trialCount, _ := cmd.Flags().GetInt("trials")
		trialRetries, _ := cmd.Flags().GetInt("retries")
		selectionRetries, _ := cmd.Flags().GetInt("selection-retries")
		pingSamples, _ := cmd.Flags().GetInt("samples")

		cat, err := buildCatalog()
		if err != nil {
			logger.Error("Error building server catalog", "error", err)
			os.Exit(1)
		}

		prober := probe.NewICMPProber(viper.GetDuration("probe.timeout"), logger)
		collector := pingstats.NewCollector(prober, viper.GetDuration("probe.interval"), logger)

		sel := selector.New(cat, nil, prober, logger)
		if host := viper.GetString("selector.fallback_host"); host != "" {
			sel = sel.WithFallbackHost(host)
		}

		providerFor := func(endpoint *models.ResolvedEndpoint) trials.Provider {
			return provider.NewHTTPProvider(endpoint, provider.Options{
				DownloadURL:     viper.GetString("speedtest.download_url"),
				UploadURL:       viper.GetString("speedtest.upload_url"),
				UploadSizeBytes: viper.GetInt64("speedtest.upload_size_bytes"),
				Timeout:         viper.GetDuration("speedtest.timeout"),
			}, logger)
		}

		svc := measurement.NewService(sel, providerFor, collector, logger)
		if viper.GetBool("ipinfo.enabled") {
			svc = svc.WithMetadata(ipinfo.CollectClientInfo)
		}

		result, err := svc.Run(context.Background(), measurement.Config{
			TrialCount:           trialCount,
			TrialRetryBudget:     trialRetries,
			SelectionRetryBudget: selectionRetries,
			PingSampleCount:      pingSamples,
		})
		if err != nil {
			logger.Error("Error running measurement", "error", err)
			os.Exit(1)
		}

		report.Print(log.New(os.Stdout, "", 0), result)

		if path := viper.GetString("report.logfile"); path != "" {
			if err := report.AppendLog(path, result); err != nil {
				logger.Error("Error writing results log", "error", err)
			}
		}

		if viper.GetBool("database.enabled") {
			db, err := initDB()
			if err != nil {
				logger.Error("Error initializing database", "error", err)
				os.Exit(1)
			}
			defer db.Close()

			if err := db.InsertRun(context.Background(), models.RunFromResult(result)); err != nil {
				logger.Error("Error saving run", "error", err)
				os.Exit(1)
			}
			logger.Info("Run saved", "runID", result.RunID)
		}
	},
}

var historyCmd = &cobra.Command{
	Use:   "history [limit]",
	Short: "List recent measurement runs from the database",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		limit := 10
		if len(args) == 1 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 1 {
				logger.Error("Invalid limit value", "value", args[0])
				os.Exit(1)
			}
			limit = n
		}

		db, err := initDB()
		if err != nil {
			logger.Error("Error initializing database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		fallbackOnly, _ := cmd.Flags().GetBool("fallback-only")

		var runs []models.Run
		if fallbackOnly {
			runs, err = db.RunsUsingFallback(context.Background(), limit)
		} else {
			runs, err = db.RecentRuns(context.Background(), limit)
		}
		if err != nil {
			logger.Error("Error reading runs", "error", err)
			os.Exit(1)
		}

		printer := log.New(os.Stdout, "", 0)
		for _, run := range runs {
			printer.Printf("%s  %s  addr=%s fallback=%t trials=%d down=%s up=%s loss=%.2f%%\n",
				run.Time.Format(time.RFC3339),
				run.RunID,
				run.Address,
				run.UsedFallback,
				run.SuccessfulTrials,
				formatMbps(run.AvgDownloadMbps),
				formatMbps(run.AvgUploadMbps),
				run.PacketLossPct)
		}
	},
}

func buildCatalog() (selector.Catalog, error) {
	switch source := viper.GetString("catalog.source"); source {
	case "file":
		return catalog.NewFileCatalog(viper.GetString("catalog.file"))
	case "http", "":
		endpoint := viper.GetString("catalog.endpoint")
		if endpoint == "" {
			return nil, fmt.Errorf("catalog.endpoint is not configured")
		}
		return catalog.NewHTTPCatalog(endpoint, viper.GetDuration("catalog.timeout"), logger), nil
	default:
		return nil, fmt.Errorf("unsupported catalog source: %s", source)
	}
}

func formatMbps(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2fMbps", *v)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false, "Enable debug logging")

	measureCmd.Flags().Int("trials", 3, "Number of paired download/upload trials")
	measureCmd.Flags().Int("retries", 3, "Retry budget per direction per trial")
	measureCmd.Flags().Int("selection-retries", 5, "Candidate attempts before the fallback address is used")
	measureCmd.Flags().Int("samples", 4, "Probes per latency/loss sample")
	historyCmd.Flags().Bool("fallback-only", false, "Only show runs that used the fallback address")

	rootCmd.AddCommand(measureCmd)
	rootCmd.AddCommand(historyCmd)
}

func initConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("../")
	viper.AddConfigPath("$HOME/.netquality-tester")
	viper.AddConfigPath("/etc/netquality-tester/")

	viper.SetDefault("probe.timeout", 2*time.Second)
	viper.SetDefault("probe.interval", 200*time.Millisecond)
	viper.SetDefault("catalog.timeout", 10*time.Second)
	viper.SetDefault("speedtest.timeout", 60*time.Second)
	viper.SetDefault("speedtest.upload_size_bytes", int64(25_000_000))

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Printf("Error reading config file: %v\n", err)
			os.Exit(1)
		}
	}
}

func initDB() (*database.DB, error) {
	db, err := database.NewDB()
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %v", err)
	}

	err = db.InitSchema(context.Background())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing database schema: %v", err)
	}

	return db, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
