package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"EthCast/internal/di"
	"EthCast/pkg/config"
)

const version = "0.1.0"

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:     "ethcast",
		Short:   "ETH price forecasting service",
		Version: version,
		Long: `EthCast runs an ensemble of regression models over live market data and
publishes short-horizon ETH price forecasts with confidence bands, trading
signals and tracked accuracy.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "path to configuration file")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the forecasting service",
		Long:  "Starts the cycle scheduler, price stream, work queue and HTTP API and blocks until interrupted.",
		RunE:  runServe,
	}

	cycleCmd := &cobra.Command{
		Use:   "cycle",
		Short: "Run one prediction cycle and print the report",
		RunE:  runCycle,
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate due predictions without forecasting",
		RunE:  runValidate,
	}

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Print the latest cycle report",
		RunE:  runReport,
	}

	rootCmd.AddCommand(runCmd, cycleCmd, validateCmd, reportCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	app, err := di.InitializeApp(cfg)
	if err != nil {
		return fmt.Errorf("initialize app: %w", err)
	}

	return app.Run()
}

func runCycle(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	forecaster, err := di.InitializeForecaster(cfg)
	if err != nil {
		return fmt.Errorf("initialize forecaster: %w", err)
	}

	report, err := forecaster.RunCycle(context.Background())
	if err != nil {
		return err
	}

	return printJSON(report)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	forecaster, err := di.InitializeForecaster(cfg)
	if err != nil {
		return fmt.Errorf("initialize forecaster: %w", err)
	}

	result, err := forecaster.RunValidation(context.Background())
	if err != nil {
		return err
	}

	return printJSON(result)
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	reporter, err := di.InitializeReporter(cfg)
	if err != nil {
		return fmt.Errorf("initialize reporter: %w", err)
	}

	report, err := reporter.Latest(context.Background())
	if err != nil {
		return err
	}

	return printJSON(report)
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
