// Package main provides the inkwell backend entry point: an HTTP control
// surface for managing a team of LLM backends, plus a network discovery CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"inkwell-backend/internal/api"
	"inkwell-backend/internal/database"
	"inkwell-backend/internal/llm"
	"inkwell-backend/internal/llm/discovery"
	"inkwell-backend/internal/llm/providers"
	"inkwell-backend/internal/logger"
)

var (
	logLevel string
	logFile  string
	dbPath   string
	listen   string
	version  = "0.1.0"
)

var rootCmd = &cobra.Command{
	Use:   "inkwell",
	Short: "Inkwell - multi-backend LLM team server",
	Long: `Inkwell manages a team of LLM backends (local Ollama servers and cloud
APIs) behind one HTTP surface, with fallback chains, parallel fan-out, and
LAN discovery of Ollama servers.`,
	Run: runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Run:   runServe,
}

var discoverCmd = &cobra.Command{
	Use:   "discover [cidr]",
	Short: "Scan a network range for Ollama servers",
	Long: `Scan a CIDR range for hosts answering the Ollama API. With no range
given, the machine's local /24 is scanned.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runDiscover,
}

var teamCmd = &cobra.Command{
	Use:   "team",
	Short: "Inspect the persisted team",
}

var teamListCmd = &cobra.Command{
	Use:   "list",
	Short: "List team members from the database",
	Run:   runTeamList,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("inkwell v%s\n", version)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Set log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to file instead of stderr")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "inkwell.db", "Path to the sqlite database")
	serveCmd.Flags().StringVar(&listen, "listen", ":8090", "Address to listen on")

	discoverCmd.Flags().Int("port", discovery.DefaultPort, "Port to probe")
	discoverCmd.Flags().Duration("timeout", discovery.DefaultProbeTimeout, "Per-host probe timeout")
	discoverCmd.Flags().Int("concurrency", discovery.DefaultMaxConcurrent, "Maximum concurrent probes")

	viper.SetEnvPrefix("INKWELL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	for _, flag := range []string{"log-level", "log-file", "db"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			fmt.Fprintf(os.Stderr, "Error binding %s flag: %v\n", flag, err)
			os.Exit(1)
		}
	}

	teamCmd.AddCommand(teamListCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(teamCmd)
	rootCmd.AddCommand(versionCmd)

	cobra.OnInitialize(initConfig)
}

func initConfig() {
	if logLevel == "" {
		logLevel = viper.GetString("log-level")
	}
	if err := logger.Configure(logLevel, logFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logger: %v\n", err)
		os.Exit(1)
	}
}

func runServe(_ *cobra.Command, _ []string) {
	logger.Info("starting inkwell", "version", version)

	db, err := database.Open(viper.GetString("db"))
	if err != nil {
		logger.Fatal("failed to open database", "error", err)
	}
	defer func() { _ = db.Close() }()

	store := database.NewTeamStore(db)
	factory := providers.NewDefaultFactory()

	registry := llm.NewRegistry(factory)
	snap, err := store.LoadSnapshot(context.Background())
	if err != nil {
		logger.Fatal("failed to load team snapshot", "error", err)
	}
	if snap != nil {
		registry, err = llm.NewRegistryFromSnapshot(snap, factory)
		if err != nil {
			logger.Fatal("failed to restore team", "error", err)
		}
		logger.Info("team restored", "members", registry.Len())
	}

	team := llm.NewTeam(registry)
	svc := api.NewTeamService(team, store, discovery.NewScanner())
	router := api.NewRouter(svc)

	logger.Info("listening", "addr", listen)
	if err := router.Run(listen); err != nil {
		logger.Fatal("server stopped", "error", err)
	}
}

func runTeamList(_ *cobra.Command, _ []string) {
	db, err := database.Open(viper.GetString("db"))
	if err != nil {
		logger.Fatal("failed to open database", "error", err)
	}
	defer func() { _ = db.Close() }()

	snap, err := database.NewTeamStore(db).LoadSnapshot(context.Background())
	if err != nil {
		logger.Fatal("failed to load team snapshot", "error", err)
	}
	if snap == nil || len(snap.Members) == 0 {
		fmt.Println("No team members configured.")
		return
	}

	for _, m := range snap.Members {
		marker := " "
		if m.ID == snap.PrimaryID {
			marker = "*"
		}
		state := "enabled"
		if !m.Enabled {
			state = "disabled"
		}
		fmt.Printf("%s %-20s %-10s %-24s %s (%s)\n", marker, m.ID, m.Provider, m.Model, state, m.Endpoint)
	}
}

func runDiscover(cmd *cobra.Command, args []string) {
	cidr := ""
	if len(args) > 0 {
		cidr = args[0]
	} else {
		var err error
		cidr, err = discovery.LocalSubnet()
		if err != nil {
			logger.Fatal("could not determine local subnet", "error", err)
		}
	}

	port, _ := cmd.Flags().GetInt("port")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	concurrency, _ := cmd.Flags().GetInt("concurrency")

	scanner := &discovery.Scanner{
		Port:          port,
		Timeout:       timeout,
		MaxConcurrent: concurrency,
	}

	fmt.Printf("Scanning %s for Ollama servers...\n", cidr)
	start := time.Now()

	results, err := scanner.ScanWithProgress(context.Background(), cidr, func(done, total int) {
		fmt.Printf("\r%d/%d hosts probed", done, total)
	})
	fmt.Println()
	if err != nil {
		logger.Fatal("scan failed", "error", err)
	}

	if len(results) == 0 {
		fmt.Printf("No servers found in %s (%.1fs)\n", cidr, time.Since(start).Seconds())
		return
	}

	fmt.Printf("Found %d server(s) in %.1fs:\n", len(results), time.Since(start).Seconds())
	for _, r := range results {
		name := r.Hostname
		if name == "" {
			name = r.IP
		}
		fmt.Printf("  %s (%s) - %d model(s): %s\n", name, r.Endpoint, len(r.Models), strings.Join(r.Models, ", "))
	}
}
