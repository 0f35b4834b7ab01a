package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/spektr-org/storequery/config"
	"github.com/spektr-org/storequery/engine"
	"github.com/spektr-org/storequery/helpers"
	"github.com/spektr-org/storequery/router"
	"github.com/spektr-org/storequery/schema"
	"github.com/spektr-org/storequery/server"
	"github.com/spektr-org/storequery/translator"
)

// ============================================================================
// STOREQUERY CLI: questions over per-store monthly financials
// ============================================================================

var version = "0.3.0"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "storequery",
		Short: "Ask plain-English questions about per-store monthly P&L sheets",
		Long: `storequery loads a monthly store P&L export (CSV or XLSX, wide or long),
normalizes it into (month, store, metric, amount) rows and answers questions
with built-in rules. Questions no rule covers go to Gemini when GEMINI_API_KEY
is set.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.toml (default: next to the binary)")

	loadConfig := func() (*config.AppConfig, error) {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		if err := cfg.ConfigureLogging(); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	askCmd := &cobra.Command{
		Use:   "ask <file> <question>",
		Short: "Answer one question about a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			format, _ := cmd.Flags().GetString("format")
			out, _ := cmd.Flags().GetString("out")
			return runAsk(cmd.Context(), cfg, args[0], args[1], format, out)
		},
	}
	askCmd.Flags().String("format", "text", "Output format: text|csv|json|xlsx")
	askCmd.Flags().String("out", "", "Write output to file instead of stdout (required for xlsx)")

	normalizeCmd := &cobra.Command{
		Use:   "normalize <file>",
		Short: "Convert a wide or long export into long-format CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(); err != nil {
				return err
			}
			out, _ := cmd.Flags().GetString("out")
			return runNormalize(args[0], out)
		},
	}
	normalizeCmd.Flags().String("out", "", "Write CSV to file instead of stdout")

	rulesCmd := &cobra.Command{
		Use:   "rules [file]",
		Short: "Print the rule registry as YAML, bound to a file's metrics when given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(); err != nil {
				return err
			}
			return runRules(cmd.OutOrStdout(), args)
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if port, _ := cmd.Flags().GetInt("port"); port > 0 {
				cfg.Server.Port = port
			}
			data, _ := cmd.Flags().GetString("data")
			return runServe(cmd.Context(), cfg, data)
		},
	}
	serveCmd.Flags().Int("port", 0, "Listen port (overrides config)")
	serveCmd.Flags().String("data", "", "Dataset to preload")

	rootCmd.AddCommand(askCmd, normalizeCmd, rulesCmd, serveCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// ============================================================================
// SESSION WIRING
// ============================================================================

func newSession(cfg *config.AppConfig, extra ...router.Option) *router.Session {
	opts := []router.Option{
		router.WithHistorySize(cfg.History.Size),
		router.WithEngineOptions(cfg.EngineOptions()...),
	}
	if cfg.FallbackEnabled() {
		tc := cfg.TranslatorConfig()
		gen := translator.NewGemini(tc, nil)
		opts = append(opts, router.WithFallback(translator.NewDelegator(gen, tc, cfg.EngineOptions()...)))
		log.Printf("🤖 Fallback enabled: %s (%s mode)", tc.Model, tc.Mode)
	} else {
		log.Printf("ℹ️ GEMINI_API_KEY not set, unmatched questions get suggestions only")
	}
	return router.NewSession(append(opts, extra...)...)
}

func loadFile(s *router.Session, path string) (*router.DatasetInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := s.Load(filepath.Base(path), f)
	if err != nil {
		return nil, err
	}
	log.Printf("📊 Loaded %s: %d rows, %d stores, %d metrics (%s to %s)",
		info.Source, info.Rows, len(info.Stores), len(info.Metrics), info.FirstMonth, info.LastMonth)
	for _, w := range info.Warnings {
		log.Printf("⚠️ %s: %s", w.Sheet, w.Reason)
	}
	return info, nil
}

// ============================================================================
// COMMANDS
// ============================================================================

func runAsk(ctx context.Context, cfg *config.AppConfig, path, question, format, outFile string) error {
	if format == "xlsx" && outFile == "" {
		return errors.New("--format xlsx needs --out")
	}

	s := newSession(cfg)
	if _, err := loadFile(s, path); err != nil {
		return err
	}

	res, askErr := s.Ask(ctx, question)
	if res == nil {
		return askErr
	}
	log.Printf("🔄 Resolved via %s %s in %s", res.Source, res.RuleID, res.Duration)

	w, closeOut, err := openOut(outFile)
	if err != nil {
		return err
	}
	defer closeOut()

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	case "csv", "xlsx":
		if res.Result == nil || res.Result.Table == nil {
			fmt.Fprintln(os.Stderr, res.Reply)
			return askErr
		}
		if format == "csv" {
			err = helpers.WriteResultCSV(w, res.Result.Table)
		} else {
			err = helpers.WriteResultXLSX(w, res.Result.Table, "Result")
		}
		if err != nil {
			return err
		}
		if outFile != "" {
			log.Printf("📄 %s written to %s", format, outFile)
		}
	default:
		fmt.Fprintln(w, res.Reply)
	}

	return askErr
}

func runNormalize(path, outFile string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	norm, err := schema.Load(filepath.Base(path), f)
	if err != nil {
		return err
	}
	for _, w := range norm.Warnings {
		log.Printf("⚠️ %s: %s", w.Sheet, w.Reason)
	}

	w, closeOut, err := openOut(outFile)
	if err != nil {
		return err
	}
	defer closeOut()

	if err := helpers.WriteLongCSV(w, norm.Table); err != nil {
		return err
	}
	log.Printf("📄 Normalized %d rows", norm.Table.Len())
	return nil
}

func runRules(w io.Writer, args []string) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()

	if len(args) == 0 {
		return enc.Encode(engine.DefaultRuleSpecs())
	}

	s := router.NewSession()
	if _, err := loadFile(s, args[0]); err != nil {
		return err
	}
	rules, err := s.Rules()
	if err != nil {
		return err
	}
	return enc.Encode(rules)
}

func runServe(ctx context.Context, cfg *config.AppConfig, dataPath string) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	s := newSession(cfg, router.WithMetrics(router.NewMetrics(reg)))
	if dataPath != "" {
		if _, err := loadFile(s, dataPath); err != nil {
			return err
		}
	}

	h := server.NewHandler(s, cfg.Server.MaxUploadMB)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.NewRouter(h, cfg.Server.AllowedOrigins, reg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("🚀 storequery %s listening on %s (session %s)", version, srv.Addr, s.ID())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Printf("🛑 Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// ============================================================================
// HELPERS
// ============================================================================

func openOut(path string) (io.Writer, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, func() { f.Close() }, nil
}
