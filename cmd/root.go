package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/agentic-research/resonance/internal/rules"
)

var (
	rulesPath string
	dbPath    string
	verbose   bool

	// engine is the rule engine loaded before every command runs.
	engine *rules.Engine
)

func init() {
	rootCmd.PersistentFlags().StringVar(&rulesPath, "rules", "", "Path to law table (.hcl, .yaml, .json)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "resonance.db", "Path to index database")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

var rootCmd = &cobra.Command{
	Use:           "resonance",
	Short:         "Resonance: factorial signature index and law-constrained algebra",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging(cmd.ErrOrStderr(), verbose)
		e, err := loadEngine(rulesPath)
		if err != nil {
			return err
		}
		engine = e
		return nil
	},
}

func setupLogging(w io.Writer, debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(
		tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: "15:04:05",
		}),
	))
}

// loadEngine compiles the law table at path, or the built-in table when
// path is empty. An invalid table is fatal.
func loadEngine(path string) (*rules.Engine, error) {
	if path == "" {
		return rules.DefaultEngine(), nil
	}
	e, err := rules.Load(path, rules.Config{Logger: slog.Default()})
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	slog.Debug("law table loaded", "path", path, "rules", e.Table().Len())
	return e, nil
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
