package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"psurops/internal/config"
	"psurops/internal/slogutil"
	"psurops/internal/version"
)

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	root       string
	logLevel   string
	verbosity  int
	quiet      bool

	// stderr receives logs; stdout carries command output (and MCP frames).
	stderr io.Writer
}

func newRootCmd() *cobra.Command {
	g := &globalOptions{stderr: os.Stderr}
	cmd := &cobra.Command{
		Use:   "psurops",
		Short: "psurops - PSUR schedule operations",
		Long: `psurops tracks Periodic Safety Update Report obligations: which reports
are due when, who writes them and whether each row is compliant. Due dates are
always derived from the reporting period end.

The same operation vocabulary is served over HTTP (serve), to agents over MCP
(mcp) and one call at a time from the command line (call).`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("psurops version {{.Version}}\n")

	pf := cmd.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "Config file (default: <root>/.psurops/config.{json,yaml,toml})")
	pf.StringVar(&g.root, "root", "", "Workspace root (default: current directory)")
	pf.StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn, error, off (overrides config)")
	pf.CountVarP(&g.verbosity, "verbose", "v", "Increase log verbosity (-v info, -vv debug)")
	pf.BoolVarP(&g.quiet, "quiet", "q", false, "Silence all logs")

	cmd.AddCommand(
		newServeCmd(g),
		newMCPCmd(g),
		newCallCmd(g),
		newImportCmd(g),
		newExportCmd(g),
		newStatsCmd(g),
		newToolsCmd(g),
		newClassifyCmd(g),
		newTokenCmd(g),
		newConfigCmd(g),
	)
	return cmd
}

// workspace returns the absolute workspace root.
func (g *globalOptions) workspace() (string, error) {
	root := g.root
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		root = wd
	}
	return filepath.Abs(root)
}

// loadConfig reads --config when given, otherwise the workspace config.
func (g *globalOptions) loadConfig() (*config.Config, string, error) {
	root, err := g.workspace()
	if err != nil {
		return nil, "", err
	}
	var cfg *config.Config
	if g.configPath != "" {
		cfg, err = config.LoadFile(g.configPath)
	} else {
		cfg, err = config.LoadConfig(root)
	}
	if err != nil {
		return nil, "", fmt.Errorf("load config: %w", err)
	}
	return cfg, root, nil
}

// level resolves the log level: --log-level, then -v/-q, then the config.
func (g *globalOptions) level(cfg *config.Config) slog.Level {
	switch {
	case g.logLevel != "":
		return slogutil.LevelFromString(g.logLevel)
	case g.quiet || g.verbosity > 0:
		return slogutil.LevelFromVerbosity(g.verbosity, g.quiet)
	case cfg != nil:
		return slogutil.LevelFromString(cfg.Logging.Level)
	default:
		return slog.LevelWarn
	}
}

// newLogger writes to stderr and, when configured, also to a log file. The
// returned function closes the file.
func (g *globalOptions) newLogger(cfg *config.Config, root string) (*slog.Logger, func(), error) {
	level := g.level(cfg)
	if cfg == nil || cfg.Logging.File == "" {
		return slogutil.NewLogger(g.stderr, level), func() {}, nil
	}
	path := cfg.Logging.File
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	fileLogger, f, err := slogutil.NewFileLogger(path, level)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	logger := slog.New(slogutil.NewTeeHandler(
		slogutil.NewLogger(g.stderr, level).Handler(),
		fileLogger.Handler(),
	))
	return logger, func() { _ = f.Close() }, nil
}
