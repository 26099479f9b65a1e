package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jward/soarls"
	"github.com/jward/soarls/internal/config"
	"github.com/jward/soarls/internal/document"
	"github.com/jward/soarls/internal/manifest"
)

// version is overridden at link time.
var version = "dev"

var (
	flagRoot      string
	flagConfig    string
	flagFormat    string
	flagLogLevel  string
	flagLogFormat string
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

// logger is built by the root command before any subcommand runs.
var logger = slog.New(slog.DiscardHandler)

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exit exitError
		if errors.As(err, &exit) {
			os.Exit(int(exit))
		}
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

// exitError ends the process with a status and no message.
type exitError int

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

var rootCmd = &cobra.Command{
	Use:           "soarls",
	Short:         "Language server and analysis tools for Soar agents",
	Long:          "soarls evaluates the Tcl layer of a Soar agent to find its procedures, variables and productions, and serves them to editors over the language server protocol.",
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(flagFormat); err != nil {
			return err
		}
		l, err := newLogger(flagLogLevel, flagLogFormat)
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagRoot, "root", "", "agent directory (default: nearest directory with "+manifest.FileName+")")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: "+config.FileName+" in the agent directory)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "text", "output format: json|text")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "warn", "log level: debug|info|warn|error")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "log format: text|json")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(renameCmd)
	rootCmd.AddCommand(dbCmd)
}

// newLogger writes to stderr; stdout carries results or protocol frames.
func newLogger(level, format string) (*slog.Logger, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: l}
	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	}
	return nil, fmt.Errorf("invalid log format %q: must be text or json", format)
}

// findManifestRoot walks up from startDir looking for a manifest.
// Returns the directory containing it, or startDir if not found.
func findManifestRoot(startDir string) string {
	dir := startDir
	for {
		if info, err := os.Stat(filepath.Join(dir, manifest.FileName)); err == nil && !info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return startDir
		}
		dir = parent
	}
}

// resolveTarget classifies a command argument. An existing file is returned
// as an absolute path; anything else is an entry point name. dir is where the
// manifest search starts.
func resolveTarget(target string) (dir, file string, err error) {
	if flagRoot != "" {
		if dir, err = filepath.Abs(flagRoot); err != nil {
			return "", "", fmt.Errorf("resolving root %q: %w", flagRoot, err)
		}
	} else if dir, err = os.Getwd(); err != nil {
		return "", "", fmt.Errorf("getting cwd: %w", err)
	}
	if target == "" {
		return dir, "", nil
	}
	if info, statErr := os.Stat(target); statErr == nil && !info.IsDir() {
		if file, err = filepath.Abs(target); err != nil {
			return "", "", fmt.Errorf("resolving file path %q: %w", target, err)
		}
		if flagRoot == "" {
			dir = filepath.Dir(file)
		}
	}
	return dir, file, nil
}

// workspaceOptions returns the options shared by every command.
func workspaceOptions() ([]soarls.Option, error) {
	opts := []soarls.Option{soarls.WithLogger(logger)}
	if flagConfig != "" {
		c, err := config.Load(flagConfig)
		if err != nil {
			return nil, err
		}
		opts = append(opts, soarls.WithConfig(c))
	}
	return opts, nil
}

// openWorkspace opens the agent directory for target, which is empty, an
// entry point name or a file. A file outside the manifest's entry points is
// analysed as its own entry point when asEntry is set, and always when there
// is no manifest. A name makes that entry point active. The absolute path
// of a file target is returned with the workspace.
func openWorkspace(target string, asEntry bool) (*soarls.Workspace, string, error) {
	start, file, err := resolveTarget(target)
	if err != nil {
		return nil, "", err
	}
	root := findManifestRoot(start)
	opts, err := workspaceOptions()
	if err != nil {
		return nil, "", err
	}

	m, err := manifest.Load(root)
	switch {
	case errors.Is(err, manifest.ErrNotFound):
		m = nil
	case err != nil:
		return nil, "", err
	}
	switch {
	case file != "" && (m == nil || (asEntry && !isEntryPoint(m, file))):
		opts = append(opts, soarls.WithManifest(manifest.Single(file)))
	case m != nil:
		opts = append(opts, soarls.WithManifest(m))
	}

	ws, err := soarls.New(root, opts...)
	if err != nil {
		return nil, "", err
	}
	if target != "" && file == "" {
		if err := ws.SetActive(target); err != nil {
			ws.Close()
			return nil, "", err
		}
	}
	logger.Debug("workspace opened", slog.String("root", root), slog.Int("entry_points", len(ws.EntryPoints())))
	return ws, file, nil
}

func isEntryPoint(m *manifest.Manifest, file string) bool {
	for _, ep := range m.EntryPoints {
		if m.Path(ep) == file {
			return true
		}
	}
	return false
}

// displayPath renders a file URI relative to the working directory when it
// lies below it.
func displayPath(uri string) string {
	path, err := document.PathFromURI(uri)
	if err != nil {
		return uri
	}
	if cwd, err := os.Getwd(); err == nil {
		if rel, err := filepath.Rel(cwd, path); err == nil && !strings.HasPrefix(rel, "..") {
			return rel
		}
	}
	return path
}

// entryLabel shortens the path an unnamed entry point is labelled with.
func entryLabel(name string) string {
	if !filepath.IsAbs(name) {
		return name
	}
	return displayPath(document.FileURI(name))
}
