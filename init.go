package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/phobologic/rulegraph/internal/config"
)

const (
	sentinelStart = "# rulegraph:start"
	sentinelEnd   = "# rulegraph:end"
)

func newInitCmd(stdout, stderr io.Writer) *cobra.Command {
	var force, dryRun bool
	cmd := &cobra.Command{
		Use:   "init [root]",
		Short: "Write a default " + config.FileName + " and ignore the cache directory",
		Long: `init writes the default settings to ` + config.FileName + ` in root and adds the
cache directory to root's .gitignore. The .gitignore entry is wrapped in
sentinel comments so it is updated in place on later runs without touching
surrounding content. An existing config file is kept unless --force is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(rootArg(args), force, dryRun, stdout, stderr)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print what would be written without modifying any file")
	return cmd
}

func runInit(root string, force, dryRun bool, stdout, stderr io.Writer) error {
	cfg := config.Default()
	data, err := cfg.Marshal()
	if err != nil {
		return fmt.Errorf("rendering config: %w", err)
	}

	cfgPath := filepath.Join(root, config.FileName)
	_, statErr := os.Stat(cfgPath)
	writeConfig := force || errors.Is(statErr, fs.ErrNotExist)

	ignorePath := filepath.Join(root, ".gitignore")
	existing, err := os.ReadFile(ignorePath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("reading %s: %w", ignorePath, err)
	}
	updated := applySection(string(existing), generateSection(cfg.Cache.Dir))

	if dryRun {
		if writeConfig {
			_, _ = fmt.Fprintf(stdout, "--- %s\n%s", cfgPath, data)
		}
		_, _ = fmt.Fprintf(stdout, "--- %s\n%s", ignorePath, updated)
		return nil
	}

	if writeConfig {
		if err := os.WriteFile(cfgPath, data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", cfgPath, err)
		}
		_, _ = fmt.Fprintf(stderr, "wrote %s\n", cfgPath)
	} else {
		_, _ = fmt.Fprintf(stderr, "kept existing %s (use --force to overwrite)\n", cfgPath)
	}

	if err := os.WriteFile(ignorePath, []byte(updated), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", ignorePath, err)
	}
	_, _ = fmt.Fprintf(stderr, "updated %s\n", ignorePath)
	return nil
}

// generateSection returns the sentinel-wrapped .gitignore block for cacheDir.
func generateSection(cacheDir string) string {
	return sentinelStart + "\n/" + strings.Trim(filepath.ToSlash(cacheDir), "/") + "/\n" + sentinelEnd
}

// applySection inserts section into content, replacing an existing sentinel
// block if present or appending if not. It is a pure function for easy testing.
func applySection(content, section string) string {
	start := strings.Index(content, sentinelStart)
	end := strings.Index(content, sentinelEnd)

	if start >= 0 && end > start {
		return content[:start] + section + content[end+len(sentinelEnd):]
	}

	if len(content) > 0 && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	if len(content) == 0 {
		return section + "\n"
	}
	return content + "\n" + section + "\n"
}
