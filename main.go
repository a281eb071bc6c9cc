// rulegraph indexes the declarations of a repository with tree-sitter and
// reports reference graphs, closures and centrality rankings in TOON format.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/phobologic/rulegraph/internal/config"
	"github.com/phobologic/rulegraph/internal/lang"
	"github.com/phobologic/rulegraph/internal/model"
	"github.com/phobologic/rulegraph/internal/toon"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(context.Background())
}

// flags shared by the analysis commands; they override the config file.
type analysisFlags struct {
	configPath string
	langs      []string
	noCache    bool
	algorithm  string
	coreK      int
	verbose    bool
}

func (f *analysisFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "config file (default <root>/"+config.FileName+")")
	cmd.Flags().StringSliceVarP(&f.langs, "langs", "l", nil, "comma-separated languages to include")
	cmd.Flags().BoolVar(&f.noCache, "no-cache", false, "ignore and do not write the on-disk cache")
	cmd.Flags().StringVarP(&f.algorithm, "ranking", "r", "", "ranking algorithm: pagerank or eigenvector")
	cmd.Flags().IntVarP(&f.coreK, "core", "k", -1, "number of most central entities whose closures form the core")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "log debug details to stderr")
}

// load resolves root and merges config file, environment and flags.
func (f *analysisFlags) load(root string) (string, *config.Config, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return "", nil, fmt.Errorf("resolving root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return "", nil, fmt.Errorf("root path: %w", err)
	}
	if !info.IsDir() {
		return "", nil, fmt.Errorf("%s: not a directory", root)
	}

	path := f.configPath
	if path == "" {
		path = filepath.Join(root, config.FileName)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return "", nil, err
	}

	if len(f.langs) > 0 {
		for _, name := range f.langs {
			if _, ok := lang.Languages[name]; !ok {
				return "", nil, fmt.Errorf("unsupported language %q", name)
			}
		}
		cfg.Languages = f.langs
	}
	if f.noCache {
		cfg.Cache.Enabled = false
	}
	if f.algorithm != "" {
		cfg.Ranking.Algorithm = f.algorithm
	}
	if f.coreK >= 0 {
		cfg.Ranking.CoreK = f.coreK
	}
	if err := cfg.Validate(); err != nil {
		return "", nil, err
	}
	return root, cfg, nil
}

func (f *analysisFlags) logger(stderr io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if f.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var flags analysisFlags

	root := &cobra.Command{
		Use:   "rulegraph [root]",
		Short: "Map declarations, references and central entities of a repository",
		Long: `rulegraph parses every supported source under root, records each declaration
and the names it mentions, resolves names declared by sibling sources and
prints a ranked TOON report of entities, edges and the core vocabulary.`,
		Args:          cobra.MaximumNArgs(1),
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMap(cmd.Context(), &flags, rootArg(args), stdout, stderr)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetVersionTemplate("rulegraph {{.Version}}\n")
	flags.register(root)

	root.AddCommand(newClosureCmd(stdout, stderr))
	root.AddCommand(newInitCmd(stdout, stderr))
	return root
}

func rootArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "."
}

func runMap(ctx context.Context, flags *analysisFlags, rootPath string, stdout, stderr io.Writer) error {
	root, cfg, err := flags.load(rootPath)
	if err != nil {
		return err
	}
	a, err := analyze(ctx, root, cfg, flags.logger(stderr))
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(stdout, toon.Encode(a.report()))
	return nil
}

func newClosureCmd(stdout, stderr io.Writer) *cobra.Command {
	var (
		flags    analysisFlags
		rootPath string
		reverse  bool
		kinds    []string
	)
	cmd := &cobra.Command{
		Use:   "closure <source> <name>",
		Short: "List every entity a declaration reaches, or with --reverse every entity reaching it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := parseKinds(kinds)
			if err != nil {
				return err
			}
			root, cfg, err := flags.load(rootPath)
			if err != nil {
				return err
			}
			a, err := analyze(cmd.Context(), root, cfg, flags.logger(stderr))
			if err != nil {
				return err
			}
			c, err := a.closure(filepath.ToSlash(args[0]), args[1], reverse, filter)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(stdout, toon.EncodeClosure(c))
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&rootPath, "root", ".", "repository root")
	cmd.Flags().BoolVar(&reverse, "reverse", false, "list the entities that reach name instead")
	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "only list members of these kinds (e.g. function,method)")
	return cmd
}

func parseKinds(names []string) ([]model.Kind, error) {
	var out []model.Kind
	for _, name := range names {
		name = strings.TrimSpace(name)
		k := model.ParseKind(name)
		if k == model.Unknown && name != model.Unknown.String() {
			return nil, fmt.Errorf("unknown kind %q", name)
		}
		out = append(out, k)
	}
	return out, nil
}
