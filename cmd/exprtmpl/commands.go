package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/benjaminschreck/go-exprtmpl/internal/datafile"
	"github.com/benjaminschreck/go-exprtmpl/pkg/exprtmpl"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newRenderCmd(opts *options) *cobra.Command {
	var (
		dataPath string
		outDir   string
	)
	cmd := &cobra.Command{
		Use:   "render <template>...",
		Short: "Render templates against a data file",
		Long: "Render one or more templates from --dir against the data file given by --data.\n" +
			"The data format follows the file extension: .json, .yaml, .yml, .hcl or .cbor.\n" +
			"Templates render concurrently. Without --out-dir the results are written to\n" +
			"stdout in argument order.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd, opts, args, dataPath, outDir)
		},
	}
	cmd.Flags().StringVar(&dataPath, "data", "", "Data file providing the template root table")
	cmd.Flags().StringVarP(&outDir, "out-dir", "o", "", "Write each result to this directory instead of stdout")
	return cmd
}

func runRender(cmd *cobra.Command, opts *options, names []string, dataPath, outDir string) error {
	engine, logger, err := newEngine(cmd, opts)
	if err != nil {
		return err
	}
	ctx := exprtmpl.ContextWithLogger(cmd.Context(), logger)

	root, err := datafile.Load(ctx, dataPath)
	if err != nil {
		return err
	}

	start := time.Now()
	results := make([]string, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, name := range names {
		g.Go(func() error {
			out, err := engine.Render(gctx, name, root)
			if err != nil {
				return err
			}
			if outDir == "" {
				results[i] = out
				return nil
			}
			return writeResult(outDir, name, out)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	logger.WithField("templates", len(names)).Info("rendered in %v", time.Since(start))

	if outDir != "" {
		return nil
	}
	w := cmd.OutOrStdout()
	for _, out := range results {
		if _, err := io.WriteString(w, out); err != nil {
			return err
		}
	}
	return nil
}

// writeResult stores out under outDir, mirroring the template path.
func writeResult(outDir, name, out string) error {
	target := filepath.Join(outDir, filepath.FromSlash(strings.TrimPrefix(name, "/")))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(target, []byte(out), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", target, err)
	}
	return nil
}

func newCheckCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check <template>...",
		Short: "Compile templates without rendering them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, logger, err := newEngine(cmd, opts)
			if err != nil {
				return err
			}
			ctx := exprtmpl.ContextWithLogger(cmd.Context(), logger)

			errs := exprtmpl.NewMultiError()
			for _, name := range args {
				if _, err := engine.Compile(ctx, name); err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s\n", name)
					errs.Add(err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ok   %s\n", name)
			}
			return errs.Err()
		},
	}
}

func newFunctionsCmd(opts *options) *cobra.Command {
	var (
		namespace string
		search    string
	)
	cmd := &cobra.Command{
		Use:   "functions",
		Short: "List the available template functions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, _, err := newEngine(cmd, opts)
			if err != nil {
				return err
			}
			names := engine.Functions()
			if namespace != "" {
				prefix := strings.TrimSuffix(namespace, ".") + "."
				names = filter(names, func(n string) bool { return strings.HasPrefix(n, prefix) })
			}
			if search != "" {
				names = filter(names, func(n string) bool { return fuzzy.MatchFold(search, n) })
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&namespace, "filter", "", "Only list functions in this namespace, e.g. string")
	cmd.Flags().StringVar(&search, "search", "", "Fuzzy match function names")
	return cmd
}

func filter(names []string, keep func(string) bool) []string {
	var out []string
	for _, n := range names {
		if keep(n) {
			out = append(out, n)
		}
	}
	return out
}
