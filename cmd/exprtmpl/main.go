package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/benjaminschreck/go-exprtmpl/pkg/exprtmpl"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	if err := run(context.Background(), os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options holds the flags shared by every command.
type options struct {
	dir      string
	logLevel string
}

// run builds the command tree and executes it with args. Rendered output
// goes to outW, logs go to errW.
func run(ctx context.Context, outW, errW io.Writer, args []string) error {
	root := newRootCmd(outW, errW)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCmd(outW, errW io.Writer) *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "exprtmpl",
		Short:         "Compile and render expression templates",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(outW)
	rootCmd.SetErr(errW)

	rootCmd.PersistentFlags().StringVarP(&opts.dir, "dir", "d", ".", "Directory templates and imports are read from")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level: debug, info, warn, error or off")

	rootCmd.AddCommand(
		newRenderCmd(opts),
		newCheckCmd(opts),
		newFunctionsCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}

// newEngine creates an engine reading from opts.dir and a logger writing
// to the command's error stream.
func newEngine(cmd *cobra.Command, opts *options) (*exprtmpl.Engine, *exprtmpl.Logger, error) {
	level, err := exprtmpl.ParseLogLevel(opts.logLevel)
	if err != nil {
		return nil, nil, err
	}
	logger := exprtmpl.NewLogger(cmd.ErrOrStderr(), level)

	info, err := os.Stat(opts.dir)
	if err != nil {
		return nil, nil, fmt.Errorf("template directory: %w", err)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("template directory: %s is not a directory", opts.dir)
	}

	config := exprtmpl.ConfigFromEnvironment()
	config.LogLevel = strings.ToLower(opts.logLevel)
	if err := config.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	engine := exprtmpl.New(
		exprtmpl.NewFSLoader(os.DirFS(opts.dir)),
		exprtmpl.WithConfig(config),
		exprtmpl.WithLogger(logger),
	)
	return engine, logger, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "exprtmpl version %s\n", version)
		},
	}
}
