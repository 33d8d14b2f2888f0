package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/jordanlewis/borrowsum"
)

var (
	configPath = flag.String("config", "", "YAML file listing the packages to check")
	keepLog    = flag.Bool("log", false, "keep the full compiler output in a temp file")
)

func main() {
	flag.Parse()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var buf strings.Builder
	err := run(ctx, &buf, *configPath, *keepLog, flag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	output := buf.String()
	if len(output) != 0 {
		fmt.Fprint(os.Stderr, output)
		os.Exit(1)
	}
}

func run(ctx context.Context, w io.Writer, configPath string, keepLog bool, args []string) error {
	opts, paths, err := options(configPath, keepLog, args)
	if err != nil {
		return err
	}
	return borrowsum.CheckWithOptions(ctx, w, opts, paths...)
}

// options merges the flags with the config file. Packages given on the
// command line replace the config's.
func options(configPath string, keepLog bool, args []string) (borrowsum.CheckOptions, []string, error) {
	opts := borrowsum.CheckOptions{KeepLog: keepLog, LogNotice: os.Stdout}
	paths := args
	if configPath != "" {
		c, err := borrowsum.LoadConfig(configPath)
		if err != nil {
			return opts, nil, err
		}
		opts.KeepLog = opts.KeepLog || c.KeepLog
		if len(paths) == 0 {
			paths = c.Packages
		}
	}
	if len(paths) == 0 {
		return opts, nil, errors.New("no packages to check")
	}
	return opts, paths, nil
}
