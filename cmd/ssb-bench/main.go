// ssb-bench is an interactive CLI and load generator for an ssbtree pool
// file.
//
// Usage:
//
//	ssb-bench new [opts] <pool-file>    Create a new pool file
//	ssb-bench open [opts] <pool-file>   Open an existing pool file
//
// Run 'ssb-bench <command> --help' for options.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/pmkv/ssbtree"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		printUsage()
		return errors.New("missing command or pool file path")
	}

	switch os.Args[1] {
	case "new":
		return runNew(os.Args[2:])
	case "open":
		return runOpen(os.Args[2:])
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", os.Args[1])
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage:\n")
	fmt.Fprintf(os.Stderr, "  ssb-bench new [opts] <pool-file>    Create a new pool file\n")
	fmt.Fprintf(os.Stderr, "  ssb-bench open [opts] <pool-file>   Open an existing pool file\n")
	fmt.Fprintf(os.Stderr, "\nRun 'ssb-bench new --help' or 'ssb-bench open --help' for options.\n")
}

func runNew(args []string) error {
	fs := pflag.NewFlagSet("new", pflag.ExitOnError)

	poolSize := fs.Int64("pool-size", ssbtree.DefaultPoolSize, "backing file size in bytes")
	lnum := fs.Uint32("lnum", ssbtree.DefaultLnum, "merge low-watermark")
	rnum := fs.Uint32("rnum", ssbtree.DefaultRnum, "split high-watermark")
	configPath := fs.StringP("config", "c", "", "HuJSON config file overriding defaults")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ssb-bench new [options] <pool-file>\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return errors.New("missing pool file path")
	}
	path := fs.Arg(0)

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("pool file already exists: %s (use 'ssb-bench open %s' to open it)", path, path)
	}

	opts := ssbtree.Options{Path: path, PoolSize: *poolSize, Lnum: *lnum, Rnum: *rnum}
	if *configPath != "" {
		var err error
		opts, err = loadConfig(*configPath, opts)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		opts.Path = path
	}

	tree, err := ssbtree.Open(opts)
	if err != nil {
		return fmt.Errorf("creating pool: %w", err)
	}
	defer tree.Close()

	fmt.Printf("created %s (pool-size=%d lnum=%d rnum=%d)\n", path, opts.PoolSize, opts.Lnum, opts.Rnum)

	repl := newREPL(tree)
	return repl.Run()
}

func runOpen(args []string) error {
	fs := pflag.NewFlagSet("open", pflag.ExitOnError)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ssb-bench open <pool-file>\n\n")
		fmt.Fprintf(os.Stderr, "Open an existing pool file.\n")
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return errors.New("missing pool file path")
	}
	path := fs.Arg(0)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("pool file does not exist: %s (use 'ssb-bench new %s' to create it)", path, path)
	}

	tree, err := ssbtree.Open(ssbtree.Options{Path: path})
	if err != nil {
		switch {
		case errors.Is(err, ssbtree.ErrCorrupt):
			return fmt.Errorf("opening pool: %s is corrupt (failed root header CRC check)", path)
		case errors.Is(err, ssbtree.ErrIncompatible):
			return fmt.Errorf("opening pool: %s is not an ssbtree pool file", path)
		default:
			return fmt.Errorf("opening pool: %w", err)
		}
	}
	defer tree.Close()

	fmt.Printf("opened %s\n", path)

	repl := newREPL(tree)
	return repl.Run()
}
