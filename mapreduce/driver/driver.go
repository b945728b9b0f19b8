// Package driver is the command line front end shared by the job binaries.
package driver

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"mrjobs/mapreduce/engine"
	"mrjobs/mapreduce/functions"
	"mrjobs/mapreduce/streaming"
)

var ErrUsage = errors.New("usage error")

// Options are the settings a job binary reads from its flags.
type Options struct {
	Config  engine.Config
	Quiet   bool
	Mapper  bool
	Reducer bool
}

// RegisterFlags binds the engine settings and the logging switch to fs,
// using the defaults already in opts.
func RegisterFlags(fs *flag.FlagSet, opts *Options) {
	fs.IntVar(&opts.Config.Reducers, "reducers", opts.Config.Reducers, "Number of reduce tasks and part files")
	fs.IntVar(&opts.Config.Workers, "workers", opts.Config.Workers, "Number of tasks run at the same time")
	fs.Int64Var(&opts.Config.SplitSize, "split-size", opts.Config.SplitSize, "Input bytes per map task")
	fs.StringVar(&opts.Config.WorkDir, "work-dir", opts.Config.WorkDir, "Directory for intermediate data")
	fs.StringVar(&opts.Config.Shuffle, "shuffle", opts.Config.Shuffle, "Intermediate store: file or sqlite")
	fs.BoolVar(&opts.Config.KeepWorkDir, "keep-work-dir", opts.Config.KeepWorkDir, "Keep intermediate data after the run")
	fs.Uint64Var(&opts.Config.MinFreeBytes, "min-free", opts.Config.MinFreeBytes, "Free bytes required in the work directory")
	fs.BoolVar(&opts.Quiet, "quiet", opts.Quiet, "Suppress progress logging")
}

// RemoveOutput deletes dir and everything below it. A missing dir is not an
// error.
func RemoveOutput(dir string) error {
	if dir == "" {
		return fmt.Errorf("%w: empty output directory", ErrUsage)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	if abs == filepath.Dir(abs) {
		return fmt.Errorf("%w: refusing to remove %s", ErrUsage, abs)
	}
	if err := os.RemoveAll(abs); err != nil {
		return fmt.Errorf("remove output %s: %w", dir, err)
	}
	return nil
}

// Run clears output and runs the named job over input.
func Run(ctx context.Context, name, input, output string, cfg engine.Config) (*engine.Stats, error) {
	job, err := functions.Lookup(name)
	if err != nil {
		return nil, err
	}
	if err := RemoveOutput(output); err != nil {
		return nil, err
	}
	log.Printf("[driver] Running %s on %s into %s", name, input, output)
	return engine.New(cfg).Run(ctx, job, input, output)
}

func printUsage(w io.Writer, name string, fs *flag.FlagSet) {
	fmt.Fprintf(w, `Usage of %s: %s [OPTIONS] <input> <outputDir>
       %s -mapper|-reducer < input > output
The output directory is deleted before the job runs.
Options:
`, name, name, name)
	fs.SetOutput(w)
	fs.PrintDefaults()
}

func checkArgs(opts Options, args []string) error {
	if opts.Mapper && opts.Reducer {
		return fmt.Errorf("%w: can either map or reduce, not both", ErrUsage)
	}
	if opts.Mapper || opts.Reducer {
		if len(args) != 0 {
			return fmt.Errorf("%w: streaming mode takes no arguments", ErrUsage)
		}
		return nil
	}
	if len(args) != 2 {
		return fmt.Errorf("%w: want 2 arguments <input> <outputDir>, got %d", ErrUsage, len(args))
	}
	return nil
}

// Execute runs the job binary for name with the given arguments and returns
// its exit code.
func Execute(ctx context.Context, name string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	opts := Options{Config: engine.DefaultConfig()}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	RegisterFlags(fs, &opts)
	fs.BoolVar(&opts.Mapper, "mapper", false, "Run the map side over stdin (Hadoop streaming)")
	fs.BoolVar(&opts.Reducer, "reducer", false, "Run the reduce side over key-sorted stdin (Hadoop streaming)")
	fs.SetOutput(io.Discard)
	fs.Usage = func() { printUsage(stderr, name, fs) }
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			printUsage(stdout, name, fs)
			return 0
		}
		fmt.Fprintln(stderr, err)
		printUsage(stderr, name, fs)
		return 1
	}
	if err := checkArgs(opts, fs.Args()); err != nil {
		fmt.Fprintln(stderr, err)
		printUsage(stderr, name, fs)
		return 1
	}
	if opts.Quiet {
		log.SetOutput(io.Discard)
	} else {
		log.SetOutput(stderr)
	}

	var err error
	if opts.Mapper || opts.Reducer {
		err = runStreaming(name, opts.Mapper, stdin, stdout)
	} else {
		_, err = Run(ctx, name, fs.Arg(0), fs.Arg(1), opts.Config)
	}
	if err != nil {
		fmt.Fprintf(stderr, "%s failed: %v\n", name, err)
		return 1
	}
	return 0
}

func runStreaming(name string, mapper bool, stdin io.Reader, stdout io.Writer) error {
	job, err := functions.Lookup(name)
	if err != nil {
		return err
	}
	if mapper {
		return streaming.RunMapper(job, stdin, stdout)
	}
	return streaming.RunReducer(job, stdin, stdout)
}

// WithSignals returns a context cancelled on SIGINT or SIGTERM. A second
// signal, or a run that does not stop within grace, exits the process.
func WithSignals(parent context.Context, grace time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			log.Printf("[driver] Received signal: %v", sig)
			cancel()
		case <-ctx.Done():
			signal.Stop(sigChan)
			return
		}
		select {
		case <-sigChan:
		case <-time.After(grace):
		}
		log.Println("[driver] Force exiting")
		os.Exit(1)
	}()
	return ctx, cancel
}

// Main is the whole main function of a job binary.
func Main(name string) {
	ctx, cancel := WithSignals(context.Background(), 5*time.Second)
	code := Execute(ctx, name, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}
