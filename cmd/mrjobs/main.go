package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"mrjobs/mapreduce/driver"
	"mrjobs/mapreduce/engine"
	"mrjobs/mapreduce/functions"
	"mrjobs/mapreduce/streaming"
)

func printUsage() {
	fmt.Printf(`Usage of %s: %s [OPTIONS] <COMMAND> [ARGS]
Options:
  -h                         Print this help message.
  -quiet                     Suppress progress logging.
  -reducers <number>         Number of reduce tasks and part files (default 1).
  -workers <number>          Number of tasks run at the same time (default: number of CPUs).
  -split-size <bytes>        Input bytes per map task (default 4194304).
  -work-dir <dir>            Directory for intermediate data (default: system temp dir).
  -shuffle <file|sqlite>     Intermediate store (default file).
  -keep-work-dir             Keep intermediate data after the run.
  -min-free <bytes>          Free bytes required in the work directory.
Commands:
  run <job> <input> <output> Run a job locally. The output directory is deleted first.
  map <job>                  Run the map side of a job over stdin (Hadoop streaming).
  reduce <job>               Run the reduce side of a job over key-sorted stdin (Hadoop streaming).
  list                       List the available jobs.
  verify <output>            Check the part files of an output directory against its _SUCCESS digests.
`, os.Args[0], os.Args[0])
}

func checkCommand(commands []string) error {
	if len(commands) == 0 {
		return errors.New("no command specified")
	}
	if commands[0] == "run" {
		if len(commands) != 4 {
			return errors.New("run command requires 3 arguments: <job> <input> <output>")
		}
	} else if commands[0] == "map" || commands[0] == "reduce" {
		if len(commands) != 2 {
			return fmt.Errorf("%s command requires 1 argument: <job>", commands[0])
		}
	} else if commands[0] == "list" {
		if len(commands) != 1 {
			return errors.New("list command takes no arguments")
		}
	} else if commands[0] == "verify" {
		if len(commands) != 2 {
			return errors.New("verify command requires 1 argument: <output>")
		}
	} else {
		return errors.New("unknown command")
	}
	return nil
}

func main() {
	flagSet := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	opts := driver.Options{Config: engine.DefaultConfig()}
	driver.RegisterFlags(flagSet, &opts)
	flagSet.Usage = printUsage
	flagSet.Parse(os.Args[1:])
	err := checkCommand(flagSet.Args())
	if err != nil {
		fmt.Println(err)
		printUsage()
		os.Exit(1)
	}
	if opts.Quiet {
		log.SetOutput(io.Discard)
	}

	ctx, cancel := driver.WithSignals(context.Background(), 5*time.Second)
	defer cancel()

	var operation string
	args := flagSet.Args()
	switch args[0] {
	case "run":
		err = runJob(ctx, args[1], args[2], args[3], opts.Config)
		operation = "run job " + args[1]
	case "map", "reduce":
		err = stream(args[0], args[1])
		operation = args[0] + " " + args[1]
	case "list":
		err = listJobs(os.Stdout)
		operation = "list jobs"
	case "verify":
		err = verify(os.Stdout, args[1])
		operation = "verify output"
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", operation, err)
		cancel()
		os.Exit(1)
	}
}

func runJob(ctx context.Context, name, input, output string, cfg engine.Config) error {
	stats, err := driver.Run(ctx, name, input, output, cfg)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d records in, %d records out, %d part files\n",
		name, stats.InputRecords, stats.OutputRecords, len(stats.Parts))
	return nil
}

func stream(side, name string) error {
	job, err := functions.Lookup(name)
	if err != nil {
		return err
	}
	if side == "map" {
		return streaming.RunMapper(job, os.Stdin, os.Stdout)
	}
	return streaming.RunReducer(job, os.Stdin, os.Stdout)
}

func listJobs(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, name := range functions.Names() {
		job, err := functions.Lookup(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%s\n", job.Name, job.Description)
	}
	return tw.Flush()
}

func verify(w io.Writer, output string) error {
	parts, err := engine.VerifyOutput(output)
	if err != nil {
		return err
	}
	for _, p := range parts {
		fmt.Fprintf(w, "%s\t%d\t%s\tok\n", p.Name, p.Size, p.Hash)
	}
	return nil
}
