// Package streaming runs a job's map or reduce side as a filter over
// standard input and output, the contract Hadoop streaming expects of an
// executable.
package streaming

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"mrjobs/mapreduce/types"
	"mrjobs/utils"
)

// Runner executes one side of a job. A nil Reporter disables counters.
type Runner struct {
	Job      types.Job
	Reporter *Reporter
}

// RunMapper maps r to w and reports counters on stderr.
func RunMapper(job types.Job, r io.Reader, w io.Writer) error {
	return (&Runner{Job: job, Reporter: NewReporter(os.Stderr)}).Map(r, w)
}

// RunReducer reduces key-sorted r to w and reports counters on stderr.
func RunReducer(job types.Job, r io.Reader, w io.Writer) error {
	return (&Runner{Job: job, Reporter: NewReporter(os.Stderr)}).Reduce(r, w)
}

// readLine returns the next line without its terminator. io.EOF is returned
// only once no bytes are left.
func readLine(br *bufio.Reader) (string, error) {
	s, err := br.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && s != "") {
		return "", err
	}
	s = strings.TrimSuffix(s, "\n")
	return strings.TrimSuffix(s, "\r"), nil
}

func writePair(w io.Writer, key, value string) error {
	_, err := fmt.Fprintf(w, "%s\t%s\n", key, value)
	return err
}

// Map calls the job's map function on every line of r and writes the
// emitted pairs to w as key<TAB>value lines.
func (rn *Runner) Map(r io.Reader, w io.Writer) error {
	br := bufio.NewReader(r)
	bw := bufio.NewWriter(w)
	var records, emitted int64
	defer func() {
		rn.Reporter.IncrCounter(CounterGroup, "map_input_records", records)
		rn.Reporter.IncrCounter(CounterGroup, "map_output_records", emitted)
		if records > 0 {
			rn.Reporter.Statusf("%s: mapped %d records into %d pairs", rn.Job.Name, records, emitted)
		}
	}()
	for {
		line, err := readLine(br)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		records++
		kvs, err := rn.Job.Map(line)
		if err != nil {
			return fmt.Errorf("line %d: %w", records, err)
		}
		for _, kv := range kvs {
			if err := writePair(bw, kv.Key, kv.Value); err != nil {
				return err
			}
		}
		emitted += int64(len(kvs))
	}
	return bw.Flush()
}

// Reduce reads key<TAB>value lines sorted by key, hands every run of equal
// keys to the job's reduce function and writes one line per key to w. A
// line without a tab is a key with an empty value.
func (rn *Runner) Reduce(r io.Reader, w io.Writer) error {
	br := bufio.NewReader(r)
	bw := bufio.NewWriter(w)
	var (
		current        string
		values         *utils.UnorderedList[string]
		groups, inputs int64
	)
	defer func() {
		rn.Reporter.IncrCounter(CounterGroup, "reduce_input_records", inputs)
		rn.Reporter.IncrCounter(CounterGroup, "reduce_input_groups", groups)
		if inputs > 0 {
			rn.Reporter.Statusf("%s: reduced %d keys from %d records", rn.Job.Name, groups, inputs)
		}
	}()
	flush := func() error {
		if values == nil {
			return nil
		}
		value, err := rn.Job.Reduce(current, values.GetUnderlyingList())
		if err != nil {
			return fmt.Errorf("key %q: %w", current, err)
		}
		groups++
		return writePair(bw, current, value)
	}
	for {
		line, err := readLine(br)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		inputs++
		key, value, _ := strings.Cut(line, "\t")
		if values != nil && key == current {
			values.Add(value)
			continue
		}
		if err := flush(); err != nil {
			return err
		}
		current = key
		values = utils.NewUnorderedList[string]().Add(value)
	}
	if err := flush(); err != nil {
		return err
	}
	return bw.Flush()
}
