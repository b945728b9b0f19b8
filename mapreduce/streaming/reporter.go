package streaming

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// CounterGroup is the group every counter of this package is reported in.
const CounterGroup = "mrjobs"

// Reporter writes status and counter updates in the line format Hadoop
// streaming scans a task's stderr for.
type Reporter struct {
	mu sync.Mutex
	w  io.Writer
}

func NewReporter(w io.Writer) *Reporter {
	return &Reporter{w: w}
}

// IncrCounter adds amount to the counter group/name.
func (r *Reporter) IncrCounter(group, name string, amount int64) {
	if r == nil || amount == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, "reporter:counter:%s,%s,%d\n", group, name, amount)
}

// Statusf replaces the task status line.
func (r *Reporter) Statusf(format string, a ...any) {
	if r == nil {
		return
	}
	s := strings.ReplaceAll(fmt.Sprintf(format, a...), "\n", " ")
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, "reporter:status:%s\n", s)
}
