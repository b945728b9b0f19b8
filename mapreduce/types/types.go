package types

import "errors"

// ErrMalformedRecord is returned by map and reduce functions when a line or
// an intermediate value does not have the fields the job expects.
var ErrMalformedRecord = errors.New("malformed record")

// KeyValue is a type used for intermediate Map output and Reduce input/output.
type KeyValue struct {
	Key   string
	Value string
}

// MapFunc turns one input line into zero or more intermediate pairs.
type MapFunc func(line string) ([]KeyValue, error)

// ReduceFunc folds every value emitted for key into a single output value.
// Values arrive in no particular order.
type ReduceFunc func(key string, values []string) (string, error)

// Job bundles the map and reduce functions of one aggregation.
type Job struct {
	Name        string
	Description string
	Map         MapFunc
	Reduce      ReduceFunc
}
