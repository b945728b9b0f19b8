package engine

import (
	"context"
	"fmt"
	"hash/fnv"

	"mrjobs/mapreduce/types"
)

// Shuffle store names accepted in Config.Shuffle.
const (
	ShuffleFile   = "file"
	ShuffleSQLite = "sqlite"
)

// recordWriter receives the intermediate pairs one map task emits for one
// partition.
type recordWriter interface {
	Write(kv types.KeyValue) error
	Close() error
}

// groupFunc is called once per distinct key of a partition, in ascending
// byte order of keys.
type groupFunc func(key string, values []string) error

// shuffle stores map output by partition and hands it back grouped by key.
type shuffle interface {
	Writer(mapID, partition int) (recordWriter, error)
	Groups(ctx context.Context, partition int, fn groupFunc) error
}

func newShuffle(kind, dir string) (shuffle, error) {
	switch kind {
	case ShuffleFile:
		return newFileShuffle(dir), nil
	case ShuffleSQLite:
		return newSQLiteShuffle(dir), nil
	default:
		return nil, fmt.Errorf("unknown shuffle store %q", kind)
	}
}

// partitionOf picks the reduce partition of key.
func partitionOf(key string, partitions int) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(partitions))
}
