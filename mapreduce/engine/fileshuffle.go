package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"mrjobs/mapreduce/codec"
	"mrjobs/mapreduce/types"
	"mrjobs/utils"
)

// fileShuffle spills each (map, partition) pair of streams to its own file of
// length-prefixed records and groups a partition by sorting it in memory.
type fileShuffle struct {
	dir string

	mu     sync.Mutex
	spills map[int]*utils.OrderedList[string]
}

func newFileShuffle(dir string) *fileShuffle {
	return &fileShuffle{
		dir:    dir,
		spills: make(map[int]*utils.OrderedList[string]),
	}
}

func (f *fileShuffle) Writer(mapID, partition int) (recordWriter, error) {
	path := filepath.Join(f.dir, fmt.Sprintf("map-%d-part-%d.spill", mapID, partition))
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create spill file: %w", err)
	}
	f.mu.Lock()
	list, ok := f.spills[partition]
	if !ok {
		list = utils.NewOrderedList[string]()
		f.spills[partition] = list
	}
	list.AddNoDuplicate(path)
	f.mu.Unlock()
	return &spillWriter{file: file, buf: bufio.NewWriter(file)}, nil
}

func (f *fileShuffle) spillsOf(partition int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	list, ok := f.spills[partition]
	if !ok {
		return nil
	}
	return append([]string(nil), list.GetUnderlyingList()...)
}

func (f *fileShuffle) Groups(ctx context.Context, partition int, fn groupFunc) error {
	groups := make(map[string][]string)
	for _, path := range f.spillsOf(partition) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := readSpill(path, groups); err != nil {
			return err
		}
	}
	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(key, groups[key]); err != nil {
			return err
		}
	}
	return nil
}

func readSpill(path string, groups map[string][]string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open spill file: %w", err)
	}
	defer file.Close()
	r := bufio.NewReader(file)
	for {
		kv, err := codec.Read(r)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read spill file %s: %w", filepath.Base(path), err)
		}
		groups[kv.Key] = append(groups[kv.Key], kv.Value)
	}
}

type spillWriter struct {
	file *os.File
	buf  *bufio.Writer
}

func (s *spillWriter) Write(kv types.KeyValue) error {
	return codec.Write(s.buf, kv)
}

func (s *spillWriter) Close() error {
	if err := s.buf.Flush(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}
