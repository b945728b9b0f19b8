package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"mrjobs/mapreduce/pfile"
	"mrjobs/mapreduce/taskmgr"
	"mrjobs/mapreduce/types"
	"mrjobs/utils"
)

// checkEvery is how many records a task processes between context checks.
const checkEvery = 1024

var (
	ErrInsufficientSpace = errors.New("insufficient free space in work directory")
	ErrNotText           = errors.New("input is not a text file")
	ErrOutputExists      = errors.New("output directory already exists")
)

// Config controls how a job is executed locally.
type Config struct {
	// Reducers is the number of reduce partitions and part files.
	Reducers int
	// Workers bounds how many tasks run at the same time.
	Workers int
	// SplitSize is the nominal number of input bytes per map task.
	SplitSize int64
	// WorkDir is where the run directory holding intermediate data is made.
	WorkDir string
	// Shuffle selects the intermediate store, ShuffleFile or ShuffleSQLite.
	Shuffle string
	// KeepWorkDir leaves intermediate data behind after the run.
	KeepWorkDir bool
	// MinFreeBytes is the least free space the work dir must have. The input
	// size is used when it is larger.
	MinFreeBytes uint64
}

func DefaultConfig() Config {
	return Config{
		Reducers:  1,
		Workers:   runtime.NumCPU(),
		SplitSize: 4 * 1024 * 1024,
		WorkDir:   os.TempDir(),
		Shuffle:   ShuffleFile,
	}
}

func (c Config) validate() error {
	if c.Reducers < 1 {
		return fmt.Errorf("reducers must be at least 1, got %d", c.Reducers)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.SplitSize < 1 {
		return fmt.Errorf("split size must be positive, got %d", c.SplitSize)
	}
	if c.Shuffle != ShuffleFile && c.Shuffle != ShuffleSQLite {
		return fmt.Errorf("unknown shuffle store %q", c.Shuffle)
	}
	return nil
}

// Stats summarizes a finished run.
type Stats struct {
	RunID            string
	Splits           int
	InputRecords     int64
	MapOutputRecords int64
	ReduceGroups     int64
	OutputRecords    int64
	MapDuration      time.Duration
	ReduceDuration   time.Duration
	Parts            []PartInfo
}

type Engine struct {
	cfg Config
}

func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// run is the state of one job execution.
type run struct {
	cfg     Config
	job     types.Job
	id      string
	prefix  string
	input   *pfile.PFile
	shuffle shuffle
	output  string
	stats   *Stats
}

// Run executes job over the file at inputPath and writes one part file per
// reduce partition into outputDir, which must not exist yet.
func (e *Engine) Run(ctx context.Context, job types.Job, inputPath, outputDir string) (*Stats, error) {
	if err := e.cfg.validate(); err != nil {
		return nil, err
	}
	if job.Map == nil || job.Reduce == nil {
		return nil, fmt.Errorf("job %q needs both a map and a reduce function", job.Name)
	}
	id := uuid.NewString()
	r := &run{
		cfg:    e.cfg,
		job:    job,
		id:     id,
		prefix: fmt.Sprintf("[engine job=%s run=%s]", job.Name, id[:8]),
		output: outputDir,
		stats:  &Stats{RunID: id},
	}

	// 1. check the input
	isText, err := pfile.IsTextFile(inputPath)
	if err != nil {
		return nil, fmt.Errorf("check input: %w", err)
	}
	if !isText {
		return nil, fmt.Errorf("%s: %w", inputPath, ErrNotText)
	}
	if _, err := os.Stat(outputDir); err == nil {
		return nil, fmt.Errorf("%s: %w", outputDir, ErrOutputExists)
	} else if !os.IsNotExist(err) {
		return nil, err
	}
	r.input, err = pfile.Open(inputPath)
	if err != nil {
		return nil, err
	}
	defer r.input.Close()

	// 2. prepare the work dir
	workDir := filepath.Join(e.cfg.WorkDir, "mrjobs-"+id)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	if e.cfg.KeepWorkDir {
		log.Printf("%s Keeping work dir %s", r.prefix, workDir)
	} else {
		defer os.RemoveAll(workDir)
	}
	need := max(e.cfg.MinFreeBytes, uint64(r.input.Size()))
	free, err := utils.FreeSpace(workDir)
	if err != nil {
		return nil, fmt.Errorf("check free space: %w", err)
	}
	if free < need {
		return nil, fmt.Errorf("%w: %d bytes free, %d needed", ErrInsufficientSpace, free, need)
	}
	r.shuffle, err = newShuffle(e.cfg.Shuffle, workDir)
	if err != nil {
		return nil, err
	}

	// 3. plan splits
	splits, err := planSplits(r.input, e.cfg.SplitSize)
	if err != nil {
		return nil, err
	}
	r.stats.Splits = len(splits)
	log.Printf("%s Input %s is %d bytes in %d splits, %d reducers, %s shuffle",
		r.prefix, inputPath, r.input.Size(), len(splits), e.cfg.Reducers, e.cfg.Shuffle)

	// 4. map phase
	start := time.Now()
	if err := r.mapPhase(ctx, splits); err != nil {
		return nil, fmt.Errorf("map phase: %w", err)
	}
	r.stats.MapDuration = time.Since(start)

	// 5. reduce phase
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	start = time.Now()
	if err := r.reducePhase(ctx); err != nil {
		return nil, fmt.Errorf("reduce phase: %w", err)
	}
	r.stats.ReduceDuration = time.Since(start)

	// 6. write the manifest
	for p := 0; p < e.cfg.Reducers; p++ {
		info, err := describePart(filepath.Join(outputDir, partName(p)))
		if err != nil {
			return nil, fmt.Errorf("describe part %d: %w", p, err)
		}
		r.stats.Parts = append(r.stats.Parts, info)
	}
	if err := writeManifest(outputDir, r.stats.Parts); err != nil {
		return nil, fmt.Errorf("write %s: %w", SuccessFile, err)
	}
	log.Printf("%s Done: %d input records, %d map outputs, %d groups, %d output records (map %v, reduce %v)",
		r.prefix, r.stats.InputRecords, r.stats.MapOutputRecords, r.stats.ReduceGroups,
		r.stats.OutputRecords, r.stats.MapDuration, r.stats.ReduceDuration)
	return r.stats, nil
}

func workerKey(slot int) string {
	return fmt.Sprintf("worker-%d", slot)
}

// newWorkerPool builds a task manager with one serial queue per worker slot.
func newWorkerPool[T any](workers int, handler taskmgr.HandlerFunc[int, T]) *taskmgr.TaskManager[int, T] {
	mgr := taskmgr.NewTaskManager(handler)
	for slot := 0; slot < workers; slot++ {
		mgr.AddContext(workerKey(slot), slot)
	}
	return mgr
}

func (r *run) mapPhase(ctx context.Context, splits []Split) error {
	mgr := newWorkerPool[Split](r.cfg.Workers, r.mapTask)
	for i, split := range splits {
		mgr.AddTask(workerKey(i%r.cfg.Workers), split)
	}
	return mgr.Run(ctx)
}

func (r *run) mapTask(ctx context.Context, slot int, split Split) error {
	data, err := r.input.ReadPart(split.Start, split.End)
	if err != nil {
		return fmt.Errorf("%v: %w", split, err)
	}
	writers := make([]recordWriter, r.cfg.Reducers)
	closeAll := func() error {
		var errs []error
		for _, w := range writers {
			if w != nil {
				errs = append(errs, w.Close())
			}
		}
		return errors.Join(errs...)
	}
	for p := range writers {
		writers[p], err = r.shuffle.Writer(split.ID, p)
		if err != nil {
			closeAll()
			return err
		}
	}

	var processed, generated int64
	for i, line := range splitLines(data) {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				closeAll()
				return err
			}
		}
		kvs, err := callMap(r.job.Map, line)
		if err != nil {
			closeAll()
			return fmt.Errorf("%v, line %d: %w", split, i+1, err)
		}
		for _, kv := range kvs {
			if err := writers[partitionOf(kv.Key, r.cfg.Reducers)].Write(kv); err != nil {
				closeAll()
				return err
			}
		}
		processed++
		generated += int64(len(kvs))
	}
	if err := closeAll(); err != nil {
		return fmt.Errorf("%v: %w", split, err)
	}
	atomic.AddInt64(&r.stats.InputRecords, processed)
	atomic.AddInt64(&r.stats.MapOutputRecords, generated)
	log.Printf("%s Worker %d finished map task %d, processed %d lines and generated %d pairs",
		r.prefix, slot, split.ID, processed, generated)
	return nil
}

func (r *run) reducePhase(ctx context.Context) error {
	mgr := newWorkerPool[int](r.cfg.Workers, r.reduceTask)
	for p := 0; p < r.cfg.Reducers; p++ {
		mgr.AddTask(workerKey(p%r.cfg.Workers), p)
	}
	return mgr.Run(ctx)
}

func (r *run) reduceTask(ctx context.Context, slot int, partition int) error {
	file, err := os.Create(filepath.Join(r.output, partName(partition)))
	if err != nil {
		return err
	}
	defer file.Close()
	w := bufio.NewWriter(file)

	var groups int64
	err = r.shuffle.Groups(ctx, partition, func(key string, values []string) error {
		value, err := callReduce(r.job.Reduce, key, values)
		if err != nil {
			return fmt.Errorf("partition %d, key %q: %w", partition, key, err)
		}
		groups++
		_, err = fmt.Fprintf(w, "%s\t%s\n", key, value)
		return err
	})
	if err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	atomic.AddInt64(&r.stats.ReduceGroups, groups)
	atomic.AddInt64(&r.stats.OutputRecords, groups)
	log.Printf("%s Worker %d finished reduce task %d, processed %d keys and generated %d records",
		r.prefix, slot, partition, groups, groups)
	return nil
}

func callMap(fn types.MapFunc, line string) (kvs []types.KeyValue, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("map function panicked: %v", rec)
		}
	}()
	return fn(line)
}

func callReduce(fn types.ReduceFunc, key string, values []string) (value string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("reduce function panicked: %v", rec)
		}
	}()
	return fn(key, values)
}
