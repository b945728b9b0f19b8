package engine

import (
	"bytes"
	"fmt"

	"mrjobs/mapreduce/pfile"
)

// probeWindow is how many bytes are read at a time when looking for the end
// of the line a split boundary falls in.
const probeWindow = 4096

// Split is a line-aligned byte range of the input handed to one map task.
type Split struct {
	ID    int
	Start int64
	End   int64
}

// Size returns the number of bytes in the split.
func (s Split) Size() int64 {
	return s.End - s.Start
}

func (s Split) String() string {
	return fmt.Sprintf("split %d [%d, %d)", s.ID, s.Start, s.End)
}

// planSplits cuts the input into ranges of about splitSize bytes. Every
// range except the last ends just after a line terminator, so no line is shared by
// two splits. An empty input has no splits.
func planSplits(input *pfile.PFile, splitSize int64) ([]Split, error) {
	size := input.Size()
	var splits []Split
	for start := int64(0); start < size; {
		end := start + splitSize
		if end >= size {
			end = size
		} else {
			var err error
			end, err = nextLineStart(input, end)
			if err != nil {
				return nil, fmt.Errorf("planning split %d: %w", len(splits), err)
			}
		}
		splits = append(splits, Split{ID: len(splits), Start: start, End: end})
		start = end
	}
	return splits, nil
}

// nextLineStart returns the offset just past the first line terminator at
// or after pos-1, or the input size when there is none. A terminator is
// "\n", "\r" or "\r\n".
func nextLineStart(input *pfile.PFile, pos int64) (int64, error) {
	size := input.Size()
	for off := pos - 1; off < size; off += probeWindow {
		b, err := input.ReadPart(off, min(off+probeWindow, size))
		if err != nil {
			return 0, err
		}
		i := bytes.IndexAny(b, "\r\n")
		if i < 0 {
			continue
		}
		end := off + int64(i) + 1
		if b[i] == '\r' && end < size {
			next, err := input.ReadPart(end, end+1)
			if err != nil {
				return 0, err
			}
			if next[0] == '\n' {
				end++
			}
		}
		return end, nil
	}
	return size, nil
}

// splitLines breaks split data into records. Lines end at "\n", "\r" or
// "\r\n", and a final terminator does not produce an extra empty record.
func splitLines(data []byte) []string {
	var lines []string
	for len(data) > 0 {
		i := bytes.IndexAny(data, "\r\n")
		if i < 0 {
			lines = append(lines, string(data))
			break
		}
		lines = append(lines, string(data[:i]))
		if data[i] == '\r' && i+1 < len(data) && data[i+1] == '\n' {
			i++
		}
		data = data[i+1:]
	}
	return lines
}
