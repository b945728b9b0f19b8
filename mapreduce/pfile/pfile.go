// Package pfile serves ranged reads of one input file to many map tasks.
// Reads are funnelled through a single goroutine that owns the file offset.
package pfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"
)

var errClosed = errors.New("pfile is closed")

type readRequest struct {
	rangeStart int64
	rangeEnd   int64
	response   chan any
}

type PFile struct {
	file        *os.File
	size        int64
	request     chan readRequest
	startDaemon func()
	closeOnce   sync.Once
	closed      chan struct{}
}

// Open opens filename for ranged reads.
func Open(filename string) (*PFile, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	fi, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if fi.IsDir() {
		file.Close()
		return nil, fmt.Errorf("%s is a directory", filename)
	}
	p := &PFile{
		file:    file,
		size:    fi.Size(),
		request: make(chan readRequest, 1),
		closed:  make(chan struct{}),
	}
	p.startDaemon = sync.OnceFunc(func() { go p.daemon() })
	return p, nil
}

// Size returns the size of the file when it was opened.
func (p *PFile) Size() int64 {
	return p.size
}

func (p *PFile) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.closed)
		err = p.file.Close()
	})
	return err
}

func (p *PFile) daemon() {
	for {
		select {
		case <-p.closed:
			return
		case request := <-p.request:
			request.response <- p.read(request.rangeStart, request.rangeEnd)
		}
	}
}

// read returns either the bytes in [rangeStart, rangeEnd) or an error.
func (p *PFile) read(rangeStart, rangeEnd int64) any {
	if _, err := p.file.Seek(rangeStart, io.SeekStart); err != nil {
		return err
	}
	bytes := make([]byte, rangeEnd-rangeStart)
	if _, err := io.ReadFull(p.file, bytes); err != nil {
		return err
	}
	return bytes
}

// ReadPart returns the bytes in [rangeStart, rangeEnd). It is safe to call
// from many goroutines.
func (p *PFile) ReadPart(rangeStart int64, rangeEnd int64) ([]byte, error) {
	if rangeStart < 0 || rangeEnd < rangeStart || rangeEnd > p.size {
		return nil, fmt.Errorf("range [%d, %d) outside file of %d bytes", rangeStart, rangeEnd, p.size)
	}
	p.startDaemon()
	request := readRequest{
		rangeStart: rangeStart,
		rangeEnd:   rangeEnd,
		response:   make(chan any, 1),
	}
	select {
	case p.request <- request:
	case <-p.closed:
		return nil, errClosed
	}
	var resp any
	select {
	case resp = <-request.response:
	case <-p.closed:
		return nil, errClosed
	}
	if bytes, ok := resp.([]byte); ok {
		return bytes, nil
	}
	return nil, resp.(error)
}

// IsTextFile checks if the beginning of the file looks like text.
// It reads up to 1024 bytes and rejects the file if any of them is a null
// byte. The encoding is not checked, so Latin-1 text is accepted.
func IsTextFile(filename string) (bool, error) {
	f, err := os.Open(filename)
	if err != nil {
		return false, err
	}
	defer f.Close()

	buffer := make([]byte, 1024)
	n, err := f.Read(buffer)
	if err != nil && err != io.EOF {
		return false, err
	}
	return !slices.Contains(buffer[:n], 0), nil
}
