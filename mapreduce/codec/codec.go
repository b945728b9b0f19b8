// Package codec frames intermediate key/value records for spill files.
//
// Each record is
//
//	| length (8 bytes, big endian) | payload (length bytes) |
//
// where payload is a protobuf-encoded message with the key in field 1 and
// the value in field 2.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"

	"mrjobs/mapreduce/types"
)

const (
	keyField   protowire.Number = 1
	valueField protowire.Number = 2

	// maxRecordSize bounds the allocation made for a single payload.
	maxRecordSize = 64 << 20
)

// ErrTruncated is returned when a stream ends in the middle of a record.
var ErrTruncated = errors.New("truncated record")

// Marshal encodes kv as a protobuf message.
func Marshal(kv types.KeyValue) []byte {
	b := make([]byte, 0, len(kv.Key)+len(kv.Value)+2*binary.MaxVarintLen64)
	b = protowire.AppendTag(b, keyField, protowire.BytesType)
	b = protowire.AppendString(b, kv.Key)
	b = protowire.AppendTag(b, valueField, protowire.BytesType)
	b = protowire.AppendString(b, kv.Value)
	return b
}

// Unmarshal decodes a message produced by Marshal. Unknown fields are
// skipped.
func Unmarshal(b []byte) (types.KeyValue, error) {
	var kv types.KeyValue
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return kv, protowire.ParseError(n)
		}
		b = b[n:]
		switch {
		case num == keyField && typ == protowire.BytesType:
			kv.Key, n = protowire.ConsumeString(b)
		case num == valueField && typ == protowire.BytesType:
			kv.Value, n = protowire.ConsumeString(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return kv, protowire.ParseError(n)
		}
		b = b[n:]
	}
	return kv, nil
}

// Write writes one framed record to w.
func Write(w io.Writer, kv types.KeyValue) error {
	payload := Marshal(kv)
	if err := binary.Write(w, binary.BigEndian, uint64(len(payload))); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	return nil
}

// Read reads one framed record from r. It returns io.EOF when r is
// exhausted exactly at a record boundary.
func Read(r io.Reader) (types.KeyValue, error) {
	var length uint64
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		if err == io.ErrUnexpectedEOF {
			return types.KeyValue{}, ErrTruncated
		}
		return types.KeyValue{}, err
	}
	if length > maxRecordSize {
		return types.KeyValue{}, fmt.Errorf("record of %d bytes exceeds limit of %d", length, maxRecordSize)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return types.KeyValue{}, ErrTruncated
		}
		return types.KeyValue{}, err
	}
	return Unmarshal(payload)
}
