package wal

import (
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	ErrInvalidMagic      = errors.New("invalid WAL file: bad magic number")
	ErrChecksumMismatch  = errors.New("data corruption: invalid CRC32 checksum")
	ErrInvalidPayloadLen = errors.New("invalid or excessive payload length")
)

// WALReader reads log entries sequentially.
type WALReader struct {
	file   *os.File
	offset int64
}

// NewWALReader opens a reader over an existing log file.
func NewWALReader(path string) (*WALReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	return &WALReader{
		file: f,
	}, nil
}

// ReadEntry reads the next entry in the log. Returns io.EOF once the log
// is exhausted.
func (r *WALReader) ReadEntry() (*WALEntry, error) {
	// 1. Read the fixed-size header via a pooled scratch buffer.
	bufPtr := AcquireBuffer()
	defer ReleaseBuffer(bufPtr)
	if cap(*bufPtr) < HeaderSize {
		*bufPtr = make([]byte, HeaderSize)
	}
	headerBuf := (*bufPtr)[:HeaderSize]

	n, err := io.ReadFull(r.file, headerBuf)
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	if n != HeaderSize {
		return nil, io.ErrUnexpectedEOF
	}

	// 2. Decode and validate the header.
	var header WALHeader
	header.Decode(headerBuf)

	if header.Magic != WALMagic {
		return nil, ErrInvalidMagic
	}

	if header.PayloadLen == 0 {
		return &WALEntry{Header: header}, nil
	}

	// Guard against reading garbage as an enormous length.
	if header.PayloadLen > 1024*1024*1024 { // 1GB limit.
		return nil, ErrInvalidPayloadLen
	}

	// 3. Read the payload. The caller owns the returned entry and must
	// call ReleaseEntry to return it to the pool.
	entry := AcquireEntry()
	entry.Header = header

	if uint32(cap(entry.Payload)) < header.PayloadLen {
		entry.Payload = make([]byte, header.PayloadLen)
	} else {
		entry.Payload = entry.Payload[:header.PayloadLen]
	}

	n, err = io.ReadFull(r.file, entry.Payload)
	if err != nil {
		ReleaseEntry(entry) // Avoid leaking the pooled entry on error.
		if err == io.EOF {
			return nil, io.ErrUnexpectedEOF // Truncated payload.
		}
		return nil, err
	}

	// 4. Validate the checksum.
	if !ValidateCRC32(entry.Payload, header.CRC32) {
		ReleaseEntry(entry)
		return nil, ErrChecksumMismatch
	}

	r.offset += int64(HeaderSize + header.PayloadLen)
	return entry, nil
}

// Close closes the underlying file.
func (r *WALReader) Close() error {
	return r.file.Close()
}
