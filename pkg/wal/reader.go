package wal

import (
	"errors"
	"io"
	"os"
)

// Reader reads journal entries sequentially across segment files
type Reader struct {
	files   []string // Segment files to read
	current int      // Current file index
	fd      *os.File // Current file descriptor
	offset  int64    // Current offset in file

	// Skipped counts entries dropped because of a CRC mismatch
	Skipped int

	// Torn lists segments that end in a partially written entry
	Torn []TornTail
}

// TornTail is a segment whose last entry was cut short. Offset is the end
// of the last whole entry.
type TornTail struct {
	File   string
	Offset int64
}

// NewReader creates a reader for the given segment files
func NewReader(files []string) *Reader {
	return &Reader{files: files}
}

// Open opens the first segment
func (r *Reader) Open() error {
	if len(r.files) == 0 {
		return ErrLogNotFound
	}

	fd, err := os.Open(r.files[0])
	if err != nil {
		return err
	}

	r.fd = fd
	r.offset = 0
	return nil
}

// Next reads the next entry, returning io.EOF after the last segment.
// A torn tail ends its segment; an entry failing its CRC is skipped.
func (r *Reader) Next() (*Entry, error) {
	for {
		entry, err := r.readEntryFromCurrent()
		switch {
		case err == nil:
			return entry, nil
		case errors.Is(err, ErrCorrupted) && r.fd != nil:
			r.Skipped++
			continue
		case err == io.EOF || errors.Is(err, ErrTruncated):
			if err != io.EOF {
				r.Torn = append(r.Torn, TornTail{File: r.files[r.current], Offset: r.offset})
			}
			if err := r.nextFile(); err != nil {
				return nil, err
			}
			continue
		default:
			return nil, err
		}
	}
}

// readEntryFromCurrent reads one length-framed entry from the current segment
func (r *Reader) readEntryFromCurrent() (*Entry, error) {
	if r.fd == nil {
		return nil, io.EOF
	}

	header := make([]byte, EntryHeaderSize)
	n, err := io.ReadFull(r.fd, header)
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil || n < EntryHeaderSize {
		return nil, ErrTruncated
	}

	dataLen, err := bodyLen(header)
	if err != nil {
		// Lengths cannot be trusted, so the rest of the segment cannot be framed
		return nil, ErrTruncated
	}

	data := make([]byte, EntryHeaderSize+dataLen)
	copy(data, header)
	if _, err := io.ReadFull(r.fd, data[EntryHeaderSize:]); err != nil {
		return nil, ErrTruncated
	}
	r.offset += int64(len(data))

	return DecodeEntry(data)
}

// nextFile moves to the next segment
func (r *Reader) nextFile() error {
	if r.fd != nil {
		r.fd.Close()
		r.fd = nil
	}

	r.current++
	if r.current >= len(r.files) {
		return io.EOF
	}

	fd, err := os.Open(r.files[r.current])
	if err != nil {
		return err
	}

	r.fd = fd
	r.offset = 0
	return nil
}

// Close closes the reader
func (r *Reader) Close() error {
	if r.fd != nil {
		err := r.fd.Close()
		r.fd = nil
		return err
	}
	return nil
}

// ReadAll reads all entries from all files
func ReadAll(files []string) ([]*Entry, error) {
	s, err := scan(files)
	if err != nil {
		return nil, err
	}
	return s.entries, nil
}

// scanResult is one full pass over the journal
type scanResult struct {
	entries   []*Entry
	skipped   int
	torn      []TornTail
	truncated int64 // bytes cut from a torn tail before appending
}

func scan(files []string) (*scanResult, error) {
	reader := NewReader(files)
	if err := reader.Open(); err != nil {
		return nil, err
	}
	defer reader.Close()

	s := &scanResult{}
	for {
		entry, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		s.entries = append(s.entries, entry)
	}
	s.skipped = reader.Skipped
	s.torn = reader.Torn
	return s, nil
}
