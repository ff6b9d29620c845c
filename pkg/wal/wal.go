package wal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// MaxSegmentSize is the size at which the journal moves to a new segment (64MB)
	MaxSegmentSize = 64 << 20
)

// WAL is an append-only journal split across numbered segment files
type WAL struct {
	// Path is the base path for segment files (e.g., "/data/doc.journal")
	Path string

	// SegmentSize overrides MaxSegmentSize when positive
	SegmentSize int64

	// fd is the current segment
	fd *os.File

	// mu serializes writers
	mu sync.Mutex

	// lsn is the last Log Sequence Number handed out
	lsn uint64

	// txn is the last transaction id handed out
	txn uint64

	// size is the current segment size
	size int64

	// segment is the current segment index (0, 1, 2, ...)
	segment int

	closed bool

	// opened holds the scan made by Open until recovery consumes it
	opened *scanResult

	now func() time.Time
}

// Open opens the journal, creating the first segment if none exists
func (w *WAL) Open() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.now == nil {
		w.now = time.Now
	}

	if err := os.MkdirAll(filepath.Dir(w.Path), 0755); err != nil {
		return err
	}

	files, err := w.segments()
	if err != nil {
		return err
	}

	if len(files) == 0 {
		fd, err := os.OpenFile(w.segmentPath(0), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return err
		}
		w.fd = fd
		w.size = 0
		w.segment = 0
		w.opened = nil
		w.closed = false
		return nil
	}

	res, err := scan(files)
	if err != nil {
		return fmt.Errorf("scan journal: %w", err)
	}

	// Appending after a partial entry would hide everything written later,
	// so cut the last segment back to its last whole entry first
	latest := files[len(files)-1]
	for _, torn := range res.torn {
		if torn.File != latest {
			continue
		}
		stat, err := os.Stat(latest)
		if err != nil {
			return err
		}
		if err := os.Truncate(latest, torn.Offset); err != nil {
			return fmt.Errorf("truncate torn tail: %w", err)
		}
		res.truncated = stat.Size() - torn.Offset
	}

	fd, err := os.OpenFile(latest, os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	stat, err := fd.Stat()
	if err != nil {
		fd.Close()
		return err
	}
	w.fd = fd
	w.size = stat.Size()
	w.segment = w.segmentIndex(latest)

	for _, e := range res.entries {
		if e.LSN > w.lsn {
			w.lsn = e.LSN
		}
		if e.TxnID > w.txn {
			w.txn = e.TxnID
		}
	}
	w.opened = res

	w.closed = false
	return nil
}

// LastLSN returns the highest LSN written so far
func (w *WAL) LastLSN() uint64 {
	return atomic.LoadUint64(&w.lsn)
}

// Begin starts a transaction. Entries are buffered until Commit.
func (w *WAL) Begin() *Txn {
	return &Txn{wal: w, id: atomic.AddUint64(&w.txn, 1)}
}

// Close closes the journal
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || w.fd == nil {
		w.closed = true
		return nil
	}

	err := w.fd.Close()
	w.closed = true
	return err
}

// writeBatch appends entries and fsyncs (caller must not hold mu)
func (w *WAL) writeBatch(entries []Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || w.fd == nil {
		return ErrLogClosed
	}
	w.opened = nil

	buf := make([]byte, 0, 256*len(entries))
	for i := range entries {
		entries[i].LSN = atomic.AddUint64(&w.lsn, 1)
		entries[i].Timestamp = w.now()
		buf = append(buf, entries[i].Encode()...)
	}

	// Keep a transaction inside one segment
	limit := w.SegmentSize
	if limit <= 0 {
		limit = MaxSegmentSize
	}
	if w.size > 0 && w.size+int64(len(buf)) > limit {
		if err := w.rotateNoLock(); err != nil {
			return err
		}
	}

	n, err := w.fd.Write(buf)
	w.size += int64(n)
	if err != nil {
		return err
	}
	return w.fd.Sync()
}

// rotateNoLock moves to a new segment (caller must hold mu)
func (w *WAL) rotateNoLock() error {
	if err := w.fd.Sync(); err != nil {
		return err
	}
	if err := w.fd.Close(); err != nil {
		return err
	}

	w.segment++
	fd, err := os.OpenFile(w.segmentPath(w.segment), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	w.fd = fd
	w.size = 0
	return nil
}

// takeOpened hands over the scan made by Open, if nothing was written since
func (w *WAL) takeOpened() *scanResult {
	w.mu.Lock()
	defer w.mu.Unlock()
	res := w.opened
	w.opened = nil
	return res
}

// Segments returns all segment files sorted by index
func (w *WAL) Segments() ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.segments()
}

func (w *WAL) baseName() string {
	return filepath.Base(w.Path)
}

func (w *WAL) segmentPath(index int) string {
	return filepath.Join(filepath.Dir(w.Path), fmt.Sprintf("%s.%03d", w.baseName(), index))
}

func (w *WAL) segmentIndex(file string) int {
	var index int
	if _, err := fmt.Sscanf(filepath.Base(file)[len(w.baseName()):], ".%d", &index); err != nil {
		return 0
	}
	return index
}

func (w *WAL) isSegment(name string) bool {
	base := w.baseName()
	if len(name) <= len(base)+1 || name[:len(base)] != base {
		return false
	}
	var index int
	_, err := fmt.Sscanf(name[len(base):], ".%d", &index)
	return err == nil
}

func (w *WAL) segments() ([]string, error) {
	dir := filepath.Dir(w.Path)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && w.isSegment(entry.Name()) {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}

	sort.Slice(files, func(i, j int) bool {
		return w.segmentIndex(files[i]) < w.segmentIndex(files[j])
	})

	return files, nil
}

// Txn groups entries that must be replayed together or not at all
type Txn struct {
	wal     *WAL
	id      uint64
	entries []Entry
	done    bool
}

// ID returns the transaction id
func (t *Txn) ID() uint64 { return t.id }

// Append buffers an entry in the transaction
func (t *Txn) Append(typ RecordType, key, value []byte) error {
	if t.done {
		return ErrTxnDone
	}
	if typ == RecordCommit {
		return fmt.Errorf("%w: commit markers are written by Commit", ErrInvalidEntry)
	}
	if len(key)+len(value) > MaxRecordSize {
		return fmt.Errorf("%w: record of %d bytes", ErrInvalidEntry, len(key)+len(value))
	}
	t.entries = append(t.entries, Entry{TxnID: t.id, Type: typ, Key: key, Value: value})
	return nil
}

// Commit writes the buffered entries followed by a commit marker and fsyncs
func (t *Txn) Commit() error {
	if t.done {
		return ErrTxnDone
	}
	t.done = true
	entries := append(t.entries, Entry{TxnID: t.id, Type: RecordCommit})
	return t.wal.writeBatch(entries)
}

// Abort discards the buffered entries
func (t *Txn) Abort() {
	t.done = true
	t.entries = nil
}

var _ io.Closer = (*WAL)(nil)
