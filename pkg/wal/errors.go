// Package wal implements the write-ahead record journal that backs a durable store.
// Every accepted store mutation is appended as a committed transaction and
// replayed on open; segments are never deleted because the journal is the history.
package wal

import "errors"

var (
	// ErrCorrupted indicates a corrupted entry (CRC mismatch or absurd lengths)
	ErrCorrupted = errors.New("wal: corrupted entry")

	// ErrInvalidEntry indicates an entry with an unknown record type
	ErrInvalidEntry = errors.New("wal: invalid entry")

	// ErrLogClosed indicates an operation on a closed log
	ErrLogClosed = errors.New("wal: log closed")

	// ErrLogNotFound indicates no segment files exist
	ErrLogNotFound = errors.New("wal: log not found")

	// ErrTxnDone indicates a transaction that was already committed or aborted
	ErrTxnDone = errors.New("wal: transaction already finished")

	// ErrTruncated indicates a partially written entry
	ErrTruncated = errors.New("wal: truncated entry")
)
