package wal

import (
	"fmt"
	"sort"
)

// ReplayFunc is called for each record of a committed transaction
type ReplayFunc func(entry *Entry) error

// Recovery replays the journal into a fresh store image
type Recovery struct {
	wal *WAL
}

// NewRecovery creates a recovery manager
func NewRecovery(wal *WAL) *Recovery {
	return &Recovery{wal: wal}
}

// Recover replays every committed transaction in commit order
func (r *Recovery) Recover(replay ReplayFunc) error {
	_, err := r.RecoverWithStats(replay)
	return err
}

// Transaction is a group of journal entries sharing a TxnID
type Transaction struct {
	TxnID     uint64
	StartLSN  uint64
	CommitLSN uint64
	Entries   []*Entry
	Committed bool
}

// groupByTransaction groups entries by transaction and orders committed
// transactions by their commit marker
func groupByTransaction(entries []*Entry) []*Transaction {
	txnMap := make(map[uint64]*Transaction)
	var txnList []*Transaction

	for _, entry := range entries {
		txn, exists := txnMap[entry.TxnID]
		if !exists {
			txn = &Transaction{
				TxnID:    entry.TxnID,
				StartLSN: entry.LSN,
			}
			txnMap[entry.TxnID] = txn
			txnList = append(txnList, txn)
		}

		if entry.Type == RecordCommit {
			txn.Committed = true
			txn.CommitLSN = entry.LSN
		} else {
			txn.Entries = append(txn.Entries, entry)
		}
	}

	sort.SliceStable(txnList, func(i, j int) bool {
		return txnList[i].StartLSN < txnList[j].StartLSN
	})
	return txnList
}

// RecoveryStats summarizes a replay
type RecoveryStats struct {
	TotalEntries    int
	CommittedTxns   int
	UncommittedTxns int
	ReplayedRecords int
	SkippedEntries  int
	TornTails       int
	TruncatedBytes  int64
	LastLSN         uint64
}

// RecoverWithStats performs recovery and returns statistics
func (r *Recovery) RecoverWithStats(replay ReplayFunc) (*RecoveryStats, error) {
	stats := &RecoveryStats{}

	// Open already decoded the journal; reuse that pass when it is still current
	res := r.wal.takeOpened()
	if res == nil {
		files, err := r.wal.Segments()
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return stats, nil
		}
		if res, err = scan(files); err != nil {
			return nil, fmt.Errorf("read journal: %w", err)
		}
	}
	entries := res.entries
	stats.TotalEntries = len(entries)
	stats.SkippedEntries = res.skipped
	stats.TornTails = len(res.torn)
	stats.TruncatedBytes = res.truncated

	for _, txn := range groupByTransaction(entries) {
		if !txn.Committed {
			stats.UncommittedTxns++
			continue
		}
		stats.CommittedTxns++

		for _, entry := range txn.Entries {
			if err := replay(entry); err != nil {
				return stats, fmt.Errorf("replay failed at LSN %d: %w", entry.LSN, err)
			}
			stats.ReplayedRecords++
			stats.LastLSN = entry.LSN
		}
	}

	return stats, nil
}
