// ABOUTME: Durable Store that journals every mutation to a write-ahead log
// ABOUTME: Replays committed records on open to rebuild the in-memory image

package store

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nainya/texttree/pkg/wal"
)

// JournalStore keeps the working set in a MemoryStore and appends every
// accepted mutation to a journal as one committed transaction.
type JournalStore struct {
	mu     sync.Mutex
	mem    *MemoryStore
	wal    *wal.WAL
	log    zerolog.Logger
	failed error
	stats  *wal.RecoveryStats
}

// OpenJournalStore opens (or creates) the journal at path and replays it
func OpenJournalStore(path string, log zerolog.Logger) (*JournalStore, error) {
	w := &wal.WAL{Path: path}
	if err := w.Open(); err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}

	js := &JournalStore{
		mem: NewMemoryStore(),
		wal: w,
		log: log,
	}

	stats, err := wal.NewRecovery(w).RecoverWithStats(js.replay)
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("replay journal %s: %w", path, err)
	}
	js.stats = stats

	if stats.TruncatedBytes > 0 {
		log.Warn().
			Int64("truncated_bytes", stats.TruncatedBytes).
			Msg("Journal ended in a partial entry, cut back to the last whole entry")
	}
	if stats.UncommittedTxns > 0 || stats.SkippedEntries > 0 || stats.TornTails > 0 {
		log.Warn().
			Int("uncommitted_txns", stats.UncommittedTxns).
			Int("skipped_entries", stats.SkippedEntries).
			Int("torn_tails", stats.TornTails).
			Msg("Journal contained incomplete records")
	}
	cur, _ := js.mem.CurrentVersion()
	log.Info().
		Str("path", path).
		Int("committed_txns", stats.CommittedTxns).
		Int("records", stats.ReplayedRecords).
		Int("current_version", cur).
		Msg("Journal replayed")

	return js, nil
}

// RecoveryStats returns what was replayed when the store was opened
func (j *JournalStore) RecoveryStats() wal.RecoveryStats {
	return *j.stats
}

// Close closes the underlying journal
func (j *JournalStore) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.wal.Close()
}

func (j *JournalStore) replay(e *wal.Entry) error {
	rec, err := UnmarshalRecord(e.Value)
	if err != nil {
		return fmt.Errorf("decode %s record %q: %w", e.Type, e.Key, err)
	}

	switch e.Type {
	case wal.RecordElement:
		el, err := ElementFromStruct(rec)
		if err != nil {
			return err
		}
		_, err = j.mem.AddElement(el)
		return err

	case wal.RecordAnnotation:
		ann, err := AnnotationFromStruct(rec.GetFields()["annotation"].GetStructValue())
		if err != nil {
			return err
		}
		return j.mem.restoreAnnotation(ann, MappingFromStruct(rec.GetFields()["mapping"].GetStructValue()))

	case wal.RecordValidity:
		ea := MappingFromStruct(rec)
		if ea.ValidThrough.IsOpen() {
			return fmt.Errorf("%w: validity record without a closing version", ErrInvalidArgument)
		}
		return j.mem.UpdateElementAnnotationValidity(ea.ElementID, ea.AnnotationID, ea.ValidThrough.Number())

	case wal.RecordVersion:
		v, err := VersionFromStruct(rec)
		if err != nil {
			return err
		}
		return j.mem.restoreVersion(v)

	case wal.RecordSwitch:
		return j.mem.SwitchCurrentVersion(int(rec.GetFields()["version"].GetNumberValue()))
	}

	return fmt.Errorf("%w: %s", wal.ErrInvalidEntry, e.Type)
}

type journalRecord struct {
	typ wal.RecordType
	key string
	rec *structpb.Struct
}

// commit appends records as one transaction; j.mu must be held
func (j *JournalStore) commit(records ...journalRecord) error {
	txn := j.wal.Begin()
	for _, r := range records {
		data, err := MarshalRecord(r.rec)
		if err != nil {
			txn.Abort()
			return j.fail(err)
		}
		if err := txn.Append(r.typ, []byte(r.key), data); err != nil {
			txn.Abort()
			return j.fail(err)
		}
	}
	if err := txn.Commit(); err != nil {
		return j.fail(err)
	}
	return nil
}

// fail marks the store unusable: the memory image is ahead of the journal
func (j *JournalStore) fail(err error) error {
	j.failed = fmt.Errorf("%w: %v", ErrJournalFailed, err)
	j.log.Error().Err(err).Msg("Journal write failed, store is now read-only")
	return j.failed
}

// AddElement stores and journals a new element
func (j *JournalStore) AddElement(el Element) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.failed != nil {
		return "", j.failed
	}
	id, err := j.mem.AddElement(el)
	if err != nil {
		return "", err
	}
	stored, _ := j.mem.GetElement(id)
	if err := j.commit(journalRecord{wal.RecordElement, id, ElementToStruct(stored)}); err != nil {
		return "", err
	}
	return id, nil
}

// AddElements stores and journals several elements in one transaction
func (j *JournalStore) AddElements(els []Element) ([]string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.failed != nil {
		return nil, j.failed
	}
	ids, err := j.mem.AddElements(els)
	if err != nil {
		return nil, err
	}
	records := make([]journalRecord, 0, len(ids))
	for _, id := range ids {
		stored, _ := j.mem.GetElement(id)
		records = append(records, journalRecord{wal.RecordElement, id, ElementToStruct(stored)})
	}
	if err := j.commit(records...); err != nil {
		return nil, err
	}
	return ids, nil
}

// AddAnnotation stores and journals an annotation with its opening mapping
func (j *JournalStore) AddAnnotation(ann Annotation, targetID string) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.failed != nil {
		return "", j.failed
	}
	id, err := j.mem.AddAnnotation(ann, targetID)
	if err != nil {
		return "", err
	}
	cur, _ := j.mem.CurrentVersion()
	rec := &structpb.Struct{Fields: map[string]*structpb.Value{
		"annotation": structpb.NewStructValue(AnnotationToStruct(ann)),
		"mapping": structpb.NewStructValue(MappingToStruct(ElementAnnotation{
			ElementID:    targetID,
			AnnotationID: id,
			ValidFrom:    cur,
			ValidThrough: Open(),
		})),
	}}
	if err := j.commit(journalRecord{wal.RecordAnnotation, id, rec}); err != nil {
		return "", err
	}
	return id, nil
}

// UpdateElementAnnotationValidity closes and journals a mapping
func (j *JournalStore) UpdateElementAnnotationValidity(elementID, annotationID string, through int) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.failed != nil {
		return j.failed
	}
	if err := j.mem.UpdateElementAnnotationValidity(elementID, annotationID, through); err != nil {
		return err
	}
	rec := MappingToStruct(ElementAnnotation{
		ElementID:    elementID,
		AnnotationID: annotationID,
		ValidThrough: Closed(through),
	})
	return j.commit(journalRecord{wal.RecordValidity, elementID + "/" + annotationID, rec})
}

// AddVersion allocates and journals the next version
func (j *JournalStore) AddVersion(rootID string) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.failed != nil {
		return 0, j.failed
	}
	n, err := j.mem.AddVersion(rootID)
	if err != nil {
		return 0, err
	}
	v, _ := j.mem.GetVersion(n)
	if err := j.commit(journalRecord{wal.RecordVersion, strconv.Itoa(n), VersionToStruct(v)}); err != nil {
		return 0, err
	}
	return n, nil
}

// SwitchCurrentVersion repoints and journals the current version
func (j *JournalStore) SwitchCurrentVersion(number int) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.failed != nil {
		return j.failed
	}
	if err := j.mem.SwitchCurrentVersion(number); err != nil {
		return err
	}
	rec := &structpb.Struct{Fields: map[string]*structpb.Value{
		"version": structpb.NewNumberValue(float64(number)),
	}}
	return j.commit(journalRecord{wal.RecordSwitch, strconv.Itoa(number), rec})
}

func (j *JournalStore) GetElement(id string) (Element, bool) { return j.mem.GetElement(id) }

func (j *JournalStore) Elements() []Element { return j.mem.Elements() }

func (j *JournalStore) GetAnnotation(id string) (Annotation, bool) { return j.mem.GetAnnotation(id) }

func (j *JournalStore) CurrentVersion() (int, bool) { return j.mem.CurrentVersion() }

func (j *JournalStore) LatestVersion() int { return j.mem.LatestVersion() }

func (j *JournalStore) GetVersion(number int) (Version, bool) { return j.mem.GetVersion(number) }

// Versions returns every version ordered by number
func (j *JournalStore) Versions() []Version { return j.mem.Versions() }

func (j *JournalStore) Annotations() []Annotation { return j.mem.Annotations() }

func (j *JournalStore) ElementAnnotations() []ElementAnnotation { return j.mem.ElementAnnotations() }

var _ Store = (*JournalStore)(nil)
