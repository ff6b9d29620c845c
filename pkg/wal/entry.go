package wal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"time"
)

// RecordType identifies what a journal entry carries
type RecordType byte

const (
	// RecordElement carries a newly stored element
	RecordElement RecordType = 1

	// RecordAnnotation carries a new annotation and its opening mapping
	RecordAnnotation RecordType = 2

	// RecordValidity closes an element annotation mapping
	RecordValidity RecordType = 3

	// RecordVersion carries a newly allocated version
	RecordVersion RecordType = 4

	// RecordSwitch repoints the current version
	RecordSwitch RecordType = 5

	// RecordCommit marks the end of a transaction
	RecordCommit RecordType = 6
)

var recordNames = map[RecordType]string{
	RecordElement:    "ELEMENT",
	RecordAnnotation: "ANNOTATION",
	RecordValidity:   "VALIDITY",
	RecordVersion:    "VERSION",
	RecordSwitch:     "SWITCH",
	RecordCommit:     "COMMIT",
}

func (t RecordType) String() string {
	if name, ok := recordNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

const (
	// EntryHeaderSize is the fixed size of the entry header
	// Layout: LSN(8) + TxnID(8) + Type(1) + Reserved(7) + KeyLen(4) + ValLen(4) + Timestamp(8)
	EntryHeaderSize = 40

	// MaxRecordSize bounds key+value so a damaged header cannot ask for gigabytes
	MaxRecordSize = 16 << 20
)

// Entry is a single journal record
type Entry struct {
	LSN       uint64     // Log Sequence Number (monotonically increasing)
	TxnID     uint64     // Transaction the entry belongs to
	Type      RecordType // What the entry carries
	Key       []byte     // Record identifier
	Value     []byte     // Encoded record payload
	Timestamp time.Time
}

// Encode serializes the entry with a trailing CRC32
// Format: [Header(40)] [Key] [Value] [CRC32(4)]
func (e *Entry) Encode() []byte {
	keyLen := len(e.Key)
	valLen := len(e.Value)
	buf := make([]byte, e.Size())

	binary.LittleEndian.PutUint64(buf[0:8], e.LSN)
	binary.LittleEndian.PutUint64(buf[8:16], e.TxnID)
	buf[16] = byte(e.Type)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(keyLen))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(valLen))
	binary.LittleEndian.PutUint64(buf[32:40], uint64(e.Timestamp.UnixNano()))

	offset := EntryHeaderSize
	copy(buf[offset:], e.Key)
	offset += keyLen
	copy(buf[offset:], e.Value)
	offset += valLen

	crc := crc32.ChecksumIEEE(buf[:offset])
	binary.LittleEndian.PutUint32(buf[offset:offset+4], crc)

	return buf
}

// bodyLen returns the number of bytes following a header, CRC included
func bodyLen(header []byte) (int, error) {
	keyLen := binary.LittleEndian.Uint32(header[24:28])
	valLen := binary.LittleEndian.Uint32(header[28:32])
	if uint64(keyLen)+uint64(valLen) > MaxRecordSize {
		return 0, ErrCorrupted
	}
	return int(keyLen) + int(valLen) + 4, nil
}

// DecodeEntry deserializes a journal entry
func DecodeEntry(data []byte) (*Entry, error) {
	if len(data) < EntryHeaderSize+4 {
		return nil, ErrTruncated
	}

	n, err := bodyLen(data[:EntryHeaderSize])
	if err != nil {
		return nil, err
	}
	if len(data) < EntryHeaderSize+n {
		return nil, ErrTruncated
	}
	data = data[:EntryHeaderSize+n]

	end := len(data) - 4
	if binary.LittleEndian.Uint32(data[end:]) != crc32.ChecksumIEEE(data[:end]) {
		return nil, ErrCorrupted
	}

	entry := &Entry{
		LSN:       binary.LittleEndian.Uint64(data[0:8]),
		TxnID:     binary.LittleEndian.Uint64(data[8:16]),
		Type:      RecordType(data[16]),
		Timestamp: time.Unix(0, int64(binary.LittleEndian.Uint64(data[32:40]))),
	}
	if _, ok := recordNames[entry.Type]; !ok {
		return nil, fmt.Errorf("%w: record type %d", ErrInvalidEntry, data[16])
	}

	keyLen := int(binary.LittleEndian.Uint32(data[24:28]))
	offset := EntryHeaderSize
	if keyLen > 0 {
		entry.Key = append([]byte(nil), data[offset:offset+keyLen]...)
		offset += keyLen
	}
	if offset < end {
		entry.Value = append([]byte(nil), data[offset:end]...)
	}

	return entry, nil
}

// Size returns the encoded size of the entry
func (e *Entry) Size() int {
	return EntryHeaderSize + len(e.Key) + len(e.Value) + 4
}

func (e *Entry) String() string {
	return fmt.Sprintf("WAL[LSN=%d TxnID=%d Type=%s Key=%q ValLen=%d]",
		e.LSN, e.TxnID, e.Type, e.Key, len(e.Value))
}
