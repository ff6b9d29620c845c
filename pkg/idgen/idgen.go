// ABOUTME: Identifier generators for elements and annotations
// ABOUTME: Wraps google/uuid and segmentio/ksuid behind one func type

package idgen

import (
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
)

// Generator returns a fresh, collision-free identifier on each call
type Generator func() string

// UUID generates random (v4) UUIDs
func UUID() Generator {
	return uuid.NewString
}

// KSUID generates K-sortable ids, so identifiers created later sort later
func KSUID() Generator {
	return func() string { return ksuid.New().String() }
}

// Sequence generates prefix1, prefix2, ... and is meant for tests and examples
func Sequence(prefix string) Generator {
	var n atomic.Uint64
	return func() string {
		return prefix + strconv.FormatUint(n.Add(1), 10)
	}
}

// ByName returns the generator registered under name ("uuid" or "ksuid")
func ByName(name string) (Generator, error) {
	switch name {
	case "", "uuid":
		return UUID(), nil
	case "ksuid":
		return KSUID(), nil
	}
	return nil, fmt.Errorf("unknown id generator %q", name)
}
