// Package idx generates the ULID identifiers used for authorization
// sessions, popup windows and request logs. ULIDs sort by creation time, so
// the oldest of a set of ids is also the smallest.
package idx

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type ID string

// Zero is the unset ID.
const Zero ID = ""

// entropy is monotonic so ids minted within one millisecond still increase.
var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// New returns an ID for the current time.
func New() ID {
	return NewAt(time.Now())
}

// NewAt returns an ID stamped with t.
func NewAt(t time.Time) ID {
	mu.Lock()
	defer mu.Unlock()
	return ID(ulid.MustNew(ulid.Timestamp(t), entropy).String())
}

func (id ID) IsZero() bool   { return id == Zero }
func (id ID) String() string { return string(id) }

// Compare orders ids by creation: -1 if a is older than b, +1 if newer.
func Compare(a, b ID) int {
	return strings.Compare(string(a), string(b))
}
