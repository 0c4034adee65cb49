// Package keylock provides the reference key-lock manager the script runner
// acquires all declared keys through. Acquisition order is canonicalized by
// key name, so two scripts declaring overlapping key sets in different
// argument orders can never deadlock against each other.
package keylock

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/lodisdb/lodis/command"
)

// Manager hands out per-key exclusive locks. Lock identity is scoped to the
// session's selected database, matching the store's keyspace isolation.
//
// LockShared is honored as exclusive: the scripting path only ever takes
// exclusive locks, and a stricter grant is always safe.
type Manager struct {
	keys *keyTable
}

// New creates an empty lock manager.
func New() *Manager {
	return &Manager{keys: newKeyTable()}
}

// LockAll implements command.LockManager. It acquires args[i] for each i in
// keyIndices, in canonical (sorted, deduplicated) order, and returns a
// release function covering everything acquired. If the context expires
// mid-acquisition, all partial acquisitions are released before returning.
func (m *Manager) LockAll(ctx context.Context, sess *command.Session, args []string, keyIndices []int, mode command.LockMode) (func(), error) {
	db := 0
	if sess != nil {
		db = sess.DB
	}

	names := make([]string, 0, len(keyIndices))
	seen := make(map[string]struct{}, len(keyIndices))
	for _, idx := range keyIndices {
		if idx < 0 || idx >= len(args) {
			return nil, fmt.Errorf("keylock: key index %d out of range", idx)
		}
		name := strconv.Itoa(db) + "/" + args[idx]
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Strings(names)

	acquired := make([]string, 0, len(names))
	release := func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			m.keys.unlock(acquired[i])
		}
	}

	for _, name := range names {
		if err := m.keys.lock(ctx, name); err != nil {
			release()
			return nil, fmt.Errorf("keylock: acquiring %q: %w", name, err)
		}
		acquired = append(acquired, name)
	}
	return release, nil
}
