package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cockroachdb/pebble"
)

// PebbleStore implements Store on a PebbleDB directory. It is meant as a
// per-run scratch store for batches too large to aggregate in memory.
type PebbleStore struct {
	db     *pebble.DB
	dir    string
	remove bool
}

// PebbleOption configures a PebbleStore.
type PebbleOption func(*PebbleStore)

// RemoveOnClose deletes the store directory when the store is closed.
func RemoveOnClose() PebbleOption {
	return func(p *PebbleStore) { p.remove = true }
}

func NewPebbleStore(dir string, opts ...PebbleOption) (*PebbleStore, error) {
	dir = filepath.Clean(dir)
	popts := &pebble.Options{
		MemTableSize:             64 << 20,
		MaxConcurrentCompactions: func() int { return 2 },
		L0CompactionThreshold:    4,
		L0StopWritesThreshold:    8,
		// scratch data; a crash means the batch is reprocessed from its source
		DisableWAL: true,
	}
	d, err := pebble.Open(dir, popts)
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	p := &PebbleStore{db: d, dir: dir}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

func (p *PebbleStore) Close() error {
	err := p.db.Close()
	if p.remove {
		if rerr := os.RemoveAll(p.dir); rerr != nil && err == nil {
			err = fmt.Errorf("pebble remove dir: %w", rerr)
		}
	}
	return err
}

func encodeLifetime(st LifetimeState) ([]byte, error) { return json.Marshal(st) }
func decodeLifetime(val []byte) (LifetimeState, error) {
	var st LifetimeState
	if err := json.Unmarshal(val, &st); err != nil {
		return LifetimeState{}, err
	}
	return st, nil
}

func (p *PebbleStore) Apply(key string, amount float64, seq int64) (bool, LifetimeState, error) {
	k := []byte(key)
	var cur LifetimeState
	v, closer, err := p.db.Get(k)
	if err == nil {
		cur, err = decodeLifetime(v)
		_ = closer.Close()
		if err != nil {
			return false, LifetimeState{}, fmt.Errorf("pebble decode %q: %w", key, err)
		}
	} else if !errors.Is(err, pebble.ErrNotFound) {
		return false, LifetimeState{}, fmt.Errorf("pebble get %q: %w", key, err)
	}
	if seq <= cur.LastSeq {
		return false, cur, nil
	}
	cur.Total += amount
	cur.Count++
	cur.LastSeq = seq
	b, err := encodeLifetime(cur)
	if err != nil {
		return false, LifetimeState{}, err
	}
	if err := p.db.Set(k, b, pebble.NoSync); err != nil {
		return false, LifetimeState{}, fmt.Errorf("pebble set %q: %w", key, err)
	}
	return true, cur, nil
}

func (p *PebbleStore) Get(key string) (LifetimeState, bool) {
	v, closer, err := p.db.Get([]byte(key))
	if err != nil {
		return LifetimeState{}, false
	}
	defer closer.Close()
	st, e := decodeLifetime(v)
	if e != nil {
		return LifetimeState{}, false
	}
	return st, true
}

// Range visits keys in ascending byte order.
func (p *PebbleStore) Range(fn func(key string, st LifetimeState) error) error {
	it, err := p.db.NewIter(nil)
	if err != nil {
		return fmt.Errorf("pebble iter: %w", err)
	}
	defer it.Close()
	for it.First(); it.Valid(); it.Next() {
		k := append([]byte(nil), it.Key()...)
		st, err := decodeLifetime(it.Value())
		if err != nil {
			return err
		}
		if err := fn(string(k), st); err != nil {
			return err
		}
	}
	return it.Error()
}
