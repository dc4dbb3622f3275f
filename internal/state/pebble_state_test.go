package state

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPebbleStore_ApplySeqRulesAndGet(t *testing.T) {
	dir := t.TempDir()
	st, err := NewPebbleStore(dir)
	if err != nil {
		t.Fatalf("pebble open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	applied, s, err := st.Apply("u1", 100.25, 1)
	if err != nil {
		t.Fatalf("apply err: %v", err)
	}
	if !applied || s.LastSeq != 1 || s.Total != 100.25 || s.Count != 1 {
		t.Fatalf("unexpected after first apply: %+v applied=%v", s, applied)
	}

	applied, s, err = st.Apply("u1", 100.25, 1)
	if err != nil {
		t.Fatalf("apply err: %v", err)
	}
	if applied || s.Total != 100.25 {
		t.Fatalf("should skip same-seq; got %+v applied=%v", s, applied)
	}

	applied, s, err = st.Apply("u1", 299.75, 4)
	if err != nil {
		t.Fatalf("apply err: %v", err)
	}
	if !applied || s.LastSeq != 4 || s.Total != 400 || s.Count != 2 {
		t.Fatalf("unexpected after gap: %+v applied=%v", s, applied)
	}

	got, ok := st.Get("u1")
	if !ok {
		t.Fatalf("missing key")
	}
	if got != s {
		t.Fatalf("get mismatch: %v vs %v", got, s)
	}
}

func TestPebbleStore_RangeAndRemoveOnClose(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run-1")
	st, err := NewPebbleStore(dir, RemoveOnClose())
	if err != nil {
		t.Fatalf("pebble open: %v", err)
	}
	if _, _, err := st.Apply("b", 2, 1); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, _, err := st.Apply("a", 1, 2); err != nil {
		t.Fatalf("apply: %v", err)
	}

	var keys []string
	if err := st.Range(func(key string, _ LifetimeState) error { keys = append(keys, key); return nil }); err != nil {
		t.Fatalf("range err: %v", err)
	}
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Fatalf("range keys=%v", keys)
	}

	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("store dir should be removed, stat err=%v", err)
	}
}
