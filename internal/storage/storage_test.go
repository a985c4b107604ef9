package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

type testData struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Value int    `json:"value"`
}

func TestStorage_PutAndGet(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	data := testData{ID: "123", Name: "test", Value: 42}

	if err := s.Put(ctx, []string{"items", "item1"}, data); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	var retrieved testData
	if err := s.Get(ctx, []string{"items", "item1"}, &retrieved); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if retrieved != data {
		t.Errorf("Data mismatch: got %+v, want %+v", retrieved, data)
	}
}

func TestStorage_GetNotFound(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	var data testData
	if err := s.Get(ctx, []string{"nonexistent", "item"}, &data); err != ErrNotFound {
		t.Errorf("Expected ErrNotFound, got: %v", err)
	}
}

func TestStorage_Delete(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	if err := s.Put(ctx, []string{"items", "item1"}, testData{ID: "1"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Delete(ctx, []string{"items", "item1"}); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	var data testData
	if err := s.Get(ctx, []string{"items", "item1"}, &data); err != ErrNotFound {
		t.Errorf("Expected ErrNotFound after delete, got: %v", err)
	}
}

func TestStorage_ScanOrder(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	// Insert out of order; Scan must visit keys sorted.
	keys := []string{"03", "01", "02"}
	for _, k := range keys {
		if err := s.Put(ctx, []string{"items", k}, testData{ID: k}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	var visited []string
	err := s.Scan(ctx, []string{"items"}, func(key string, data json.RawMessage) error {
		visited = append(visited, key)
		return nil
	})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	want := []string{"01", "02", "03"}
	if len(visited) != len(want) {
		t.Fatalf("Scan visited %d keys, want %d", len(visited), len(want))
	}
	for i := range want {
		if visited[i] != want[i] {
			t.Errorf("Scan order[%d] = %s, want %s", i, visited[i], want[i])
		}
	}
}

func TestStorage_ScanEmpty(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	err := s.Scan(ctx, []string{"empty"}, func(key string, data json.RawMessage) error {
		t.Errorf("unexpected key: %s", key)
		return nil
	})
	if err != nil {
		t.Fatalf("Scan of missing prefix failed: %v", err)
	}
}

func TestStorage_AtomicWrite(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	ctx := context.Background()

	if err := s.Put(ctx, []string{"items", "item1"}, testData{ID: "1"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// No temp files may survive a successful write.
	entries, err := os.ReadDir(filepath.Join(dir, "items"))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".json" {
			t.Errorf("leftover non-json file: %s", e.Name())
		}
	}
}

func TestStorage_ConcurrentPut(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("item%02d", i)
			if err := s.Put(ctx, []string{"items", key}, testData{ID: key, Value: i}); err != nil {
				t.Errorf("Put %s failed: %v", key, err)
			}
		}(i)
	}
	wg.Wait()

	keys, err := s.List(ctx, []string{"items"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(keys) != 20 {
		t.Errorf("List returned %d keys, want 20", len(keys))
	}
}
