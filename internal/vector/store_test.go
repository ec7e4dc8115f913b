package vector

import (
	"path/filepath"
	"testing"
)

func TestStore_PutGetItems(t *testing.T) {
	s, err := NewStore(0)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Put([]string{"a", "b"}, [][]float32{{1, 0, 0}, {0, 1, 0}}); err != nil {
		t.Fatal(err)
	}
	if s.Dimensions() != 3 {
		t.Errorf("Dimensions = %d, want 3", s.Dimensions())
	}
	if err := s.Put([]string{"a"}, [][]float32{{0, 0, 1}}); err != nil {
		t.Fatal(err)
	}
	if s.Size() != 2 {
		t.Errorf("Size = %d, want 2 after overwrite", s.Size())
	}
	v, ok := s.Get("a")
	if !ok || v[2] != 1 {
		t.Errorf("Get(a) = %v, %v", v, ok)
	}
	items := s.Items()
	if len(items) != 2 || items[0].ID != "a" || items[1].ID != "b" {
		t.Errorf("Items order: %+v", items)
	}
}

func TestStore_DimensionMismatch(t *testing.T) {
	s, _ := NewStore(2)
	if err := s.Put([]string{"x"}, [][]float32{{1, 2, 3}}); err == nil {
		t.Error("expected dimension mismatch error")
	}
	if err := s.Put([]string{"x", "y"}, [][]float32{{1, 2}}); err == nil {
		t.Error("expected length mismatch error")
	}
}

func TestStore_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap", "vectors.bin")
	s, _ := NewStore(0)
	_ = s.Put([]string{"poi-1", "poi-22"}, [][]float32{{0.5, -0.25}, {1, 2}})
	if err := s.Save(path); err != nil {
		t.Fatal(err)
	}
	loaded, _ := NewStore(0)
	if err := loaded.Load(path); err != nil {
		t.Fatal(err)
	}
	if loaded.Size() != 2 || loaded.Dimensions() != 2 {
		t.Fatalf("loaded size=%d dim=%d", loaded.Size(), loaded.Dimensions())
	}
	v, ok := loaded.Get("poi-22")
	if !ok || v[0] != 1 || v[1] != 2 {
		t.Errorf("Get(poi-22) = %v, %v", v, ok)
	}
	items := loaded.Items()
	if items[0].ID != "poi-1" || items[0].Vector[1] != -0.25 {
		t.Errorf("items[0] = %+v", items[0])
	}

	wrong, _ := NewStore(3)
	if err := wrong.Load(path); err == nil {
		t.Error("expected dimension mismatch on load")
	}
}

func TestStore_LoadMissing(t *testing.T) {
	s, _ := NewStore(0)
	if err := s.Load(filepath.Join(t.TempDir(), "nope.bin")); err == nil {
		t.Error("expected error for missing snapshot")
	}
}
