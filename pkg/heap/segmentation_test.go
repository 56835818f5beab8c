package heap

import (
	"os"
	"path/filepath"
	"testing"
)

func TestHeapManager_Rotation(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "heap_rotation_test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	basePath := filepath.Join(tmpDir, "test_heap")

	hm, err := NewHeapManager(basePath)
	if err != nil {
		t.Fatal(err)
	}

	// Force small segment size for testing.
	hm.maxSegmentSize = 100 // Very small, rotation should happen quickly.

	defer hm.Close()

	// 1. Write data smaller than limit.
	doc1 := []byte("small doc 1") // ~11 bytes + 21-byte header = 32 bytes.
	off1, err := hm.Write(doc1, 1)
	if err != nil {
		t.Fatal(err)
	}

	if len(hm.segments) != 1 {
		t.Errorf("Expected 1 segment, got %d", len(hm.segments))
	}

	// 2. Write data to exceed limit.
	doc2 := []byte("small doc 2")
	off2, err := hm.Write(doc2, 2)
	if err != nil {
		t.Fatal(err)
	}
	_ = off2 // Ignore for now, focused on rotation.

	doc3 := []byte("small doc 3 causes rotation")
	off3, err := hm.Write(doc3, 3)
	if err != nil {
		t.Fatal(err)
	}

	if len(hm.segments) != 2 {
		t.Errorf("Expected 2 segments after rotation, got %d", len(hm.segments))
	}

	// Verify files exist.
	files, _ := filepath.Glob(basePath + "_*.data")
	if len(files) != 2 {
		t.Errorf("Expected 2 physical files, got %d: %v", len(files), files)
	}

	// Verify reading from both segments.
	d1, _, err := hm.Read(off1)
	if err != nil {
		t.Error(err)
	}
	if string(d1) != string(doc1) {
		t.Errorf("Doc1 mismatch")
	}

	d3, _, err := hm.Read(off3)
	if err != nil {
		t.Error(err)
	}
	if string(d3) != string(doc3) {
		t.Errorf("Doc3 mismatch")
	}
}

func TestHeapManager_Rotation_Recovery(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "heap_rotation_rec_test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	basePath := filepath.Join(tmpDir, "test_heap")

	hm, err := NewHeapManager(basePath)
	if err != nil {
		t.Fatal(err)
	}
	hm.maxSegmentSize = 60 // Very small.

	// Write enough to create multiple segments. Header=14, EntryHeader=21,
	// overhead per 1-byte doc = 22 bytes.
	id1, _ := hm.Write([]byte("A"), 1)
	id2, _ := hm.Write([]byte("B"), 2)
	id3, _ := hm.Write([]byte("C"), 3)

	if len(hm.segments) < 2 {
		t.Errorf("Expected at least 2 segments, got %d", len(hm.segments))
	}

	hm.Close()

	// Reopen.
	hm2, err := NewHeapManager(basePath)
	if err != nil {
		t.Fatal(err)
	}
	defer hm2.Close()

	if len(hm2.segments) != len(hm.segments) {
		t.Errorf("Expected %d segments after recovery, got %d", len(hm.segments), len(hm2.segments))
	}

	// Read all.
	d1, _, err := hm2.Read(id1)
	if string(d1) != "A" {
		t.Error("Failed to read A")
	}
	d2, _, err := hm2.Read(id2)
	if string(d2) != "B" {
		t.Error("Failed to read B")
	}
	d3, _, err := hm2.Read(id3)
	if string(d3) != "C" {
		t.Error("Failed to read C")
	}

	// Write new data.
	_, err = hm2.Write([]byte("D"), 4)
	if err != nil {
		t.Fatal(err)
	}
}
