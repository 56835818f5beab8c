package dataconfig

import "testing"

func TestDefaultCompare(t *testing.T) {
	if DefaultCompare([]byte("a"), []byte("b")) >= 0 {
		t.Fatalf("expected 'a' < 'b'")
	}
	if DefaultCompare([]byte("a"), []byte("a")) != 0 {
		t.Fatalf("expected 'a' == 'a'")
	}
}

func TestDefaultMerge(t *testing.T) {
	got, err := DefaultMerge([]byte("k"), []byte("old"), []byte("new"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "new" {
		t.Fatalf("got %q, want %q", got, "new")
	}
}

func TestSumUint64Merge(t *testing.T) {
	existing := EncodeUint64(10)
	delta := EncodeUint64(5)
	sum, err := SumUint64Merge([]byte("k"), existing, delta)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := DecodeUint64(sum); got != 15 {
		t.Fatalf("got %d, want 15", got)
	}
}

func TestSumUint64MergeNoExisting(t *testing.T) {
	sum, err := SumUint64Merge([]byte("k"), nil, EncodeUint64(3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := DecodeUint64(sum); got != 3 {
		t.Fatalf("got %d, want 3", got)
	}
}
