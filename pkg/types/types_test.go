package types

import "testing"

func TestByteKey_Compare_LessThan(t *testing.T) {
	k := ByteKey("apple")
	if result := k.Compare(ByteKey("banana")); result != -1 {
		t.Errorf("Expected -1 for 'apple' < 'banana', got %d", result)
	}
}

func TestByteKey_Compare_GreaterThan(t *testing.T) {
	k := ByteKey("cherry")
	if result := k.Compare(ByteKey("banana")); result != 1 {
		t.Errorf("Expected 1 for 'cherry' > 'banana', got %d", result)
	}
}

func TestByteKey_Compare_Equal(t *testing.T) {
	k := ByteKey("test")
	if result := k.Compare(ByteKey("test")); result != 0 {
		t.Errorf("Expected 0 for 'test' == 'test', got %d", result)
	}
}

func TestByteKey_Compare_CaseSensitive(t *testing.T) {
	k := ByteKey("Apple")
	if result := k.Compare(ByteKey("apple")); result != -1 {
		t.Errorf("Expected -1 for 'Apple' < 'apple', got %d", result)
	}
}

func TestByteKey_Compare_EmptyString(t *testing.T) {
	k := ByteKey("")
	if result := k.Compare(ByteKey("a")); result != -1 {
		t.Errorf("Expected -1 for '' < 'a', got %d", result)
	}
}

func TestByteKey_String(t *testing.T) {
	k := ByteKey("hello")
	if s := k.String(); s != "hello" {
		t.Errorf("Expected %q, got %q", "hello", s)
	}
}
