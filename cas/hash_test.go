package cas

import "testing"

func TestHashDeterministic(t *testing.T) {
	a := Of([]byte("hello"))
	b := Of([]byte("hello"))
	if a != b {
		t.Errorf("Expected identical hashes for identical content, got %s and %s", a, b)
	}

	c := Of([]byte("hello!"))
	if a == c {
		t.Error("Expected different hashes for different content")
	}
}

func TestHashRoundTrip(t *testing.T) {
	h := Of([]byte("round trip"))

	s := h.String()
	if len(s) != StringLen {
		t.Fatalf("Expected %d character string form, got %d (%q)", StringLen, len(s), s)
	}

	parsed, err := Parse(s)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if parsed != h {
		t.Errorf("Expected %s after round trip, got %s", h, parsed)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	if _, err := Parse("too-short"); err == nil {
		t.Error("Expected error for short input")
	}
	if _, err := Parse("zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz"); err == nil {
		t.Error("Expected error for characters outside the alphabet")
	}
}

func TestZeroHash(t *testing.T) {
	var h Hash
	if !h.IsZero() {
		t.Error("Expected zero value to be the zero hash")
	}
	if Of([]byte{}).IsZero() {
		t.Error("Expected hash of empty content to differ from the zero hash")
	}
}
