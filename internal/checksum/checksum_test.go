package checksum

import "testing"

func TestSum(t *testing.T) {
	a := Sum([]byte("[a](a.md)"))
	if a == "" {
		t.Fatal("empty checksum")
	}
	if a != Sum([]byte("[a](a.md)")) {
		t.Error("checksum is not stable")
	}
	if a == Sum([]byte("[a](b.md)")) {
		t.Error("different content has the same checksum")
	}
}
