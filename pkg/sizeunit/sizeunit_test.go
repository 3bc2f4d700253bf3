package sizeunit

import "testing"

func TestParseUnits(t *testing.T) {
	cases := map[string]int64{
		"1024":  1024,
		"512K":  512 << 10,
		"4M":    4 << 20,
		"2G":    2 << 30,
		"1g":    1 << 30,
	}
	for in, want := range cases {
		got, err := Parse(in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("Parse(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse("not-a-size"); err == nil {
		t.Fatalf("expected error for garbage input")
	}
}
