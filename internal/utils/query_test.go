package utils

import "testing"

func TestIntInRange(t *testing.T) {
	cases := []struct {
		s           string
		def, lo, hi int
		want        int
	}{
		{"", 20, 1, 100, 20},
		{"42", 20, 1, 100, 42},
		{" 7 ", 20, 1, 100, 7},
		{"500", 20, 1, 100, 100},
		{"-3", 20, 1, 100, 1},
		{"x", 20, 1, 100, 20},
	}
	for _, tc := range cases {
		if got := IntInRange(tc.s, tc.def, tc.lo, tc.hi); got != tc.want {
			t.Fatalf("IntInRange(%q)=%d, want %d", tc.s, got, tc.want)
		}
	}
}
