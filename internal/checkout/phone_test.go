package checkout

import "testing"

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"0823456789", "0823456789", true},
		{"082 345 6789", "0823456789", true},
		{"082-345-6789", "0823456789", true},
		{"+27823456789", "0823456789", true},
		{"+27 82 345 6789", "0823456789", true},
		{"27823456789", "0823456789", true},
		{"0114567890", "0114567890", true}, // geographic number
		{"082345678", "", false},           // too short
		{"08234567890", "", false},         // too long
		{"1823456789", "", false},          // no leading zero
		{"0923456789", "", false},          // 09 range not allocated
		{"082345678a", "", false},
		{"+44823456789", "", false}, // not South African
		{"", "", false},
	}
	for _, c := range cases {
		got, ok := NormalizePhone(c.in)
		if ok != c.ok || got != c.want {
			t.Errorf("NormalizePhone(%q) = (%q, %v), want (%q, %v)", c.in, got, ok, c.want, c.ok)
		}
	}
}
