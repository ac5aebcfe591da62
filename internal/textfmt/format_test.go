package textfmt

import "testing"

func TestCommas(t *testing.T) {
	cases := []struct {
		v        float64
		decimals int
		want     string
	}{
		{1234567, 0, "1,234,567"},
		{1234.5, 2, "1,234.50"},
		{0.25, 2, "0.25"},
		{45000000, 0, "45,000,000"},
	}
	for _, tc := range cases {
		if got := Commas(tc.v, tc.decimals); got != tc.want {
			t.Fatalf("Commas(%v, %d) = %q, want %q", tc.v, tc.decimals, got, tc.want)
		}
	}
}

func TestIntegerAndTruncate(t *testing.T) {
	if got := Integer(1234567); got != "1,234,567" {
		t.Fatalf("unexpected integer format: %q", got)
	}
	if got := Truncate("0x1234567890abcdef", 10); got != "0x12345678..." {
		t.Fatalf("unexpected truncate: %q", got)
	}
	if got := Truncate("short", 10); got != "short" {
		t.Fatalf("short strings must be kept: %q", got)
	}
}
