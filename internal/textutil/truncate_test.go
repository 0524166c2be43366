package textutil

import "testing"

func TestTruncate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		n    int
		want string
	}{
		{in: "héllo", n: 4, want: "héll"},
		{in: "hi", n: 500, want: "hi"},
		{in: "hi", n: 0, want: ""},
		{in: "日本語", n: 2, want: "日本"},
		{in: "keep", n: -1, want: "keep"},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
