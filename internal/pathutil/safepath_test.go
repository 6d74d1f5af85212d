package pathutil

import "testing"

func TestHasDotSegments(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"/", false},
		{"/work/", false},
		{"/work/fortress", false},
		{"/assets/site.v2.css", false},
		{"/..", true},
		{"/work/../etc", true},
		{"/./index.html", true},
		{"..", true},
		{"/work/..foo", false},
	}
	for _, tt := range tests {
		if got := HasDotSegments(tt.in); got != tt.want {
			t.Errorf("HasDotSegments(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestUnsafe(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"/contact/", false},
		{"/a\x00b", true},
		{`/work\..\x`, true},
		{"/work/../x", true},
	}
	for _, tt := range tests {
		if got := Unsafe(tt.in); got != tt.want {
			t.Errorf("Unsafe(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
