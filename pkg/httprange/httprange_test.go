package httprange

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		size    int64
		want    Range
		wantErr bool
	}{
		{
			name:   "first byte only",
			header: "bytes=0-0",
			size:   1000,
			want:   Range{Start: 0, End: 0},
		},
		{
			name:   "explicit range",
			header: "bytes=100-199",
			size:   1000,
			want:   Range{Start: 100, End: 199},
		},
		{
			name:   "open ended",
			header: "bytes=500-",
			size:   1000,
			want:   Range{Start: 500, End: 999},
		},
		{
			name:   "suffix range",
			header: "bytes=-100",
			size:   1000,
			want:   Range{Start: 900, End: 999},
		},
		{
			name:   "suffix longer than resource",
			header: "bytes=-5000",
			size:   1000,
			want:   Range{Start: 0, End: 999},
		},
		{
			name:   "end clamped to size",
			header: "bytes=900-2000",
			size:   1000,
			want:   Range{Start: 900, End: 999},
		},
		{
			name:   "multi-range uses first spec",
			header: "bytes=0-9,100-199",
			size:   1000,
			want:   Range{Start: 0, End: 9},
		},
		{
			name:    "start past end of resource",
			header:  "bytes=2000-3000",
			size:    1000,
			wantErr: true,
		},
		{
			name:    "start greater than end",
			header:  "bytes=200-100",
			size:    1000,
			wantErr: true,
		},
		{
			name:    "missing bytes prefix",
			header:  "items=0-10",
			size:    1000,
			wantErr: true,
		},
		{
			name:    "garbage",
			header:  "bytes=abc-def",
			size:    1000,
			wantErr: true,
		},
		{
			name:    "empty suffix",
			header:  "bytes=-",
			size:    1000,
			wantErr: true,
		},
		{
			name:    "zero suffix",
			header:  "bytes=-0",
			size:    1000,
			wantErr: true,
		},
		{
			name:    "empty resource",
			header:  "bytes=0-0",
			size:    0,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.header, tt.size)
			if tt.wantErr {
				if !errors.Is(err, ErrNotSatisfiable) {
					t.Errorf("Parse(%q, %d) err = %v, want ErrNotSatisfiable", tt.header, tt.size, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q, %d) unexpected error: %v", tt.header, tt.size, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q, %d) = %+v, want %+v", tt.header, tt.size, got, tt.want)
			}
		})
	}
}

func TestLength(t *testing.T) {
	r := Range{Start: 0, End: 0}
	if r.Length() != 1 {
		t.Errorf("Length() = %d, want 1", r.Length())
	}
}

func TestContentRange(t *testing.T) {
	r := Range{Start: 0, End: 0}
	if got := r.ContentRange(1000); got != "bytes 0-0/1000" {
		t.Errorf("ContentRange(1000) = %q, want %q", got, "bytes 0-0/1000")
	}
	if got := Unsatisfiable(1000); got != "bytes */1000" {
		t.Errorf("Unsatisfiable(1000) = %q, want %q", got, "bytes */1000")
	}
}
