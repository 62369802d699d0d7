package object

import "testing"

func TestParseHash(t *testing.T) {
	tests := []struct {
		in      string
		want    Hash
		wantErr bool
	}{
		{in: "e69de29bb2d1d6434b8b29ae775ad8c2e48c5391", want: EmptyBlobHash},
		{in: "  E69DE29BB2D1D6434B8B29AE775AD8C2E48C5391\n", want: EmptyBlobHash},
		{in: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", want: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"},
		{in: "", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz", wantErr: true},
	}
	for _, tc := range tests {
		got, err := ParseHash(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseHash(%q) = %q, want error", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseHash(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseHash(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestHashShort(t *testing.T) {
	if got := EmptyBlobHash.Short(); got != "e69de29b" {
		t.Fatalf("Short() = %q", got)
	}
	if got := Hash("abc").Short(); got != "abc" {
		t.Fatalf("Short() = %q", got)
	}
}
