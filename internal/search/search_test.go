package search

import "testing"

func TestIndex(t *testing.T) {
	cases := []struct {
		name    string
		hay     string
		needle  string
		want    int
	}{
		{"found at start", "GET / HTTP/1.1", "GET", 0},
		{"found mid", "HTTP/1.1 200 OK", " 200 ", 8},
		{"not found", "HTTP/1.1 404 Not Found", " 200 ", -1},
		{"empty needle", "anything", "", 0},
		{"needle longer than haystack", "hi", "hello", -1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Index([]byte(tc.hay), []byte(tc.needle))
			if got != tc.want {
				t.Errorf("Index(%q, %q) = %d, want %d", tc.hay, tc.needle, got, tc.want)
			}
		})
	}
}

func TestContains(t *testing.T) {
	if !Contains([]byte("Host: example.com\r\n"), []byte("Host:")) {
		t.Error("expected Contains to find Host: header")
	}

	if Contains([]byte("Host: example.com\r\n"), []byte("Referer:")) {
		t.Error("did not expect Contains to find Referer:")
	}
}

func TestHasPrefixAt(t *testing.T) {
	buf := []byte("\r\n\r\nMZ\x90\x00")

	if !HasPrefixAt(buf, 4, []byte("MZ")) {
		t.Error("expected MZ signature at offset 4")
	}

	if HasPrefixAt(buf, 5, []byte("MZ")) {
		t.Error("did not expect MZ signature at offset 5")
	}

	if HasPrefixAt(buf, len(buf)-1, []byte("MZ")) {
		t.Error("HasPrefixAt must reject a needle that runs past the end of the buffer")
	}

	if HasPrefixAt(buf, -1, []byte("MZ")) {
		t.Error("HasPrefixAt must reject a negative offset")
	}
}
