package httpscan

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsHTTPRequest(t *testing.T) {
	cases := []struct {
		payload string
		want    bool
	}{
		{"GET /index.html HTTP/1.1\r\n", true},
		{"POST /submit HTTP/1.1\r\n", true},
		{"HEAD /probe HTTP/1.1\r\n", true},
		{"PUT /x HTTP/1.1\r\n", false},
		{"GE", false},
		{"", false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, IsHTTPRequest([]byte(tc.payload)), "payload %q", tc.payload)
	}
}

func TestURL(t *testing.T) {
	got := URL([]byte("GET /a/b.exe HTTP/1.1\r\nHost: x\r\n\r\n"))
	assert.Equal(t, "GET /a/b.exe HTTP/1.1", got)
}

func TestURLTruncatesAtCap(t *testing.T) {
	long := "GET /" + strings.Repeat("a", MaxURLLen+100) + " HTTP/1.1\r\n"
	got := URL([]byte(long))

	assert.LessOrEqual(t, len(got), MaxURLLen)
}

func TestHost(t *testing.T) {
	req := []byte("GET / HTTP/1.1\r\nHost: example.com\r\nUser-Agent: x\r\n\r\n")
	assert.Equal(t, "example.com", Host(req))
}

func TestHostAbsent(t *testing.T) {
	req := []byte("GET / HTTP/1.1\r\nUser-Agent: x\r\n\r\n")
	assert.Empty(t, Host(req))
}

func TestHostTruncatesAtCap(t *testing.T) {
	req := []byte("GET / HTTP/1.1\r\nHost: " + strings.Repeat("a", MaxHostLen+50) + "\r\n\r\n")
	assert.LessOrEqual(t, len(Host(req)), MaxHostLen)
}

func TestReferer(t *testing.T) {
	req := []byte("GET / HTTP/1.1\r\nReferer: http://evil.example/page\r\n\r\n")
	assert.Equal(t, "http://evil.example/page", Referer(req))
}

func TestIsCompleteRespHeader(t *testing.T) {
	assert.False(t, IsCompleteRespHeader([]byte("HTTP/1.1 200 OK\r\nContent-Length: 5")))
	assert.True(t, IsCompleteRespHeader([]byte("HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\n")))
}

func TestRespHeaderLength(t *testing.T) {
	hdr := "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\n"
	assert.Equal(t, len(hdr), RespHeaderLength([]byte(hdr)))
}

func TestRespHeaderLengthMissing(t *testing.T) {
	assert.Equal(t, -1, RespHeaderLength([]byte("HTTP/1.1 200 OK\r\nContent-Length: 5")))
}

func TestContentLength(t *testing.T) {
	hdr := []byte("HTTP/1.1 200 OK\r\nContent-Length: 1234\r\n\r\n")
	assert.Equal(t, 1234, ContentLength(hdr))
}

func TestContentLengthAbsent(t *testing.T) {
	assert.Equal(t, -1, ContentLength([]byte("HTTP/1.1 200 OK\r\n\r\n")))
}

func TestContainsPEFound(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("HTTP/1.1 200 OK\r\n")
	buf.WriteString("Content-Type: application/octet-stream\r\n")
	buf.WriteString("\r\n")
	buf.WriteString("MZ\x90\x00\x03\x00\x00\x00")

	assert.Equal(t, PEFound, ContainsPE(buf.Bytes()))
}

func TestContainsPENotMZ(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("HTTP/1.1 200 OK\r\n\r\n")
	buf.WriteString("<html>not a pe</html>")

	assert.Equal(t, PENotFound, ContainsPE(buf.Bytes()))
}

func TestContainsPENon200(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("HTTP/1.1 404 Not Found\r\n\r\n")
	buf.WriteString("MZ")

	assert.Equal(t, PENotFound, ContainsPE(buf.Bytes()))
}

func TestContainsPEWaitForBody(t *testing.T) {
	assert.Equal(t, PEWaitForBody, ContainsPE([]byte("HTTP/1.1")))
}

func TestContainsPEWaitForSignature(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("HTTP/1.1 200 OK\r\n\r\n")
	// header complete but body hasn't arrived with enough bytes for "MZ" yet
	buf.WriteByte('M')

	assert.Equal(t, PEWaitForBody, ContainsPE(buf.Bytes()))
}
