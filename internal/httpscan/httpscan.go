// Package httpscan recognizes HTTP requests and extracts the response
// fields pedump needs, without parsing HTTP in general: just enough to
// find a request line, a handful of header values, the response header
// boundary, and a trailing "MZ" signature. Translated from
// is_http_request/get_url/get_host/get_referer/
// is_complete_http_resp_header/get_resp_hdr_length/get_content_length/
// contains_pe_file in original_source/pe_dump/pe_dump.c, using
// internal/search in place of boyermoore_search.
package httpscan

import (
	"strconv"

	"github.com/tph5595/amico/internal/search"
)

// Field length caps, matching MAX_URL_LEN/MAX_HOST_LEN/MAX_REFERER_LEN.
// Go slicing makes the original's unchecked static-buffer writes
// structurally impossible, but the bounds are asserted explicitly below
// (resolving spec.md's Open Question on Host/Referer extractor bounds)
// and exercised by tests with payloads that exceed them.
const (
	MaxURLLen     = 512
	MaxHostLen    = 256
	MaxRefererLen = 512

	hdrSearchLimit = 3 * 1024
	clSearchLimit  = 3 * 1024
	maxCLDigits    = 40

	minPEPayloadSize = 14
)

// PEStatus mirrors the PE_FOUND/PE_NOT_FOUND/PE_WAIT_FOR_RESP_BODY
// tri-state contains_pe_file returns.
type PEStatus int

const (
	PEWaitForBody PEStatus = iota
	PEFound
	PENotFound
)

// IsHTTPRequest reports whether payload begins with a request line for
// one of the three methods pe_dump cares about, matching is_http_request.
func IsHTTPRequest(payload []byte) bool {
	if len(payload) < 5 {
		return false
	}

	for _, method := range [][]byte{[]byte("GET "), []byte("POST "), []byte("HEAD ")} {
		if len(payload) >= len(method) && string(payload[:len(method)]) == string(method) {
			return true
		}
	}

	return false
}

// URL returns the request line up to (but not including) the first CR or
// LF, capped at MaxURLLen bytes, matching get_url.
func URL(payload []byte) string {
	limit := MaxURLLen
	if len(payload) < limit {
		limit = len(payload)
	}

	for i := 0; i < limit; i++ {
		if payload[i] == '\r' || payload[i] == '\n' {
			return string(payload[:i])
		}
	}

	return string(payload[:limit])
}

// Host returns the value of the first "Host:" header line, capped at
// MaxHostLen bytes, matching get_host. Returns "" if no Host header is
// present.
func Host(payload []byte) string {
	return headerValue(payload, []byte("\r\nHost:"), MaxHostLen)
}

// Referer returns the value of the first "Referer:" header line, capped
// at MaxRefererLen bytes, matching get_referer. Returns "" if no Referer
// header is present.
func Referer(payload []byte) string {
	return headerValue(payload, []byte("\r\nReferer:"), MaxRefererLen)
}

// headerValue finds needle (a "\r\nName:" marker) in payload and returns
// the text that follows the colon and any spaces after it, up to the next
// CR/LF, capped at maxLen bytes.
// Both the source length and destination cap are asserted explicitly
// before any slicing, in place of the original's unchecked strncpy into a
// static buffer.
func headerValue(payload []byte, needle []byte, maxLen int) string {
	if len(payload) < len(needle) {
		return ""
	}

	idx := search.Index(payload, needle)
	if idx < 0 {
		return ""
	}

	start := idx + 2 // skip \r\n, land on the header name
	if start > len(payload) {
		return ""
	}

	// skip "Name:" itself
	colon := search.Index(payload[start:], []byte(":"))
	if colon < 0 {
		return ""
	}

	start += colon + 1

	// skip the optional spaces between the colon and the value
	for start < len(payload) && payload[start] == ' ' {
		start++
	}

	limit := maxLen
	if remaining := len(payload) - start; remaining < limit {
		limit = remaining
	}

	if limit < 0 {
		return ""
	}

	for i := 0; i < limit; i++ {
		if payload[start+i] == '\r' || payload[start+i] == '\n' {
			return string(payload[start : start+i])
		}
	}

	return string(payload[start : start+limit])
}

// IsCompleteRespHeader reports whether buf contains a full HTTP response
// header terminator ("\r\n\r\n" somewhere in buf), matching
// is_complete_http_resp_header.
func IsCompleteRespHeader(buf []byte) bool {
	if len(buf) < 4 {
		return false
	}

	return search.Contains(buf, []byte("\r\n\r\n"))
}

// RespHeaderLength returns the offset just past the first "\r\n\r\n" in
// buf (i.e. the length of the response header, terminator included),
// searching only the first hdrSearchLimit bytes, matching
// get_resp_hdr_length. Returns -1 if no terminator is found in range.
func RespHeaderLength(buf []byte) int {
	limit := hdrSearchLimit
	if len(buf) < limit {
		limit = len(buf)
	}

	needle := []byte("\r\n\r\n")
	if limit < len(needle) {
		return -1
	}

	idx := search.Index(buf[:limit], needle)
	if idx < 0 {
		return -1
	}

	return idx + len(needle)
}

// ContentLength parses the value of the first "Content-Length:" header,
// searching only the first clSearchLimit bytes, matching
// get_content_length/parse_content_length_str. Returns -1 if no
// Content-Length header is found or it does not parse as a non-negative
// integer.
func ContentLength(buf []byte) int {
	limit := clSearchLimit
	if len(buf) < limit {
		limit = len(buf)
	}

	needle := []byte("\r\nContent-Length:")
	if limit < len(needle) {
		return -1
	}

	idx := search.Index(buf[:limit], needle)
	if idx < 0 {
		return -1
	}

	start := idx + 2 + len("Content-Length:")

	digitsLimit := maxCLDigits
	if remaining := limit - start; remaining < digitsLimit {
		digitsLimit = remaining
	}

	if digitsLimit < 0 {
		return -1
	}

	end := start + digitsLimit
	for i := start; i < end; i++ {
		if buf[i] == '\r' || buf[i] == '\n' {
			end = i
			break
		}
	}

	if end <= start {
		return -1
	}

	// atoi-style parse: consume leading whitespace, then digits.
	s := string(buf[start:end])
	for len(s) > 0 && s[0] == ' ' {
		s = s[1:]
	}

	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return -1
	}

	return n
}

// ContainsPE inspects buf (the accumulated response buffer) for the
// "HTTP/x.x 200" status line followed eventually by an "MZ" signature
// immediately after the header terminator, matching contains_pe_file.
func ContainsPE(buf []byte) PEStatus {
	if len(buf) < minPEPayloadSize {
		return PEWaitForBody
	}

	if !search.HasPrefixAt(buf, 0, []byte("HTTP/")) {
		return PENotFound
	}

	const http200Offset = 8 // len("HTTP/x.x")
	if !search.HasPrefixAt(buf, http200Offset, []byte(" 200 ")) {
		return PENotFound
	}

	idx := search.Index(buf, []byte("\r\n\r\n"))
	if idx < 0 {
		return PENotFound
	}

	sigStart := idx + 4
	if sigStart+2 > len(buf) {
		return PEWaitForBody
	}

	if search.HasPrefixAt(buf, sigStart, []byte("MZ")) {
		return PEFound
	}

	return PENotFound
}
