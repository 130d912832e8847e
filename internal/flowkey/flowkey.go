// Package flowkey builds the string keys used to identify and display TCP
// flows. Grounded on get_key in original_source/pe_dump/pe_dump.c: a flow
// key is simply "<src_ip>:<src_port>-<dst_ip>:<dst_port>"; the reverse key
// swaps src/dst so a flow can be looked up from either direction's packets.
package flowkey

import (
	"fmt"
	"net"
)

// Endpoint is one side of a TCP 4-tuple.
type Endpoint struct {
	IP   net.IP
	Port uint16
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d", e.IP.String(), e.Port)
}

// Make builds the forward key "src-dst", matching get_key(key, pkt_src, pkt_dst).
func Make(src, dst Endpoint) string {
	return src.String() + "-" + dst.String()
}

// Reverse builds the key as seen from the opposite direction, matching
// get_key(rev_key, pkt_dst, pkt_src).
func Reverse(src, dst Endpoint) string {
	return Make(dst, src)
}

// Anonymized builds the display key using an anonymized source endpoint,
// matching get_key(anon_key, anon_pkt_src, pkt_dst). Callers pass the
// already-masked source IP (see internal/anon).
func Anonymized(anonSrc, dst Endpoint) string {
	return Make(anonSrc, dst)
}
