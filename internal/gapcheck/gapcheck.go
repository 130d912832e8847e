// Package gapcheck detects gaps in a flow's sequence-interval list before
// its buffer is treated as complete. Translated directly from
// is_missing_flow_data in original_source/pe_dump/pe_dump.c: the list is
// walked repeatedly, contiguous runs are absorbed into an
// expected-sequence-number frontier and marked (0, 0) so they are never
// reconsidered, and the walk repeats until either a full pass makes no
// progress or every entry has been absorbed.
package gapcheck

import "github.com/tph5595/amico/internal/seqlist"

// Missing reports whether l has a gap relative to contentLen, matching
// is_missing_flow_data's return value (true meaning data is missing).
// A nil or empty list is always reported as missing, matching the
// original's NULL/seq_list_head checks.
func Missing(l *seqlist.List, contentLen int) bool {
	if l == nil || l.Empty() {
		return true
	}

	maxSeqNum := maxSeqNum(l)

	l.RestartFromHead()
	first := l.Next()
	firstSeq := first.Seq
	firstLen := first.Len

	estimatedContentLen := int(maxSeqNum - firstSeq)
	if estimatedContentLen < contentLen {
		return true
	}

	expected := firstSeq + firstLen
	gapDetected := false
	terminateLoop := false

	for {
		tmpExpected := expected
		gapDetected = false

		l.RestartFromHead()
		for e := l.Next(); e != nil; e = l.Next() {
			if e.Absorbed() {
				continue
			}

			seq := e.Seq
			n := e.Len
			end := seq + n

			// ignore retransmissions entirely contained before the frontier
			if seq <= tmpExpected && end <= tmpExpected {
				continue
			}

			// absorb overlapping or contiguous runs into the frontier
			if seq <= tmpExpected && end >= tmpExpected {
				tmpExpected = end
				e.Seq = 0
				e.Len = 0

				continue
			}

			gapDetected = true
		}

		if tmpExpected == expected {
			// no progress made this pass: stop, whatever the verdict is
			terminateLoop = true
		}

		expected = tmpExpected
		l.RestartFromHead()

		if !(gapDetected && !terminateLoop) {
			break
		}
	}

	return gapDetected
}

func maxSeqNum(l *seqlist.List) uint32 {
	var maxSeq uint32

	l.RestartFromHead()
	for e := l.Next(); e != nil; e = l.Next() {
		end := e.Seq + e.Len
		if end > maxSeq {
			maxSeq = end
		}
	}

	return maxSeq
}
