// Package seqlist is the sequence-interval list used by the reassembler
// and gap detector to remember which (sequence, length) ranges have been
// observed on the server-to-client side of a flow. Grounded on the
// seq_list_t usage sites in original_source/pe_dump/pe_dump.c
// (seq_list_insert/seq_list_head/seq_list_restart_from_head/seq_list_next);
// the original's seq_list.c/.h were not part of the retrieved source, so
// the list's external behavior is reconstructed from its call sites and
// spec.md §4.4's description of the gap-detection algorithm.
package seqlist

// Entry is one observed (sequence, length) interval. A zero-valued Entry
// ((Seq, Len) == (0, 0)) is a sentinel meaning "already absorbed into a
// contiguous run" — internal/gapcheck rewrites entries to this value in
// place as it walks the list, exactly as is_missing_flow_data does.
type Entry struct {
	Seq uint32
	Len uint32
}

// Absorbed reports whether this entry has been marked absorbed.
func (e Entry) Absorbed() bool {
	return e.Seq == 0 && e.Len == 0
}

// List is an append-only sequence of Entry values with a separate read
// cursor, matching the original's "linked list + current pointer" shape
// closely enough that Next/RestartFromHead read the same way at call
// sites.
type List struct {
	entries []Entry
	cursor  int
}

// New returns an empty List.
func New() *List {
	return &List{}
}

// Insert appends a new (seq, len) interval. Matches seq_list_insert:
// no ordering, no merging, no deduplication against existing entries —
// callers (internal/flow) are responsible for that policy decision, and
// spec.md's Open Question on sc_num_payloads resolves to NOT deduping,
// matching the reference.
func (l *List) Insert(seq, length uint32) {
	l.entries = append(l.entries, Entry{Seq: seq, Len: length})
}

// Len reports the number of entries, including absorbed ones.
func (l *List) Len() int {
	return len(l.entries)
}

// Empty reports whether the list holds no entries at all, matching
// seq_list_head(l) == NULL.
func (l *List) Empty() bool {
	return len(l.entries) == 0
}

// RestartFromHead resets the read cursor to the first entry, matching
// seq_list_restart_from_head.
func (l *List) RestartFromHead() {
	l.cursor = 0
}

// Next returns a pointer to the next entry and advances the cursor, or
// nil once the list is exhausted. The returned pointer aliases the
// backing array, so callers may mutate it in place (as internal/gapcheck
// does to mark an entry absorbed), matching the original's mutable
// seq_list_entry_t* walk.
func (l *List) Next() *Entry {
	if l.cursor >= len(l.entries) {
		return nil
	}

	e := &l.entries[l.cursor]
	l.cursor++

	return e
}
