package model

import "time"

// WaitingListEntry is a party waiting for seats to free up.
type WaitingListEntry struct {
	RegistrantID string    `json:"registrant_id"`
	PartySize    int       `json:"party_size"`
	RequestedAt  time.Time `json:"requested_at"`
}

// WaitingList holds waiting parties in priority order (earliest request first).
type WaitingList []WaitingListEntry

// Enqueue adds e behind every entry requested at or before it.
func (l *WaitingList) Enqueue(e WaitingListEntry) {
	i := len(*l)
	for i > 0 && (*l)[i-1].RequestedAt.After(e.RequestedAt) {
		i--
	}
	*l = append(*l, WaitingListEntry{})
	copy((*l)[i+1:], (*l)[i:])
	(*l)[i] = e
}

// DequeueIfFits removes and returns the first entry from the head whose party
// fits in available seats. Larger entries ahead of it stay where they are.
func (l *WaitingList) DequeueIfFits(available int) (WaitingListEntry, bool) {
	for i, e := range *l {
		if e.PartySize <= available {
			*l = append((*l)[:i], (*l)[i+1:]...)
			return e, true
		}
	}
	return WaitingListEntry{}, false
}

// Remove drops every entry for registrantID and reports how many were removed.
func (l *WaitingList) Remove(registrantID string) int {
	kept := (*l)[:0]
	removed := 0
	for _, e := range *l {
		if e.RegistrantID == registrantID {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	*l = kept
	return removed
}

// Position returns the 1-based position of registrantID's first entry.
func (l WaitingList) Position(registrantID string) (int, WaitingListEntry, bool) {
	for i, e := range l {
		if e.RegistrantID == registrantID {
			return i + 1, e, true
		}
	}
	return 0, WaitingListEntry{}, false
}

// Len returns the number of waiting entries.
func (l WaitingList) Len() int {
	return len(l)
}
