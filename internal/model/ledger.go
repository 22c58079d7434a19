package model

// Reserve takes partySize seats if they are all available.
// On failure nothing changes and the caller should waitlist the party.
func (a *Activity) Reserve(partySize int) (granted bool, spotsLeft int) {
	if partySize > a.SpotsLeft {
		return false, a.SpotsLeft
	}
	a.SpotsLeft -= partySize
	return true, a.SpotsLeft
}

// Release returns partySize seats, never exceeding capacity.
func (a *Activity) Release(partySize int) {
	a.SpotsLeft = min(a.SpotsLeft+partySize, a.Capacity)
}
