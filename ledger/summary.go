package ledger

// =============================================================================
// SUMMARY - Aggregates computed by replaying the ledger
// =============================================================================

// Summary holds the ledger aggregates.
//
//	Total     = LifetimeEarned - Expired
//	Available = LifetimeEarned - Redeemed - ExpiredUnredeemed
//
// LifetimeEarned includes signed ADJUST entries. ExpiredUnredeemed is the
// part of Expired that had not been spent when it expired.
type Summary struct {
	Earned            int64 // EARNED
	Nights            int64 // NIGHTS
	Adjusted          int64 // signed sum of ADJUST
	Redeemed          int64
	Expired           int64
	ExpiredUnredeemed int64
	LifetimeEarned    int64
}

// Total is the tier-qualifying point total.
func (s Summary) Total() int64 { return s.LifetimeEarned - s.Expired }

// Available is the redeemable balance.
func (s Summary) Available() int64 { return s.LifetimeEarned - s.Redeemed - s.ExpiredUnredeemed }

// Summarize replays the ledger.
func (l *Ledger) Summarize() Summary {
	return Summarize(l.entries)
}

// Summarize replays a list of entries.
func Summarize(entries []Entry) Summary {
	var s Summary
	for _, e := range entries {
		switch e.Type {
		case EntryEarned:
			s.Earned += e.Points
		case EntryNights:
			s.Nights += e.Points
		case EntryAdjust:
			s.Adjusted += e.Points
		case EntryRedeemed:
			s.Redeemed += e.Points
		case EntryExpired:
			s.Expired += e.Points
			s.ExpiredUnredeemed += e.Unredeemed
		}
	}
	s.LifetimeEarned = s.Earned + s.Nights + s.Adjusted
	return s
}
