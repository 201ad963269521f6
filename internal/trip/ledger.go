package trip

import "github.com/evroute/evroute/internal/charger"

// Ledger is the ordered list of confirmed stops. Stops keep insertion order;
// only Replace reorders or removes.
type Ledger struct {
	stops []charger.Candidate
}

// Add appends c unless a stop with the same ID is already present. It reports
// whether c was appended.
func (l *Ledger) Add(c charger.Candidate) bool {
	if l.Contains(c.ID) {
		return false
	}
	l.stops = append(l.stops, c)
	return true
}

// Replace swaps the whole ledger for stops, dropping repeated IDs.
func (l *Ledger) Replace(stops []charger.Candidate) {
	l.stops = nil
	for _, s := range stops {
		l.Add(s)
	}
}

// Contains reports whether a stop with id is present.
func (l *Ledger) Contains(id string) bool {
	for _, s := range l.stops {
		if s.ID == id {
			return true
		}
	}
	return false
}

// Len returns the number of stops.
func (l *Ledger) Len() int { return len(l.stops) }

// Stops returns a copy of the stops in order.
func (l *Ledger) Stops() []charger.Candidate {
	out := make([]charger.Candidate, len(l.stops))
	copy(out, l.stops)
	return out
}
