package dedup

// ledgerEntry is one accepted (normalized title, date) observation.
type ledgerEntry struct {
	normTitle string
	date      string
}

// Ledger is the per-run, in-memory record of events already accepted in
// the current run. It is created empty at run start and discarded at run
// end; nothing in it survives the run.
type Ledger struct {
	entries []ledgerEntry
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Observe checks a normalized title and calendar date against everything
// accepted so far in this run. If a same-date entry matches under the
// three-tier rule the observation is a duplicate: Observe returns true and
// the ledger is unchanged. Otherwise the pair is appended and Observe
// returns false.
func (l *Ledger) Observe(normTitle, date string) bool {
	for _, e := range l.entries {
		if e.date != date {
			continue
		}
		if TitlesMatch(e.normTitle, normTitle) {
			return true
		}
	}
	l.entries = append(l.entries, ledgerEntry{normTitle: normTitle, date: date})
	return false
}

// Len returns the number of accepted entries.
func (l *Ledger) Len() int {
	return len(l.entries)
}
