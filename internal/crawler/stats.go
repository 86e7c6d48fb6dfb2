package crawler

// Outcome is what happened to one ruling id.
type Outcome int

const (
	OutcomeFetched Outcome = iota
	OutcomeSkippedExisting
	OutcomeNotFound
	OutcomeMalformed
	OutcomeErrored
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFetched:
		return "fetched"
	case OutcomeSkippedExisting:
		return "skipped_existing"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeMalformed:
		return "malformed"
	case OutcomeErrored:
		return "errored"
	}
	return "unknown"
}

// Stats counts outcomes. Fetched means fetched, extracted and stored.
type Stats struct {
	Fetched         int64 `json:"fetched"`
	SkippedExisting int64 `json:"skipped_existing"`
	NotFound        int64 `json:"not_found"`
	Malformed       int64 `json:"malformed"`
	Errored         int64 `json:"errored"`
}

// Processed is the number of ids that reached a terminal outcome.
func (s Stats) Processed() int64 {
	return s.Fetched + s.SkippedExisting + s.NotFound + s.Malformed + s.Errored
}
