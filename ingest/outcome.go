package ingest

// Outcome names how a pipeline run ended.
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"

	// Rejected input: nothing is created.
	OutcomeNoHTML          Outcome = "no_html"
	OutcomeNotImageTag     Outcome = "not_image_tag"
	OutcomeNoSource        Outcome = "no_source"
	OutcomeTransientSource Outcome = "transient_source"
	OutcomeUntrustedOrigin Outcome = "untrusted_origin"
	OutcomeInvalidURL      Outcome = "invalid_url"

	// The slot exists but stays in preview.
	OutcomeUnsupportedFormat Outcome = "unsupported_format"
	OutcomeFetchFailed       Outcome = "fetch_failed"

	// The prompt was answered.
	OutcomeCancelled  Outcome = "cancelled"
	OutcomeSaveFailed Outcome = "save_failed"
	OutcomeSaved      Outcome = "saved"
)

// Rejected reports whether the run stopped before a slot was created.
func (o Outcome) Rejected() bool {
	switch o {
	case OutcomeNoHTML, OutcomeNotImageTag, OutcomeNoSource,
		OutcomeTransientSource, OutcomeUntrustedOrigin, OutcomeInvalidURL:
		return true
	}
	return false
}

// Result is the outcome of one pipeline run.
type Result struct {
	Outcome      Outcome
	Reference    string
	CanonicalURL string
	Slot         *Slot
	SavedPath    string
}
