package domain

type CatalogEntry struct {
	Value string `json:"value" yaml:"value" example:"first_name"`
	Label string `json:"label" yaml:"label" example:"First Name"`
}

// SchemaEntry is a single-key object mapping a catalog value to its label.
type SchemaEntry map[string]string

type Payload struct {
	SegmentName string        `json:"segment_name"`
	Schema      []SchemaEntry `json:"schema"`
}

type SubmissionStatus string

const (
	StatusIdle       SubmissionStatus = "idle"
	StatusValidating SubmissionStatus = "validating"
	StatusSending    SubmissionStatus = "sending"
	StatusSucceeded  SubmissionStatus = "succeeded"
	StatusFailed     SubmissionStatus = "failed"
)

// Terminal reports whether the status is the outcome of a finished attempt.
func (s SubmissionStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeError   Outcome = "error"
)

type SubmissionResult struct {
	Outcome Outcome `json:"outcome" enum:"success,error"`
	Message string  `json:"message"`
}

// View is everything the compose surface renders after a mutation.
type View struct {
	Open         bool              `json:"open"`
	Name         string            `json:"name"`
	Slots        []string          `json:"slots"`
	Availability [][]CatalogEntry  `json:"availability"`
	Preview      Payload           `json:"preview"`
	Status       SubmissionStatus  `json:"status" enum:"idle,validating,sending,succeeded,failed"`
	Busy         bool              `json:"busy"`
	Result       *SubmissionResult `json:"result,omitempty"`
}
