package recognition

import "time"

// Outcome tags a Result.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeUnrecognized
	OutcomeServiceError
	OutcomeUnexpectedError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeUnrecognized:
		return "unrecognized"
	case OutcomeServiceError:
		return "service_error"
	case OutcomeUnexpectedError:
		return "unexpected_error"
	default:
		return "unknown"
	}
}

// Result is the outcome of recognizing one utterance. Text is set for
// OutcomeSuccess, Message for the error outcomes.
type Result struct {
	SessionID   string        `json:"session_id"`
	Sequence    int           `json:"sequence"`
	Language    string        `json:"language"`
	Outcome     Outcome       `json:"outcome"`
	Text        string        `json:"text,omitempty"`
	Message     string        `json:"message,omitempty"`
	Latency     time.Duration `json:"latency"`
	CompletedAt time.Time     `json:"completed_at"`
}
