package protocol

import "time"

// Status mirrors the status line shown to the user.
type Status struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// TranscriptAppend carries one fragment appended to the transcript.
type TranscriptAppend struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// TranscriptClear announces that the transcript was emptied.
type TranscriptClear struct {
	Timestamp time.Time `json:"timestamp"`
}

// SessionState is published on every listening transition.
type SessionState struct {
	SessionID string    `json:"session_id"`
	State     string    `json:"state"`
	Language  string    `json:"language"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Control is an inbound user action. Value is the language for "lang" and
// the optional path for "save".
type Control struct {
	Action string `json:"action"`
	Value  string `json:"value,omitempty"`
}

const (
	ActionToggle = "toggle"
	ActionLang   = "lang"
	ActionClear  = "clear"
	ActionSave   = "save"
)

const (
	SubjectStatus           = "dictat.status"
	SubjectTranscriptAppend = "dictat.transcript.append"
	SubjectTranscriptClear  = "dictat.transcript.clear"
	SubjectSessionState     = "dictat.session.state"
	SubjectControl          = "dictat.control"
)
