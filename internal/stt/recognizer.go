package stt

import (
	"context"
	"errors"
	"fmt"

	"github.com/loqalabs/dictat/internal/audio"
)

// ErrNotUnderstood reports that speech was present but could not be decoded.
var ErrNotUnderstood = errors.New("speech not understood")

// ServiceError reports that the recognition service could not be reached or
// refused the request.
type ServiceError struct {
	Reason string
	Err    error
}

func (e *ServiceError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Request is one utterance to transcribe.
type Request struct {
	PCM      []byte
	Format   audio.Format
	Language string
}

// Recognizer abstracts speech recognition backends. Implementations must be
// safe for concurrent use.
type Recognizer interface {
	Recognize(ctx context.Context, req Request) (string, error)
}
