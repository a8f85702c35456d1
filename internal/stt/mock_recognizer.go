package stt

import (
	"context"
	"fmt"
)

type mockRecognizer struct{}

func NewMockRecognizer() Recognizer {
	return &mockRecognizer{}
}

func (m *mockRecognizer) Recognize(_ context.Context, req Request) (string, error) {
	if len(req.PCM) == 0 {
		return "", ErrNotUnderstood
	}
	return fmt.Sprintf("[%s transcript length=%d]", req.Language, len(req.PCM)), nil
}
