package stt

import (
	"context"
	"fmt"
	"io"

	"github.com/loqalabs/dictat/internal/config"
)

// New builds the recognizer selected by cfg.Mode. The returned closer
// releases backend connections and is never nil.
func New(ctx context.Context, cfg config.RecognitionConfig) (Recognizer, io.Closer, error) {
	switch cfg.Mode {
	case "google":
		g, err := NewGoogleRecognizer(ctx, GoogleConfig{
			Endpoint:        cfg.Endpoint,
			CredentialsFile: cfg.CredentialsFile,
			APIKey:          cfg.APIKey,
			Model:           cfg.Model,
		})
		if err != nil {
			return nil, nil, err
		}
		return g, g, nil
	case "exec":
		r, err := NewExecRecognizer(cfg.Command, cfg.Model)
		if err != nil {
			return nil, nil, err
		}
		return r, nopCloser{}, nil
	case "mock":
		return NewMockRecognizer(), nopCloser{}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported recognition mode %q", cfg.Mode)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
