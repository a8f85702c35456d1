package stt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GoogleConfig configures the Cloud Speech-to-Text client. With no
// credentials file or API key, application default credentials are used.
type GoogleConfig struct {
	Endpoint        string
	CredentialsFile string
	APIKey          string
	Model           string
}

// GoogleRecognizer sends each utterance to Cloud Speech-to-Text as LINEAR16.
type GoogleRecognizer struct {
	client *speech.Client
	model  string
}

func NewGoogleRecognizer(ctx context.Context, cfg GoogleConfig) (*GoogleRecognizer, error) {
	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create speech client: %w", err)
	}
	return &GoogleRecognizer{client: client, model: cfg.Model}, nil
}

func (g *GoogleRecognizer) Recognize(ctx context.Context, req Request) (string, error) {
	resp, err := g.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:          speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz:   int32(req.Format.SampleRate),
			AudioChannelCount: int32(req.Format.Channels),
			LanguageCode:      req.Language,
			Model:             g.model,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: req.PCM},
		},
	})
	if err != nil {
		return "", classifyRPCError(err)
	}
	return bestTranscript(resp)
}

func (g *GoogleRecognizer) Close() error {
	return g.client.Close()
}

func bestTranscript(resp *speechpb.RecognizeResponse) (string, error) {
	var parts []string
	for _, result := range resp.GetResults() {
		alts := result.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		if t := strings.TrimSpace(alts[0].GetTranscript()); t != "" {
			parts = append(parts, t)
		}
	}
	if len(parts) == 0 {
		return "", ErrNotUnderstood
	}
	return strings.Join(parts, " "), nil
}

// classifyRPCError maps transport and server failures to ServiceError and
// leaves anything else untouched.
func classifyRPCError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &ServiceError{Reason: "recognition request timed out", Err: err}
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Unauthenticated,
		codes.PermissionDenied, codes.Internal, codes.Unknown, codes.Aborted, codes.InvalidArgument,
		codes.FailedPrecondition, codes.Canceled:
		return &ServiceError{Reason: st.Message(), Err: err}
	}
	return err
}
