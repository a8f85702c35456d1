package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/loqalabs/dictat/internal/audio"
	"github.com/mattn/go-shellwords"
)

type execRecognizer struct {
	cmd   []string
	model string
}

type execResult struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// NewExecRecognizer runs command once per utterance with --audio <wav>
// --language <code> and reads {"text": "..."} from stdout.
func NewExecRecognizer(command, model string) (Recognizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse recognition command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("recognition command is empty")
	}
	return &execRecognizer{cmd: args, model: model}, nil
}

func (r *execRecognizer) Recognize(ctx context.Context, req Request) (string, error) {
	file, err := os.CreateTemp("", "dictat_utterance_*.wav")
	if err != nil {
		return "", fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())
	defer file.Close()

	if err := audio.WriteWAV(file, req.PCM, req.Format); err != nil {
		return "", err
	}

	args := append([]string{}, r.cmd[1:]...)
	args = append(args, "--audio", file.Name())
	if req.Language != "" {
		args = append(args, "--language", req.Language)
	}
	if r.model != "" {
		args = append(args, "--model", r.model)
	}

	command := exec.CommandContext(ctx, r.cmd[0], args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return "", &ServiceError{Reason: strings.TrimSpace("recognition command failed " + stderr.String()), Err: err}
	}

	var resp execResult
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return "", fmt.Errorf("decode recognition response: %w", err)
	}
	if resp.Error != "" {
		return "", &ServiceError{Reason: resp.Error}
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrNotUnderstood
	}
	return text, nil
}
