package ui

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-shellwords"
)

type EventKind int

const (
	EventMicToggle EventKind = iota
	EventLanguageChange
	EventClear
	EventSave
)

func (k EventKind) String() string {
	switch k {
	case EventMicToggle:
		return "mic_toggle"
	case EventLanguageChange:
		return "language_change"
	case EventClear:
		return "clear"
	case EventSave:
		return "save"
	default:
		return "unknown"
	}
}

// Event is a user action. Value holds the language for EventLanguageChange
// and the optional target path for EventSave.
type Event struct {
	Kind  EventKind
	Value string
}

var ErrEmptyCommand = errors.New("empty command")

// ParseCommand reads one terminal command line. Arguments follow shell
// quoting rules so paths may contain spaces.
func ParseCommand(line string) (Event, error) {
	args, err := shellwords.Parse(line)
	if err != nil {
		return Event{}, fmt.Errorf("parse command: %w", err)
	}
	if len(args) == 0 {
		return Event{}, ErrEmptyCommand
	}
	switch strings.ToLower(args[0]) {
	case "toggle", "mic":
		return Event{Kind: EventMicToggle}, nil
	case "lang", "language":
		if len(args) < 2 {
			return Event{}, errors.New("lang requires a language code or name")
		}
		return Event{Kind: EventLanguageChange, Value: strings.Join(args[1:], " ")}, nil
	case "clear":
		return Event{Kind: EventClear}, nil
	case "save":
		var path string
		if len(args) > 1 {
			path = args[1]
		}
		return Event{Kind: EventSave, Value: path}, nil
	default:
		return Event{}, fmt.Errorf("unknown command %q", args[0])
	}
}

// ReadCommands parses r line by line and posts each event until r is
// exhausted. Bad lines are reported to onError and skipped.
func ReadCommands(r io.Reader, post func(Event), onError func(error)) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		evt, err := ParseCommand(scanner.Text())
		if errors.Is(err, ErrEmptyCommand) {
			continue
		}
		if err != nil {
			if onError != nil {
				onError(err)
			}
			continue
		}
		post(evt)
	}
	return scanner.Err()
}
