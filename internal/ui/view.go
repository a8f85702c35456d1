package ui

import (
	"fmt"
	"io"
	"sync"
)

// View is the display surface. Its methods are only called from the poller
// goroutine.
type View interface {
	SetStatus(status string)
	AppendTranscript(fragment string)
	ClearTranscript()
}

// MultiView fans every call out to each view in order.
type MultiView []View

func (m MultiView) SetStatus(status string) {
	for _, v := range m {
		v.SetStatus(status)
	}
}

func (m MultiView) AppendTranscript(fragment string) {
	for _, v := range m {
		v.AppendTranscript(fragment)
	}
}

func (m MultiView) ClearTranscript() {
	for _, v := range m {
		v.ClearTranscript()
	}
}

// TerminalView writes status changes and transcript fragments as lines.
type TerminalView struct {
	mu sync.Mutex
	w  io.Writer
}

func NewTerminalView(w io.Writer) *TerminalView {
	return &TerminalView{w: w}
}

func (v *TerminalView) SetStatus(status string) {
	v.printf("[status] %s\n", status)
}

func (v *TerminalView) AppendTranscript(fragment string) {
	v.printf("[text] %s\n", fragment)
}

func (v *TerminalView) ClearTranscript() {
	v.printf("[text] (cleared)\n")
}

func (v *TerminalView) printf(format string, args ...any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintf(v.w, format, args...)
}
