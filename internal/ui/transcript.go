package ui

import "strings"

// Transcript is the ordered list of recognized fragments. It is owned by the
// poller goroutine and is not safe for concurrent use.
type Transcript struct {
	fragments []string
}

func (t *Transcript) Append(fragment string) {
	t.fragments = append(t.fragments, fragment)
}

func (t *Transcript) Clear() {
	t.fragments = nil
}

// Text returns the fragments concatenated in append order.
func (t *Transcript) Text() string {
	return strings.Join(t.fragments, "")
}

func (t *Transcript) Len() int {
	return len(t.fragments)
}
