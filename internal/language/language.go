// Package language holds the fixed set of dictation languages.
package language

import "strings"

// Language pairs a display name with its BCP-47 recognition code.
type Language struct {
	Name string
	Code string
}

var supported = []Language{
	{Name: "Català", Code: "ca-ES"},
	{Name: "Español", Code: "es-ES"},
	{Name: "English", Code: "en-US"},
}

// All returns the supported languages in display order.
func All() []Language {
	return append([]Language(nil), supported...)
}

// Lookup accepts either a code or a display name, case-insensitively.
func Lookup(value string) (Language, bool) {
	value = strings.TrimSpace(value)
	for _, l := range supported {
		if strings.EqualFold(l.Code, value) || strings.EqualFold(l.Name, value) {
			return l, true
		}
	}
	return Language{}, false
}

// Name returns the display name for code, or code itself when unknown.
func Name(code string) string {
	if l, ok := Lookup(code); ok {
		return l.Name
	}
	return code
}
