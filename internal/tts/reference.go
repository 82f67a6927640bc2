package tts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrReferenceMissing means a voice reference was configured but the file
// is not there. Callers treat it as "skip audio", not as a failure.
var ErrReferenceMissing = errors.New("tts: voice reference not found")

// VoiceReference is the sample a cloning backend imitates.
type VoiceReference struct {
	Path  string
	Text  string
	Audio []byte
}

// ReferenceLoader reads the reference once, on first use, and shares it
// read-only across every synthesis call.
type ReferenceLoader struct {
	path string
	text string

	once sync.Once
	ref  *VoiceReference
	err  error
}

func NewReferenceLoader(path, text string) *ReferenceLoader {
	return &ReferenceLoader{path: path, text: text}
}

// Load returns (nil, nil) when no reference is configured.
func (l *ReferenceLoader) Load() (*VoiceReference, error) {
	if l == nil || l.path == "" {
		return nil, nil
	}
	l.once.Do(func() {
		data, err := os.ReadFile(l.path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			l.err = fmt.Errorf("%w: %s", ErrReferenceMissing, l.path)
		case err != nil:
			l.err = fmt.Errorf("read voice reference: %w", err)
		default:
			l.ref = &VoiceReference{Path: l.path, Text: transcript(l.text), Audio: data}
		}
	})
	return l.ref, l.err
}

// transcript returns text, or the contents of the file it names when it
// points at a .txt transcript.
func transcript(text string) string {
	if !strings.EqualFold(filepath.Ext(text), ".txt") {
		return text
	}
	data, err := os.ReadFile(text)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
