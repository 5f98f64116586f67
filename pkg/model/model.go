package model

import (
	"fmt"
	"strings"
)

// MediaKind identifies what an inbound payload carries
type MediaKind string

const (
	MediaVoice     MediaKind = "voice"
	MediaVideoNote MediaKind = "video_note"
	MediaText      MediaKind = "text"
)

// Label names one fragment of a digest
type Label string

const (
	LabelTranscript Label = "transcript"
	LabelVisuals    Label = "visuals"
	LabelSummary    Label = "summary"
)

// LabelOrder is the order in which fragments are rendered
var LabelOrder = []Label{LabelTranscript, LabelVisuals, LabelSummary}

// Media is an in-memory binary payload handed to the AI backend
type Media struct {
	Data     []byte
	MIMEType string
}

// Task is a single generation request issued for one media item
type Task struct {
	Label     Label
	Prompt    string
	MaxTokens int
}

// Fragment is the outcome of one Task: either generated text or an error
type Fragment struct {
	Label Label
	Text  string
	Err   error
}

// Failed returns true if the task behind the fragment failed
func (f Fragment) Failed() bool {
	return f.Err != nil
}

// Empty returns true if the task succeeded but produced no visible text
func (f Fragment) Empty() bool {
	return f.Err == nil && strings.TrimSpace(f.Text) == ""
}

// Succeeded builds a successful fragment
func Succeeded(label Label, text string) Fragment {
	return Fragment{Label: label, Text: text}
}

// Failure builds a failed fragment
func Failure(label Label, err error) Fragment {
	if err == nil {
		err = fmt.Errorf("%s: unknown error", label)
	}
	return Fragment{Label: label, Err: err}
}
