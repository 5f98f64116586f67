package digest

import (
	"fmt"
	"strings"

	"digestbot/internal/llm"
	"digestbot/pkg/model"
)

// NothingExtracted replaces the reply when there are no fragments at all.
const NothingExtracted = "🤷 Nothing could be extracted from this message."

var headers = map[model.Label]string{
	model.LabelTranscript: "📄 Transcript:",
	model.LabelVisuals:    "🖼️ Visuals:",
	model.LabelSummary:    "📌 Summary:",
}

// Header returns the icon and title rendered above a fragment
func Header(label model.Label) string {
	if h, ok := headers[label]; ok {
		return h
	}
	return string(label) + ":"
}

// Aggregate renders fragments in the fixed transcript, visuals, summary
// order, one block per label, separated by a blank line. Failed fragments
// and fragments without text render an inline error marker, so every
// requested label appears exactly once.
func Aggregate(fragments []model.Fragment) string {
	byLabel := make(map[model.Label]model.Fragment, len(fragments))
	for _, f := range fragments {
		if _, seen := byLabel[f.Label]; !seen {
			byLabel[f.Label] = f
		}
	}

	blocks := make([]string, 0, len(model.LabelOrder))
	for _, label := range model.LabelOrder {
		f, ok := byLabel[label]
		if !ok {
			continue
		}

		var body string
		switch {
		case f.Failed():
			body = failureMarker(label, f.Err)
		case f.Empty():
			body = failureMarker(label, llm.ErrEmptyResponse)
		default:
			body = strings.TrimSpace(f.Text)
		}

		blocks = append(blocks, Header(label)+"\n"+body)
	}

	if len(blocks) == 0 {
		return NothingExtracted
	}

	return strings.TrimRight(strings.Join(blocks, "\n\n"), " \t\r\n")
}

func failureMarker(label model.Label, err error) string {
	return fmt.Sprintf("⚠️ %s failed: %v", label, err)
}
