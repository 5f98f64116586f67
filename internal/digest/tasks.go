package digest

import (
	"fmt"

	"digestbot/pkg/model"
)

const (
	promptVoiceTranscript = "Transcribe this voice message verbatim. Keep the original language, " +
		"add punctuation, and do not add any commentary."

	promptVoiceSummary = "Summarize what is said in this voice message in a few short sentences. " +
		"Base the summary only on the speech and answer in the language of the speaker."

	promptVideoTranscript = "Transcribe the audio track of this video verbatim. Keep the original language, " +
		"add punctuation, and do not describe the picture."

	promptVideoVisuals = "Describe the visual content of this video: the people, objects, setting, " +
		"on-screen text and any notable actions. Do not transcribe speech."

	promptVideoSummary = "Summarize this video in a few short sentences, combining what is said " +
		"in the audio with what is shown on screen."

	promptTextSummary = "Summarize the following text in a few short sentences, in the language of the text:\n\n%s"
)

const (
	transcriptTokens   = 800
	visualsTokens      = 800
	voiceSummaryTokens = 600
	videoSummaryTokens = 800
)

// TasksFor returns the fixed task set for a media kind. Text carries its
// payload inside the prompt.
func TasksFor(kind model.MediaKind, text string) ([]model.Task, error) {
	switch kind {
	case model.MediaVoice:
		return []model.Task{
			{Label: model.LabelTranscript, Prompt: promptVoiceTranscript, MaxTokens: transcriptTokens},
			{Label: model.LabelSummary, Prompt: promptVoiceSummary, MaxTokens: voiceSummaryTokens},
		}, nil
	case model.MediaVideoNote:
		return []model.Task{
			{Label: model.LabelTranscript, Prompt: promptVideoTranscript, MaxTokens: transcriptTokens},
			{Label: model.LabelVisuals, Prompt: promptVideoVisuals, MaxTokens: visualsTokens},
			{Label: model.LabelSummary, Prompt: promptVideoSummary, MaxTokens: videoSummaryTokens},
		}, nil
	case model.MediaText:
		return []model.Task{
			{Label: model.LabelSummary, Prompt: fmt.Sprintf(promptTextSummary, text), MaxTokens: voiceSummaryTokens},
		}, nil
	default:
		return nil, fmt.Errorf("no tasks for media kind %q", kind)
	}
}

// MIMEType is the payload type sent to the backend for a media kind
func MIMEType(kind model.MediaKind) string {
	switch kind {
	case model.MediaVoice:
		return "audio/ogg"
	case model.MediaVideoNote:
		return "video/mp4"
	default:
		return ""
	}
}

// Ext is the temp file extension for a media kind
func Ext(kind model.MediaKind) string {
	switch kind {
	case model.MediaVoice:
		return ".ogg"
	case model.MediaVideoNote:
		return ".mp4"
	default:
		return ".bin"
	}
}
