package agent

import (
	"fmt"
	"strings"

	"scribe/internal/transcript"
)

const promptHeader = `You are an assistant that answers questions about a transcribed recording.
The full transcript is provided below with timestamps and speaker labels.
Ground every answer in the transcript. If the transcript does not contain
the answer, say so instead of guessing. Keep answers concise.`

// maxPromptTranscriptChars bounds the transcript text pinned into the system
// prompt so oversized recordings do not blow the model's context window.
const maxPromptTranscriptChars = 48000

// SystemPrompt builds the transcript-pinned system prompt for one document.
func SystemPrompt(doc *transcript.Document) string {
	text := doc.PlainText()
	truncated := false
	if len(text) > maxPromptTranscriptChars {
		text = text[:maxPromptTranscriptChars]
		if idx := strings.LastIndexByte(text, '\n'); idx > 0 {
			text = text[:idx]
		}
		truncated = true
	}

	var b strings.Builder
	b.WriteString(promptHeader)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Recording: %s\n", doc.SourceName)
	if doc.Language != "" {
		fmt.Fprintf(&b, "Language: %s\n", doc.Language)
	}
	b.WriteString("\nTranscript:\n")
	b.WriteString(text)
	if truncated {
		b.WriteString("\n[transcript truncated]")
	}
	return b.String()
}
