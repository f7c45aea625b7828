package slack

import (
	"strings"
	"testing"
	"unicode/utf8"

	goslack "github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildTerminalMessage_Done(t *testing.T) {
	input := JobTerminalInput{
		JobID:  "job-1",
		Title:  "Async Patterns",
		Status: "done",
	}
	blocks := BuildTerminalMessage(input, "https://dash.example.com")

	require.Len(t, blocks, 2)

	header := blocks[0].(*goslack.SectionBlock)
	assert.Contains(t, header.Text.Text, ":white_check_mark:")
	assert.Contains(t, header.Text.Text, "Document Ready")
	assert.Contains(t, header.Text.Text, "Async Patterns")

	action := blocks[1].(*goslack.ActionBlock)
	require.Len(t, action.Elements.ElementSet, 1)
	btn, ok := action.Elements.ElementSet[0].(*goslack.ButtonBlockElement)
	require.True(t, ok)
	assert.Equal(t, "View Document", btn.Text.Text)
	assert.Contains(t, btn.URL, "https://dash.example.com/jobs/job-1")
}

func TestBuildTerminalMessage_DeadLettered(t *testing.T) {
	input := JobTerminalInput{
		JobID:        "job-2",
		Title:        "Service Mesh Guide",
		Status:       "dead_lettered",
		ErrorMessage: "verify stage exceeded max delivery count",
	}
	blocks := BuildTerminalMessage(input, "https://dash.example.com")

	require.Len(t, blocks, 2)

	header := blocks[0].(*goslack.SectionBlock)
	assert.Contains(t, header.Text.Text, ":x:")
	assert.Contains(t, header.Text.Text, "Job Dead-Lettered")
	assert.Contains(t, header.Text.Text, "verify stage exceeded max delivery count")

	action := blocks[1].(*goslack.ActionBlock)
	btn := action.Elements.ElementSet[0].(*goslack.ButtonBlockElement)
	assert.Equal(t, "View Job", btn.Text.Text)
}

func TestTruncateForSlack(t *testing.T) {
	t.Run("short text unchanged", func(t *testing.T) {
		assert.Equal(t, "hello", truncateForSlack("hello"))
	})

	t.Run("exact limit unchanged", func(t *testing.T) {
		text := strings.Repeat("a", maxBlockTextLength)
		assert.Equal(t, text, truncateForSlack(text))
	})

	t.Run("over limit truncated", func(t *testing.T) {
		text := strings.Repeat("a", maxBlockTextLength+100)
		result := truncateForSlack(text)
		assert.True(t, len(result) < len(text))
		assert.Contains(t, result, "truncated")
	})

	t.Run("multi-byte runes not split", func(t *testing.T) {
		text := strings.Repeat("🔥", maxBlockTextLength+10)
		result := truncateForSlack(text)
		assert.Contains(t, result, "truncated")
		assert.True(t, utf8.ValidString(result), "result should be valid UTF-8")
		prefix := strings.Split(result, "\n\n_...")[0]
		assert.Equal(t, maxBlockTextLength, utf8.RuneCountInString(prefix))
	})
}
