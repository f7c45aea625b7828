package slack

import (
	"fmt"

	goslack "github.com/slack-go/slack"
)

const maxBlockTextLength = 2900

// BuildTerminalMessage creates Block Kit blocks for a job's terminal
// notification: FINALIZE_DONE (status "done") or DEAD_LETTERED
// (status "dead_lettered").
func BuildTerminalMessage(input JobTerminalInput, dashboardURL string) []goslack.Block {
	emoji, label := ":x:", "Job Dead-Lettered"
	if input.Status == "done" {
		emoji, label = ":white_check_mark:", "Document Ready"
	}

	headerText := fmt.Sprintf("%s *%s* — %s", emoji, label, input.Title)
	if input.Status != "done" && input.ErrorMessage != "" {
		headerText += fmt.Sprintf("\n\n*Error:*\n%s", truncateForSlack(input.ErrorMessage))
	}

	blocks := []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, headerText, false, false),
			nil, nil,
		),
	}

	url := fmt.Sprintf("%s/jobs/%s", dashboardURL, input.JobID)
	buttonText := "View Document"
	if input.Status != "done" {
		buttonText = "View Job"
	}
	btn := goslack.NewButtonBlockElement("", "", goslack.NewTextBlockObject(goslack.PlainTextType, buttonText, false, false))
	btn.URL = url
	blocks = append(blocks, goslack.NewActionBlock("", btn))

	return blocks
}

func truncateForSlack(text string) string {
	if len(text) <= maxBlockTextLength {
		return text
	}
	return text[:maxBlockTextLength] + "\n\n_... (truncated — view full job in dashboard)_"
}
