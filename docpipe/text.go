package docpipe

import (
	"os"
	"strings"
)

// extractText handles plain text files. Line structure is preserved so
// paragraph breaks in the submission survive into the draft.
func extractText(txtPath string) (*Document, error) {
	data, err := os.ReadFile(txtPath)
	if err != nil {
		return nil, err
	}

	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if t := strings.TrimSpace(line); t != "" {
			lines = append(lines, t)
		}
	}

	title, titleLines := splitTitle(lines)
	body := stripTitleLines(lines, titleLines)

	return &Document{
		Title:          title,
		TitleLineCount: titleLines,
		Text:           strings.Join(body, "\n"),
	}, nil
}
