package suno

import (
	"fmt"
	"strings"
)

// FormatReport renders a markdown summary of a generation result for display.
func FormatReport(genre string, res *Result) string {
	if res.Empty() {
		return "No songs were generated"
	}

	var b strings.Builder
	b.WriteString("Song Generated Successfully!\n\n")
	fmt.Fprintf(&b, "**Genre:** %s\n", genre)
	fmt.Fprintf(&b, "**Task ID:** %s\n\n", res.TaskID)
	b.WriteString("**Download Your Song(s):**\n")

	for i, song := range res.Artifacts {
		fmt.Fprintf(&b, "\n**Song %d:**\n", i+1)
		fmt.Fprintf(&b, "- Title: %s\n", orDefault(song.Title, DefaultTitle))
		fmt.Fprintf(&b, "- Duration: %.2fs\n", song.DurationSeconds)
		fmt.Fprintf(&b, "- Audio URL: %s\n", orDefault(song.AudioURL, "N/A"))
		fmt.Fprintf(&b, "- Cover Image: %s\n", orDefault(song.ImageURL, "N/A"))
	}

	b.WriteString("\n**Note:** URLs may expire after some time. Download soon!\n")
	return b.String()
}

// FormatError renders a terminal generation error for display.
func FormatError(err error) string {
	return "Error generating song: " + err.Error()
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
