package anthem

import (
	"fmt"
	"strings"
)

// Agent is the persona an LLM plays for one pipeline stage.
type Agent struct {
	Name      string
	Role      string
	Goal      string
	Backstory string
}

func (a Agent) SystemPrompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s.\n", a.Role)
	fmt.Fprintf(&b, "Your goal: %s\n", a.Goal)
	if a.Backstory != "" {
		b.WriteString(a.Backstory)
		b.WriteString("\n")
	}
	return b.String()
}

var (
	Researcher = Agent{
		Name: "researcher",
		Role: "a meticulous research analyst",
		Goal: "collect the key facts, themes, achievements and memorable details about a topic " +
			"that a songwriter can turn into an anthem",
		Backstory: "You have spent years briefing speechwriters. You answer with a compact, " +
			"well organised list of facts and angles, never with lyrics.",
	}

	Lyricist = Agent{
		Name: "lyricist",
		Role: "an award winning songwriter",
		Goal: "write catchy, singable anthem lyrics that fit the requested music genre",
		Backstory: "You write for real recording sessions. Your lyrics have a clear structure " +
			"marked with section tags like [Verse], [Chorus] and [Bridge], and you output only the lyrics.",
	}
)

func researchTask(topic string) string {
	return fmt.Sprintf(
		"Research the following topic for an anthem.\n\nTopic: %s\n\n"+
			"Return the most relevant facts, themes, names and emotional hooks as a short bullet list.",
		topic)
}

func lyricsTask(topic, genre, research string) string {
	return fmt.Sprintf(
		"Write the lyrics of an anthem about the topic below in the %s genre.\n\n"+
			"Topic: %s\n\nResearch notes:\n%s\n\n"+
			"Use two verses, a repeated chorus and a bridge, with [Verse], [Chorus] and [Bridge] tags. "+
			"Output only the lyrics, no title and no commentary.",
		genre, topic, research)
}

// cleanLyrics strips markdown fences models like to wrap lyrics in.
func cleanLyrics(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
