// Prompt construction for dwarf thoughts and speech, plus cleanup of raw
// model output into a single displayable line.
package llm

import (
	"fmt"
	"strings"
)

const persona = `You are narrating the inner life of a dwarf in a small mountain colony.
Answer with one short sentence in the dwarf's own voice. No quotation marks, no name prefix, no narration.`

// ThoughtContext is the situational data for a private thought.
type ThoughtContext struct {
	Name       string
	Traits     string // e.g. "curious, melancholy"
	Aspiration string
	Mood       float64
	Hunger     float64
	Activity   string
	Event      string // Event category, e.g. "hunger"
	Detail     string // e.g. "hunger rose from 58 to 61"
	Tile       string // e.g. "standing on grass near stone"
	Nearby     []string
	Recent     []string // Recent thoughts, oldest first
}

// ThoughtPrompt builds the prompt for a thought.
func ThoughtPrompt(c ThoughtContext) string {
	var b strings.Builder
	b.WriteString(persona)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "%s is a %s dwarf who dreams of becoming a %s.\n", c.Name, orDefault(c.Traits, "plain"), c.Aspiration)
	fmt.Fprintf(&b, "Mood: %s. Hunger: %s. Currently %s, %s.\n", moodWord(c.Mood), hungerWord(c.Hunger), c.Activity, c.Tile)
	if len(c.Nearby) > 0 {
		fmt.Fprintf(&b, "Nearby: %s.\n", strings.Join(c.Nearby, ", "))
	}
	if len(c.Recent) > 0 {
		b.WriteString("Recent thoughts:\n")
		for _, r := range c.Recent {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}
	fmt.Fprintf(&b, "\nWhat just happened: %s (%s).\n", c.Event, c.Detail)
	fmt.Fprintf(&b, "%s thinks:", c.Name)
	return b.String()
}

// SpeechContext is the situational data for a line of conversation.
type SpeechContext struct {
	Speaker       string
	SpeakerTraits string
	Listener      string
	Affinity      int
	Activity      string
	Tile          string
	Turn          int
	LastLine      string   // What the listener just said; empty for an opening line
	History       []string // Earlier lines, "Name: text"
}

// SpeechPrompt builds the prompt for an opening line or a reply.
func SpeechPrompt(c SpeechContext) string {
	var b strings.Builder
	b.WriteString(persona)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "%s is a %s dwarf, currently %s, %s.\n", c.Speaker, orDefault(c.SpeakerTraits, "plain"), c.Activity, c.Tile)
	fmt.Fprintf(&b, "%s regards %s as %s.\n", c.Speaker, c.Listener, affinityWord(c.Affinity))
	if len(c.History) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, h := range c.History {
			fmt.Fprintf(&b, "%s\n", h)
		}
	}
	if c.LastLine == "" {
		fmt.Fprintf(&b, "\n%s greets %s and says:", c.Speaker, c.Listener)
	} else {
		fmt.Fprintf(&b, "\n%s just said: %s\n%s replies:", c.Listener, c.LastLine, c.Speaker)
	}
	return b.String()
}

// TalkContext is the data for answering a message from an outside visitor.
type TalkContext struct {
	Name       string
	Traits     string
	Aspiration string
	Mood       float64
	Activity   string
	Message    string
	Recent     []string
}

// TalkPrompt builds the prompt for answering a visitor.
func TalkPrompt(c TalkContext) string {
	var b strings.Builder
	b.WriteString(persona)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "%s is a %s dwarf who dreams of becoming a %s. Mood: %s. Currently %s.\n",
		c.Name, orDefault(c.Traits, "plain"), c.Aspiration, moodWord(c.Mood), c.Activity)
	if len(c.Recent) > 0 {
		fmt.Fprintf(&b, "On their mind lately: %s\n", strings.Join(c.Recent, " / "))
	}
	fmt.Fprintf(&b, "\nA stranger says: %s\n%s answers:", c.Message, c.Name)
	return b.String()
}

// MaxLineLength bounds cleaned output.
const MaxLineLength = 160

// Clean reduces raw model output to one displayable line: first non-empty
// line, without a speaker prefix or wrapping quotes, cut at a word boundary.
// Returns "" when nothing usable remains.
func Clean(raw, speaker string) string {
	line := ""
	for _, l := range strings.Split(raw, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			line = l
			break
		}
	}

	for _, prefix := range []string{speaker + ":", speaker + " thinks:", speaker + " says:", "Thought:", "Reply:"} {
		if prefix != ":" && len(line) >= len(prefix) && strings.EqualFold(line[:len(prefix)], prefix) {
			line = strings.TrimSpace(line[len(prefix):])
		}
	}

	line = strings.Trim(line, "\"'*` ")
	line = strings.Join(strings.Fields(line), " ")

	if len(line) > MaxLineLength {
		cut := strings.LastIndex(line[:MaxLineLength], " ")
		if cut <= 0 {
			cut = MaxLineLength
		}
		line = strings.TrimRight(line[:cut], ",;:- ")
	}
	if len(line) < 2 {
		return ""
	}
	return line
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func moodWord(m float64) string {
	switch {
	case m >= 75:
		return "cheerful"
	case m >= 50:
		return "content"
	case m >= 25:
		return "glum"
	default:
		return "miserable"
	}
}

func hungerWord(h float64) string {
	switch {
	case h >= 85:
		return "starving"
	case h >= 60:
		return "hungry"
	case h >= 30:
		return "peckish"
	default:
		return "well fed"
	}
}

func affinityWord(a int) string {
	switch {
	case a >= 20:
		return "a close friend"
	case a >= 5:
		return "a friend"
	case a <= -5:
		return "a rival"
	default:
		return "an acquaintance"
	}
}
