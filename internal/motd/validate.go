package motd

import (
	"fmt"
	"strings"
)

const (
	minMessageLength = 50
	maxMessageLength = 800
)

// excludedPhrases are contributor categories the thanks segment must never
// mention, regardless of how similar or unique the message is.
var excludedPhrases = []string{"node operator", "pillar operator"}

// appreciationKeywords is the minimal evidence that the second segment
// actually thanks someone.
var appreciationKeywords = []string{"thanks", "thank", "appreciation", "respect", "shout"}

// ValidateFormat checks the structural contract of a generated message
// before any embedding is requested: two non-empty segments separated by a
// blank line, a main segment of at least two sentences, and a thanks segment
// that appreciates contributors without mentioning excluded categories.
// It returns nil on success or an error describing the first failed rule.
func ValidateFormat(text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return fmt.Errorf("message is empty")
	}
	if len(trimmed) < minMessageLength || len(trimmed) > maxMessageLength {
		return fmt.Errorf("message length %d outside range %d-%d", len(trimmed), minMessageLength, maxMessageLength)
	}

	main, thanks, found := splitOnBlankLine(trimmed)
	if !found {
		return fmt.Errorf("message missing blank line separator")
	}
	main = strings.TrimSpace(main)
	thanks = strings.TrimSpace(thanks)
	if main == "" || thanks == "" {
		return fmt.Errorf("message must have two non-empty segments")
	}

	if countSentenceMarks(main) < 2 {
		return fmt.Errorf("main segment has fewer than 2 sentences")
	}

	thanksLower := strings.ToLower(thanks)
	for _, phrase := range excludedPhrases {
		if strings.Contains(thanksLower, phrase) {
			return fmt.Errorf("thanks segment mentions excluded category %q", phrase)
		}
	}

	for _, keyword := range appreciationKeywords {
		if strings.Contains(thanksLower, keyword) {
			return nil
		}
	}
	return fmt.Errorf("thanks segment contains no appreciation keyword")
}

// splitOnBlankLine splits text at the first line containing only whitespace.
func splitOnBlankLine(text string) (before, after string, found bool) {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if i == 0 {
			continue
		}
		if strings.TrimSpace(line) == "" {
			return strings.Join(lines[:i], "\n"), strings.Join(lines[i+1:], "\n"), true
		}
	}
	return text, "", false
}

func countSentenceMarks(s string) int {
	count := 0
	for _, r := range s {
		switch r {
		case '.', '!', '?':
			count++
		}
	}
	return count
}
