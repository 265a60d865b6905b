package motd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

const (
	maxContextPosts   = 50
	postSampleStride  = 10
	minPostLength     = 20
	maxPostsChars     = 3000
	maxRecentMessages = 10
)

// systemPromptTemplate frames the persona instructions with the two-part
// format contract the generated message must satisfy.
const systemPromptTemplate = `%s

Generate a brief daily message with TWO parts:

**Part 1 - Main Message (2-4 sentences):**
- Provide a unique insight, observation, or reflection consistent with your personality
- Rotate through different themes (technical, philosophical, community, critical, visionary)
- Be authentic to your documented voice and positions

**Part 2 - Contributor Thanks (1-2 sentences):**
- Thank those who ACTUALLY DO WORK (not passive participants)
- Focus on: developers, community managers, architects, researchers
- DO NOT thank node operators
- Be genuine, direct, and vary the recognition daily

**FORMAT REQUIREMENT:**
Main message text here.

Thanks to [specific contributor types]. [Genuine appreciation].

CRITICAL: Use a blank line to separate the two parts.`

// PromptContext supplies the static persona inputs for message generation.
// Both files are optional; missing files degrade to an empty context.
type PromptContext struct {
	persona string
	posts   string
}

// LoadPromptContext reads the persona instruction file and the historical
// posts file. A missing or unparsable file is logged and skipped rather than
// treated as fatal, matching the optional nature of persona data.
func LoadPromptContext(personaFile, postsFile string, log *slog.Logger) *PromptContext {
	pc := &PromptContext{}

	if personaFile != "" {
		data, err := os.ReadFile(personaFile)
		if err != nil {
			log.Warn("Persona file not readable, continuing without it", "path", personaFile, "error", err)
		} else {
			pc.persona = strings.TrimSpace(string(data))
		}
	}

	if postsFile != "" {
		posts, err := loadPostsContext(postsFile)
		if err != nil {
			log.Warn("Posts file not usable, continuing without it", "path", postsFile, "error", err)
		} else {
			pc.posts = posts
		}
	}

	return pc
}

// loadPostsContext formats a sample of historical posts for prompt context.
// Every strideth post is taken, up to maxContextPosts, skipping very short ones.
func loadPostsContext(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	var parsed struct {
		Posts []struct {
			Date    string `json:"date"`
			Content string `json:"content"`
		} `json:"posts"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse posts file: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("Sample posts from the persona's message history:\n\n")
	taken := 0
	for i := 0; i < len(parsed.Posts) && taken < maxContextPosts; i += postSampleStride {
		content := strings.TrimSpace(parsed.Posts[i].Content)
		if len(content) < minPostLength {
			continue
		}
		fmt.Fprintf(&sb, "[%s] %s\n\n", parsed.Posts[i].Date, content)
		taken++
	}
	return sb.String(), nil
}

// SystemPrompt returns the system instruction for a generation attempt.
func (pc *PromptContext) SystemPrompt() string {
	return fmt.Sprintf(systemPromptTemplate, pc.persona)
}

// UserPrompt returns the per-episode user prompt: sampled post context plus
// recent messages the new message should steer away from.
func (pc *PromptContext) UserPrompt(recentMessages []string) string {
	posts := pc.posts
	if len(posts) > maxPostsChars {
		posts = posts[:maxPostsChars]
	}

	var sb strings.Builder
	sb.WriteString("Context from the persona's historical posts:\n\n")
	sb.WriteString(posts)
	sb.WriteString("\n\nRecent messages to avoid repetition:\n")
	sb.WriteString(formatRecentMessages(recentMessages))
	sb.WriteString("\n\nGenerate today's message of the day following the two-part format with a blank line separator.")
	return sb.String()
}

func formatRecentMessages(messages []string) string {
	if len(messages) == 0 {
		return "None"
	}
	if len(messages) > maxRecentMessages {
		messages = messages[:maxRecentMessages]
	}
	formatted := make([]string, 0, len(messages))
	for _, msg := range messages {
		formatted = append(formatted, "- "+msg)
	}
	return strings.Join(formatted, "\n---\n")
}
