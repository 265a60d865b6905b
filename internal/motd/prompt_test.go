package motd_test

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/edgard/motdbot/internal/motd"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoadPromptContext(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	personaPath := filepath.Join(dir, "persona.txt")
	postsPath := filepath.Join(dir, "posts.json")

	if err := os.WriteFile(personaPath, []byte("You are a blunt protocol architect.\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	posts := `{"posts":[{"date":"2024-01-01","content":"A long enough historical post about the network."},{"date":"2024-01-02","content":"short"}]}`
	if err := os.WriteFile(postsPath, []byte(posts), 0o600); err != nil {
		t.Fatal(err)
	}

	pc := motd.LoadPromptContext(personaPath, postsPath, discardLogger())

	system := pc.SystemPrompt()
	if !strings.Contains(system, "You are a blunt protocol architect.") {
		t.Errorf("system prompt missing persona text:\n%s", system)
	}
	if !strings.Contains(system, "blank line") {
		t.Errorf("system prompt missing format contract:\n%s", system)
	}

	user := pc.UserPrompt(nil)
	if !strings.Contains(user, "A long enough historical post about the network.") {
		t.Errorf("user prompt missing sampled post:\n%s", user)
	}
	if !strings.Contains(user, "None") {
		t.Errorf("user prompt should report no recent messages:\n%s", user)
	}
}

func TestLoadPromptContextMissingFiles(t *testing.T) {
	t.Parallel()

	pc := motd.LoadPromptContext("/nonexistent/persona.txt", "/nonexistent/posts.json", discardLogger())

	if got := pc.SystemPrompt(); got == "" {
		t.Error("system prompt should still render without persona file")
	}
	if got := pc.UserPrompt([]string{"yesterday's message"}); !strings.Contains(got, "yesterday's message") {
		t.Errorf("user prompt missing recent message:\n%s", got)
	}
}

func TestUserPromptRecentMessageCap(t *testing.T) {
	t.Parallel()

	pc := motd.LoadPromptContext("", "", discardLogger())

	recent := make([]string, 15)
	for i := range recent {
		recent[i] = fmt.Sprintf("message number %d", i)
	}

	user := pc.UserPrompt(recent)
	if !strings.Contains(user, "message number 9") {
		t.Errorf("user prompt should include the tenth recent message:\n%s", user)
	}
	if strings.Contains(user, "message number 10") {
		t.Errorf("user prompt should cap recent messages at ten:\n%s", user)
	}
}
