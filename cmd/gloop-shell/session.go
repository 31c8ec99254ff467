package main

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gloop/pkg/hub"
)

// defaultPersona is used when no shell_persona.md exists in the base dir.
const defaultPersona = "You are Gloop, Rev's assistant. Keep responses concise and conversational."

// restPattern matches "REST 15m", "REST 1h", "REST 30". A bare number means
// minutes.
var restPattern = regexp.MustCompile(`(?i)REST\s+(\d+)\s*(m|min|h|hr|hour)?`)

// loadPersona reads the persona file, falling back to the built-in one.
func loadPersona(path string) string {
	data, err := os.ReadFile(path)
	if err != nil || len(strings.TrimSpace(string(data))) == 0 {
		return defaultPersona
	}
	return string(data)
}

// parseRest extracts a rest duration from a REST command. ok is false when
// the text is not a well-formed REST command.
func parseRest(text string) (time.Duration, bool) {
	m := restPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, false
	}
	switch strings.ToLower(m[2]) {
	case "h", "hr", "hour":
		return time.Duration(n) * time.Hour, true
	default:
		return time.Duration(n) * time.Minute, true
	}
}

// isRestCommand reports whether the input starts a REST command.
func isRestCommand(text string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(text)), "REST ")
}

// isWakeCommand reports whether the input ends a rest early.
func isWakeCommand(text string) bool {
	upper := strings.ToUpper(strings.TrimSpace(text))
	return upper == "WAKE" || upper == "WAKE UP"
}

// isRateLimited detects the assistant's rate-limit refusal in its output.
func isRateLimited(output string) bool {
	lower := strings.ToLower(output)
	return strings.Contains(lower, "limit reached") || strings.Contains(lower, "resets 4am")
}

// timeContext describes how long ago Rev last messaged, for the prompt's
// situational-awareness block.
func timeContext(elapsed time.Duration, known bool) string {
	if !known {
		return "No conversation history yet"
	}
	mins := int(elapsed.Minutes())
	switch {
	case mins < 1:
		return "Rev just messaged (seconds ago)"
	case mins < 5:
		return fmt.Sprintf("Rev messaged %d min ago - recent", mins)
	case mins < 30:
		return fmt.Sprintf("Rev messaged %d mins ago - might be busy", mins)
	default:
		return fmt.Sprintf("Rev messaged %d mins ago - been a while, they may have stepped away", mins)
	}
}

// buildPrompt assembles the full assistant prompt: persona, situational
// awareness, then the task. The assistant's stdout becomes the chat window.
func buildPrompt(persona, situation, task string, now time.Time) string {
	currentTime := strings.TrimPrefix(now.Format("3:04 PM"), "0")
	currentDate := now.Format("Monday, January 2, 2006")
	return fmt.Sprintf(`=== SYSTEM CONTEXT ===
%s

SITUATIONAL AWARENESS:
- Current time: %s (%s)
- %s
=== END CONTEXT ===

YOUR TASK:
%s

Your stdout IS the shell window. Respond naturally.`, persona, currentTime, currentDate, situation, task)
}

// tickTask decides what, if anything, the periodic tick should hand the
// assistant: an in-progress shared priority first, then an unanswered message
// from Rev. Empty string means stay silent and save the spawn.
func tickTask(coord *hub.Hub, convo *conversation) string {
	if coord != nil {
		if state, err := coord.ReadState(); err == nil {
			for _, p := range state.Priorities {
				if strings.EqualFold(p.Status, "in_progress") {
					return fmt.Sprintf("Continue working on: %s\nUpdate shared_state.json when done. Keep your response focused on the work.", p.Task)
				}
			}
		}
	}
	if convo.lastRole() == "rev" {
		return convo.context() + "\n\nRev's message above needs a response. Reply to them."
	}
	return ""
}
