package command

import (
	"regexp"
	"sort"
	"strings"
)

// Tag patterns. Line tags capture to end of line; bracket tags capture the
// bracket contents (and, for STORE, the rest of the line after the colon).
var (
	noteRe     = regexp.MustCompile(`NOTE:[ \t]*(.*)`)
	speakRe    = regexp.MustCompile(`SPEAK:[ \t]*(.*)`)
	rememberRe = regexp.MustCompile(`REMEMBER:[ \t]*(.*)`)
	learnRe    = regexp.MustCompile(`LEARN:[ \t]*(.*)`)
	claudeRe   = regexp.MustCompile(`CLAUDE:[ \t]*(.*)`)
	storeRe    = regexp.MustCompile(`STORE\[([^\]]+)\]:[ \t]*(.*)`)
	scanRe     = regexp.MustCompile(`SCAN\[([^\]]+)\]:`)
	playRe     = regexp.MustCompile(`PLAY:[ \t]*(.*)`)
)

// positioned pairs a command with the byte offset of its tag so the final
// list can be ordered by where each tag appears in the response.
type positioned struct {
	at  int
	cmd Command
}

// Parse extracts the ordered command list from one AI response. Text with no
// recognized tags yields an empty list — silence is a valid response, not an
// error.
//
// The bare media detections (PAUSE/RESUME/SKIP co-occurring with EMBY, and
// NOWPLAYING) are case-insensitive substring heuristics carried over from the
// original grammar: both words appearing incidentally in prose will trigger
// them. Known trade-off, not a guarantee.
func Parse(text string) []Command {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var out []positioned

	add := func(at int, cmd Command) {
		out = append(out, positioned{at: at, cmd: cmd})
	}

	// Singleton line tags: first occurrence only.
	if m := noteRe.FindStringSubmatchIndex(text); m != nil {
		payload := strings.TrimSpace(text[m[2]:m[3]])
		title, body := DefaultNoteTitle, payload
		if i := strings.Index(payload, "|"); i >= 0 {
			title = strings.TrimSpace(payload[:i])
			body = strings.TrimSpace(payload[i+1:])
		}
		if body != "" || title != DefaultNoteTitle {
			add(m[0], Command{Kind: KindNote, Title: title, Text: body})
		}
	}
	if m := speakRe.FindStringSubmatchIndex(text); m != nil {
		if msg := strings.TrimSpace(text[m[2]:m[3]]); msg != "" {
			add(m[0], Command{Kind: KindSpeak, Text: msg})
		}
	}
	if m := rememberRe.FindStringSubmatchIndex(text); m != nil {
		if insight := strings.TrimSpace(text[m[2]:m[3]]); insight != "" {
			add(m[0], Command{Kind: KindRemember, Text: insight})
		}
	}
	if m := learnRe.FindStringSubmatchIndex(text); m != nil {
		if lesson := strings.TrimSpace(text[m[2]:m[3]]); lesson != "" {
			add(m[0], Command{Kind: KindLearn, Text: lesson})
		}
	}
	if m := claudeRe.FindStringSubmatchIndex(text); m != nil {
		if task := strings.TrimSpace(text[m[2]:m[3]]); task != "" {
			add(m[0], Command{Kind: KindSpawnAssistant, Task: task})
		}
	}

	// Repeatable bracket tags: every occurrence.
	for _, m := range storeRe.FindAllStringSubmatchIndex(text, -1) {
		content := strings.TrimSpace(text[m[4]:m[5]])
		if content == "" {
			continue
		}
		add(m[0], Command{Kind: KindStore, Tags: splitTags(text[m[2]:m[3]]), Text: content})
	}
	for _, m := range scanRe.FindAllStringSubmatchIndex(text, -1) {
		if query := strings.TrimSpace(text[m[2]:m[3]]); query != "" {
			add(m[0], Command{Kind: KindScan, Query: query})
		}
	}

	// Media control.
	if m := playRe.FindStringSubmatchIndex(text); m != nil {
		if query := strings.TrimSpace(text[m[2]:m[3]]); query != "" {
			add(m[0], Command{Kind: KindMedia, Action: MediaPlay, Argument: query})
		}
	}
	upper := strings.ToUpper(text)
	hasMedia := strings.Contains(upper, "EMBY")
	if i := strings.Index(upper, "PAUSE"); i >= 0 && hasMedia {
		add(i, Command{Kind: KindMedia, Action: MediaPause})
	}
	if i := strings.Index(upper, "RESUME"); i >= 0 && hasMedia {
		add(i, Command{Kind: KindMedia, Action: MediaResume})
	}
	if i := strings.Index(upper, "SKIP"); i >= 0 && hasMedia {
		add(i, Command{Kind: KindMedia, Action: MediaSkip})
	}
	if i := nowPlayingIndex(upper); i >= 0 {
		add(i, Command{Kind: KindMedia, Action: MediaStatus})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].at < out[j].at })

	cmds := make([]Command, 0, len(out))
	for _, p := range out {
		cmds = append(cmds, p.cmd)
	}
	return cmds
}

// nowPlayingIndex finds "NOWPLAYING" or "NOW PLAYING" in upper-cased text.
func nowPlayingIndex(upper string) int {
	if i := strings.Index(upper, "NOWPLAYING"); i >= 0 {
		return i
	}
	return strings.Index(upper, "NOW PLAYING")
}

// splitTags comma-splits and trims a STORE bracket payload, dropping empties.
func splitTags(raw string) []string {
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
