package command

import (
	"reflect"
	"testing"
)

func kinds(cmds []Command) []Kind {
	out := make([]Kind, 0, len(cmds))
	for _, c := range cmds {
		out = append(out, c.Kind)
	}
	return out
}

func TestParseNoTagsYieldsEmpty(t *testing.T) {
	t.Parallel()

	for _, text := range []string{
		"",
		"   \n\t  ",
		"Just musing about the weather today. Nothing to report.",
		"I considered storing this but decided against it.",
	} {
		if got := Parse(text); len(got) != 0 {
			t.Errorf("Parse(%q) = %v, want empty", text, got)
		}
	}
}

func TestParseSpeakAndNote(t *testing.T) {
	t.Parallel()

	cmds := Parse("SPEAK: hello there\nNOTE: Test | this is a note")
	if len(cmds) != 2 {
		t.Fatalf("got %d commands, want 2: %+v", len(cmds), cmds)
	}
	if cmds[0].Kind != KindSpeak || cmds[0].Text != "hello there" {
		t.Errorf("first command = %+v, want Speak(hello there)", cmds[0])
	}
	if cmds[1].Kind != KindNote || cmds[1].Title != "Test" || cmds[1].Text != "this is a note" {
		t.Errorf("second command = %+v, want Note(Test | this is a note)", cmds[1])
	}
}

func TestParseNoteWithoutPipeUsesDefaultTitle(t *testing.T) {
	t.Parallel()

	cmds := Parse("NOTE: everything on one line")
	if len(cmds) != 1 {
		t.Fatalf("got %d commands, want 1", len(cmds))
	}
	if cmds[0].Title != DefaultNoteTitle || cmds[0].Text != "everything on one line" {
		t.Errorf("note = %+v, want default title with full payload", cmds[0])
	}
}

func TestParseStoreMultiplicity(t *testing.T) {
	t.Parallel()

	text := "STORE[bug,auth]: token validation fails on unicode\n" +
		"some prose in between\n" +
		"STORE[perf]: cache misses dominate\n" +
		"STORE[infra, deploy]: port 8888 works when 8080 is busy"

	cmds := Parse(text)
	if len(cmds) != 3 {
		t.Fatalf("got %d commands, want 3: %+v", len(cmds), cmds)
	}
	wantTags := [][]string{{"bug", "auth"}, {"perf"}, {"infra", "deploy"}}
	for i, c := range cmds {
		if c.Kind != KindStore {
			t.Errorf("command %d kind = %s, want store", i, c.Kind)
		}
		if !reflect.DeepEqual(c.Tags, wantTags[i]) {
			t.Errorf("command %d tags = %v, want %v (source order)", i, c.Tags, wantTags[i])
		}
	}
	if cmds[0].Text != "token validation fails on unicode" {
		t.Errorf("store content = %q", cmds[0].Text)
	}
}

func TestParseScanRepeats(t *testing.T) {
	t.Parallel()

	cmds := Parse("SCAN[memory architecture]:\nSCAN[rev preferences]:")
	if len(cmds) != 2 {
		t.Fatalf("got %d commands, want 2", len(cmds))
	}
	if cmds[0].Query != "memory architecture" || cmds[1].Query != "rev preferences" {
		t.Errorf("scan queries = %q, %q", cmds[0].Query, cmds[1].Query)
	}
}

func TestParseRememberLearnAndSpawn(t *testing.T) {
	t.Parallel()

	text := "REMEMBER: Rev prefers dark themes\nLEARN: always backup before editing\nCLAUDE: refactor the config loader"
	cmds := Parse(text)
	want := []Kind{KindRemember, KindLearn, KindSpawnAssistant}
	if !reflect.DeepEqual(kinds(cmds), want) {
		t.Fatalf("kinds = %v, want %v", kinds(cmds), want)
	}
	if cmds[2].Task != "refactor the config loader" {
		t.Errorf("task = %q", cmds[2].Task)
	}
}

func TestParseSourceOrderAcrossTagTypes(t *testing.T) {
	t.Parallel()

	// LEARN before REMEMBER must stay in source order so the dispatcher can
	// apply its placeholder-finding rule.
	cmds := Parse("LEARN: lesson first\nREMEMBER: fact second")
	want := []Kind{KindLearn, KindRemember}
	if !reflect.DeepEqual(kinds(cmds), want) {
		t.Fatalf("kinds = %v, want %v", kinds(cmds), want)
	}
}

func TestParseMediaCommands(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text   string
		action MediaAction
		arg    string
	}{
		{"PLAY: bohemian rhapsody", MediaPlay, "bohemian rhapsody"},
		{"please pause the emby stream", MediaPause, ""},
		{"resume Emby playback", MediaResume, ""},
		{"skip this one on emby", MediaSkip, ""},
		{"what's NOWPLAYING?", MediaStatus, ""},
		{"now playing please", MediaStatus, ""},
	}
	for _, tt := range tests {
		cmds := Parse(tt.text)
		if len(cmds) != 1 {
			t.Errorf("Parse(%q) = %d commands, want 1: %+v", tt.text, len(cmds), cmds)
			continue
		}
		c := cmds[0]
		if c.Kind != KindMedia || c.Action != tt.action || c.Argument != tt.arg {
			t.Errorf("Parse(%q) = %+v, want media %s %q", tt.text, c, tt.action, tt.arg)
		}
	}
}

func TestParseBareMediaWordsWithoutEmbyIgnored(t *testing.T) {
	t.Parallel()

	// The co-occurrence heuristic needs both words.
	if got := Parse("let's pause and reflect for a moment"); len(got) != 0 {
		t.Errorf("pause without emby parsed as %v", got)
	}
}

func TestParseSingletonTagsMatchOnce(t *testing.T) {
	t.Parallel()

	cmds := Parse("SPEAK: first\nSPEAK: second")
	if len(cmds) != 1 || cmds[0].Text != "first" {
		t.Errorf("repeated SPEAK parsed as %+v, want single first match", cmds)
	}
}
