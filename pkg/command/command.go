// Package command parses typed commands out of a free-text AI response.
//
// The grammar is line-oriented: a recognized TAG at any position captures the
// rest of its line (or its bracket contents) as payload, and everything
// outside a tag is deliberately ignored — a silent response parses to an
// empty command list. Tags other than STORE[] and SCAN[] match at most once
// per response.
package command

// Kind identifies a parsed command variant.
type Kind string

// Command kinds, one per side effect the dispatcher knows how to run.
const (
	KindNote           Kind = "note"            // write a note to the vault
	KindSpeak          Kind = "speak"           // queue TTS output
	KindRemember       Kind = "remember"        // store a finding
	KindLearn          Kind = "learn"           // store a lesson
	KindStore          Kind = "store"           // store a tagged finding
	KindScan           Kind = "scan"            // memory lookup for the next cycle
	KindSpawnAssistant Kind = "spawn_assistant" // hand a task to the heavy CLI
	KindMedia          Kind = "media"           // media server control
)

// MediaAction is the logical media operation carried by a KindMedia command.
type MediaAction string

// Media actions mapped onto the media server API.
const (
	MediaPlay   MediaAction = "play"
	MediaPause  MediaAction = "pause"
	MediaResume MediaAction = "resume"
	MediaSkip   MediaAction = "skip"
	MediaStatus MediaAction = "status"
)

// DefaultNoteTitle is used when a NOTE: payload carries no "title | body"
// separator.
const DefaultNoteTitle = "Daemon Thought"

// Command is one parsed instruction. Only the fields relevant to Kind are
// set. Commands are ephemeral: they exist for a single dispatch cycle and
// are never persisted.
type Command struct {
	Kind Kind

	Title    string      // KindNote
	Text     string      // KindSpeak, KindRemember, KindLearn, KindStore (content), KindNote (body)
	Tags     []string    // KindStore
	Query    string      // KindScan
	Task     string      // KindSpawnAssistant
	Action   MediaAction // KindMedia
	Argument string      // KindMedia (play query)
}
