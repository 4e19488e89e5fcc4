package chain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// NotePrefix marks transaction notes carrying Gaius XP payloads. The indexer
// note-prefix filter matches on it, so it must stay stable across versions;
// the payload carries its own version field.
const NotePrefix = "gaius/xp:"

// MaxNoteLength is the Algorand transaction note field limit.
const MaxNoteLength = 1024

// XPNote is the JSON payload embedded in an XP transaction note. Points may
// be negative for deductions. Tier is set when the award crossed a tier
// boundary at submission time; replay derives tiers independently and does
// not trust it.
type XPNote struct {
	Version int    `json:"v"`
	Program uint64 `json:"program"`
	Points  int64  `json:"points"`
	Reason  string `json:"reason,omitempty"`
	Tier    string `json:"tier,omitempty"`
}

// EncodeXPNote serializes a note payload with the Gaius prefix.
func EncodeXPNote(n XPNote) ([]byte, error) {
	if n.Version == 0 {
		n.Version = 1
	}
	if n.Program == 0 {
		return nil, fmt.Errorf("xp note: program asset id is required")
	}
	if n.Points == 0 {
		return nil, fmt.Errorf("xp note: points must be non-zero")
	}
	body, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("xp note: %w", err)
	}
	note := append([]byte(NotePrefix), body...)
	if len(note) > MaxNoteLength {
		return nil, fmt.Errorf("xp note: %d bytes exceeds note limit", len(note))
	}
	return note, nil
}

// DecodeXPNote parses a transaction note. The second return is false for
// foreign or malformed notes; replay treats those as skippable, never fatal.
func DecodeXPNote(raw []byte) (XPNote, bool) {
	if !bytes.HasPrefix(raw, []byte(NotePrefix)) {
		return XPNote{}, false
	}
	var n XPNote
	if err := json.Unmarshal(raw[len(NotePrefix):], &n); err != nil {
		return XPNote{}, false
	}
	if n.Version != 1 || n.Program == 0 || n.Points == 0 {
		return XPNote{}, false
	}
	return n, true
}
