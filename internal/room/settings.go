package room

import (
	"bytes"
	"encoding/json"
	"fmt"
)

var jsonNull = []byte("null")

// applyPatch shallow-merges a JSON settings patch. Key presence decides
// which fields change; an explicit gameMode null returns the room to the
// mode-selection screen. Unknown keys are ignored.
func (s *Settings) applyPatch(patch json.RawMessage) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(patch, &fields); err != nil {
		return fmt.Errorf("decode settings patch: %w", err)
	}

	if raw, ok := fields["gameMode"]; ok {
		if bytes.Equal(bytes.TrimSpace(raw), jsonNull) {
			s.GameMode = ""
		} else if err := json.Unmarshal(raw, &s.GameMode); err != nil {
			return fmt.Errorf("decode gameMode: %w", err)
		}
	}
	if raw, ok := fields["rounds"]; ok {
		if err := json.Unmarshal(raw, &s.Rounds); err != nil {
			return fmt.Errorf("decode rounds: %w", err)
		}
	}
	if raw, ok := fields["timePerRound"]; ok {
		if err := json.Unmarshal(raw, &s.TimePerRound); err != nil {
			return fmt.Errorf("decode timePerRound: %w", err)
		}
	}
	if raw, ok := fields["difficulty"]; ok {
		if err := json.Unmarshal(raw, &s.Difficulty); err != nil {
			return fmt.Errorf("decode difficulty: %w", err)
		}
	}
	return nil
}
