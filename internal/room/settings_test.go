package room

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyPatchMergesPresentKeys(t *testing.T) {
	s := Settings{Rounds: 5, TimePerRound: 15, Difficulty: "normal"}

	err := s.applyPatch(json.RawMessage(`{"gameMode":"binary_blitz","rounds":3}`))
	require.NoError(t, err)

	assert.Equal(t, "binary_blitz", s.GameMode)
	assert.Equal(t, 3, s.Rounds)
	assert.Equal(t, 15, s.TimePerRound, "absent keys stay untouched")
	assert.Equal(t, "normal", s.Difficulty)
}

func TestApplyPatchNullClearsGameMode(t *testing.T) {
	s := Settings{GameMode: "prime_master", Rounds: 5}

	err := s.applyPatch(json.RawMessage(`{"gameMode":null}`))
	require.NoError(t, err)

	assert.Empty(t, s.GameMode)
	assert.Equal(t, 5, s.Rounds)
}

func TestApplyPatchIgnoresUnknownKeys(t *testing.T) {
	s := Settings{Rounds: 5}

	err := s.applyPatch(json.RawMessage(`{"bogus":true,"timePerRound":30}`))
	require.NoError(t, err)
	assert.Equal(t, 30, s.TimePerRound)
}

func TestApplyPatchRejectsBadJSON(t *testing.T) {
	s := Settings{Rounds: 5}

	assert.Error(t, s.applyPatch(json.RawMessage(`not json`)))
	assert.Error(t, s.applyPatch(json.RawMessage(`{"rounds":"five"}`)))
	assert.Equal(t, 5, s.Rounds)
}
