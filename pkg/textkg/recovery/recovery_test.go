package recovery_test

import (
	"errors"
	"testing"

	tkerrors "github.com/randalmurphal/textkg/pkg/textkg/errors"
	"github.com/randalmurphal/textkg/pkg/textkg/recovery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRecoverDirect verifies clean JSON parses on the first rung.
func TestRecoverDirect(t *testing.T) {
	res, err := recovery.Recover(`{"entities": [], "states": [], "relations": []}`)
	require.NoError(t, err)
	assert.Equal(t, recovery.StrategyDirect, res.Strategy)

	obj, ok := res.Object()
	require.True(t, ok)
	assert.Contains(t, obj, "entities")
}

// TestRecoverFenced verifies extraction from markdown code fences.
func TestRecoverFenced(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{
			"json fence",
			"Here is the graph:\n```json\n{\"entities\": [{\"id\": \"L-A\"}]}\n```\nDone.",
		},
		{
			"bare fence",
			"```\n{\"entities\": []}\n```",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := recovery.Recover(tt.in)
			require.NoError(t, err)
			assert.Equal(t, recovery.StrategyFenced, res.Strategy)
			_, ok := res.Object()
			assert.True(t, ok)
		})
	}
}

// TestRecoverBalanced verifies the balanced-delimiter scan finds an
// embedded object surrounded by prose.
func TestRecoverBalanced(t *testing.T) {
	in := `The extraction result is {"entities": [], "states": [{"state_id": "LS-L-A-20240701_20240701"}]} as requested.`
	res, err := recovery.Recover(in)
	require.NoError(t, err)
	assert.Equal(t, recovery.StrategyBalanced, res.Strategy)

	obj, ok := res.Object()
	require.True(t, ok)
	assert.Contains(t, obj, "states")
}

// TestRecoverRepairTruncated verifies truncated output is closed and
// repaired.
func TestRecoverRepairTruncated(t *testing.T) {
	res, err := recovery.Recover(`garbage {"a": 1, "b": [1,2`)
	require.NoError(t, err)
	assert.Equal(t, recovery.StrategyRepair, res.Strategy)

	obj, ok := res.Object()
	require.True(t, ok)
	assert.Equal(t, float64(1), obj["a"])
	assert.Equal(t, []any{float64(1), float64(2)}, obj["b"])
}

// TestRecoverRepairUnterminatedString verifies output cut mid-string
// still recovers.
func TestRecoverRepairUnterminatedString(t *testing.T) {
	res, err := recovery.Recover(`{"entities": [{"id": "L-Spri`)
	require.NoError(t, err)
	assert.Equal(t, recovery.StrategyRepair, res.Strategy)

	obj, ok := res.Object()
	require.True(t, ok)
	assert.Contains(t, obj, "entities")
}

// TestRecoverArrayPayload verifies a top-level array is valid but not
// an object.
func TestRecoverArrayPayload(t *testing.T) {
	res, err := recovery.Recover(`[{"id": "L-A"}, {"id": "L-B"}]`)
	require.NoError(t, err)
	assert.Equal(t, recovery.StrategyDirect, res.Strategy)

	_, ok := res.Object()
	assert.False(t, ok)
	assert.Equal(t, []string{"entities", "states", "relations"},
		res.MissingFields([]string{"entities", "states", "relations"}))
}

// TestRecoverTotalFailure verifies hopeless input yields a ParseError
// with a bounded preview.
func TestRecoverTotalFailure(t *testing.T) {
	long := make([]byte, 2000)
	for i := range long {
		long[i] = 'x'
	}

	_, err := recovery.Recover(string(long))
	require.Error(t, err)

	var parseErr *tkerrors.ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.LessOrEqual(t, len(parseErr.Preview), 500)
	assert.Greater(t, parseErr.Attempts, 0)
}

// TestRecoverEmptyInput verifies empty input fails cleanly.
func TestRecoverEmptyInput(t *testing.T) {
	_, err := recovery.Recover("")
	var parseErr *tkerrors.ParseError
	require.True(t, errors.As(err, &parseErr))
}

// TestMissingFields verifies partial payloads report their gaps.
func TestMissingFields(t *testing.T) {
	res, err := recovery.Recover(`{"entities": []}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"states", "relations"},
		res.MissingFields([]string{"entities", "states", "relations"}))
	assert.Empty(t, res.MissingFields([]string{"entities"}))
}

// TestRecoverPrefersLargestCandidate verifies the balanced scan ranks
// candidates by size so nested spans don't shadow the full payload.
func TestRecoverPrefersLargestCandidate(t *testing.T) {
	in := `note {"x": 1} and the real one {"entities": [{"id": "L-A"}], "states": [], "relations": []} end`
	res, err := recovery.Recover(in)
	require.NoError(t, err)

	obj, ok := res.Object()
	require.True(t, ok)
	assert.Contains(t, obj, "entities")
	assert.NotContains(t, obj, "x")
}
