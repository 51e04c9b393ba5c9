package relay

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeStampsIDAndCreated(t *testing.T) {
	out := Normalize(Registry{
		"abc123": {Host: "p1"},
		"":       {Host: "nobody"},
	}, 4)

	require.Len(t, out, 1)
	r := out["abc123"]
	assert.Equal(t, "abc123", r.ID)
	assert.NotZero(t, r.Created)
}

func TestNormalizeCapsSeats(t *testing.T) {
	out := Normalize(Registry{
		"r": {Players: []Player{
			{ID: "a", Index: 0}, {ID: "b", Index: 1}, {ID: "c", Index: 2},
			{ID: "d", Index: 3}, {ID: "e", Index: 4},
		}},
	}, 4)

	require.Len(t, out["r"].Players, 4)
	assert.Equal(t, "d", out["r"].Players[3].ID)
}

func TestNormalizeReseatsDuplicateIndices(t *testing.T) {
	out := Normalize(Registry{
		"r": {Players: []Player{
			{ID: "a", Index: 0}, {ID: "b", Index: 0}, {ID: "c", Index: -2},
		}},
	}, 4)

	players := out["r"].Players
	assert.Equal(t, []int{0, 1, 2}, []int{players[0].Index, players[1].Index, players[2].Index})
}

func TestNormalizeKeepsValidSeatOrder(t *testing.T) {
	out := Normalize(Registry{
		"r": {Players: []Player{{ID: "a", Index: 2}, {ID: "b", Index: 0}}},
	}, 4)

	players := out["r"].Players
	assert.Equal(t, 2, players[0].Index)
	assert.Equal(t, 0, players[1].Index)
}

func TestProjectExposesOnlyLobbyFields(t *testing.T) {
	views := Project(Registry{
		"abc123": {
			ID:          "abc123",
			Host:        "p1",
			Players:     []Player{{ID: "p1", Name: "Alice", Index: 0}},
			GameStarted: false,
			Created:     1700000000000,
		},
	})

	require.Contains(t, views, "abc123")
	raw, err := json.Marshal(views["abc123"])
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.ElementsMatch(t,
		[]string{"id", "host", "players", "gameStarted", "created"},
		keys(fields))
}

func keys(m map[string]json.RawMessage) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestSnapshotPhase(t *testing.T) {
	assert.Equal(t, "bidding", SnapshotPhase(Snapshot(`{"phase":"bidding","turn":1}`)))
	assert.Equal(t, "", SnapshotPhase(Snapshot(`{"turn":1}`)))
	assert.Equal(t, "", SnapshotPhase(Snapshot(`not json`)))
}
