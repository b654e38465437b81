package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAction_Valid(t *testing.T) {
	tests := []struct {
		action Action
		want   bool
	}{
		{ActionCreate, true},
		{ActionUpdate, true},
		{ActionDelete, true},
		{Action(""), false},
		{Action("upsert"), false},
		{Action("CREATE"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.action.Valid())
		})
	}
}

func TestParseAction(t *testing.T) {
	a, err := ParseAction("update")
	require.NoError(t, err)
	assert.Equal(t, ActionUpdate, a)

	_, err = ParseAction("patch")
	assert.Error(t, err)
}

func TestMutationRecord_Less(t *testing.T) {
	tests := []struct {
		name string
		a    MutationRecord
		b    MutationRecord
		want bool
	}{
		{
			name: "lower priority first",
			a:    MutationRecord{ID: "b", Priority: 1, CreatedAt: 200},
			b:    MutationRecord{ID: "a", Priority: 2, CreatedAt: 100},
			want: true,
		},
		{
			name: "higher priority value later",
			a:    MutationRecord{ID: "a", Priority: 3, CreatedAt: 100},
			b:    MutationRecord{ID: "b", Priority: 1, CreatedAt: 200},
			want: false,
		},
		{
			name: "fifo within priority",
			a:    MutationRecord{ID: "z", Priority: 1, CreatedAt: 100},
			b:    MutationRecord{ID: "a", Priority: 1, CreatedAt: 200},
			want: true,
		},
		{
			name: "id breaks full tie",
			a:    MutationRecord{ID: "a", Priority: 1, CreatedAt: 100},
			b:    MutationRecord{ID: "b", Priority: 1, CreatedAt: 100},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Less(&tt.b))
		})
	}
}

func TestMutationRecord_Clone(t *testing.T) {
	original := &MutationRecord{
		ID:       "id-1",
		Action:   ActionCreate,
		Target:   "/notes/1",
		Payload:  json.RawMessage(`{"title":"hello"}`),
		Priority: 2,
		Status:   MutationPending,
	}

	clone := original.Clone()
	require.Equal(t, original, clone)

	// Изменение копии не должно затрагивать оригинал
	clone.Payload[2] = 'X'
	clone.Attempts = 5
	assert.Equal(t, `{"title":"hello"}`, string(original.Payload))
	assert.Equal(t, 0, original.Attempts)
}
