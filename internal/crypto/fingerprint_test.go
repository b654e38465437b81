package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprint(t *testing.T) {
	base, err := Fingerprint("create", "notes/1", []byte(`{"title":"a","n":1}`))
	require.NoError(t, err)
	assert.Len(t, base, 64)

	// Пробелы в JSON не влияют на отпечаток
	spaced, err := Fingerprint("create", "notes/1", []byte("{ \"title\": \"a\",\n \"n\": 1 }"))
	require.NoError(t, err)
	assert.Equal(t, base, spaced)

	tests := []struct {
		name    string
		action  string
		target  string
		payload string
	}{
		{name: "other action", action: "update", target: "notes/1", payload: `{"title":"a","n":1}`},
		{name: "other target", action: "create", target: "notes/2", payload: `{"title":"a","n":1}`},
		{name: "other payload", action: "create", target: "notes/1", payload: `{"title":"b","n":1}`},
		{name: "shifted separator", action: "createnotes/1", target: "", payload: `{"title":"a","n":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Fingerprint(tt.action, tt.target, []byte(tt.payload))
			require.NoError(t, err)
			assert.NotEqual(t, base, got)
		})
	}
}

func TestFingerprint_EmptyPayload(t *testing.T) {
	a, err := Fingerprint("delete", "notes/1", nil)
	require.NoError(t, err)
	b, err := Fingerprint("delete", "notes/1", []byte{})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestFingerprint_InvalidJSON(t *testing.T) {
	_, err := Fingerprint("create", "notes/1", []byte(`{broken`))
	assert.Error(t, err)
}
