package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTarget(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		errMsg  string
		wantErr bool
	}{
		{name: "single segment", target: "notes"},
		{name: "nested", target: "notes/2024/a b"},
		{name: "unicode", target: "заметки/1"},
		{name: "max length", target: strings.Repeat("a", MaxTargetLength)},
		{name: "empty", target: "", wantErr: true, errMsg: "must not be empty"},
		{name: "blank", target: "   ", wantErr: true, errMsg: "must not be empty"},
		{name: "too long", target: strings.Repeat("a", MaxTargetLength+1), wantErr: true, errMsg: "at most"},
		{name: "absolute", target: "/notes/1", wantErr: true, errMsg: "relative"},
		{name: "trailing slash", target: "notes/", wantErr: true, errMsg: "empty segments"},
		{name: "double slash", target: "notes//1", wantErr: true, errMsg: "empty segments"},
		{name: "parent segment", target: "notes/../secrets", wantErr: true, errMsg: `".."`},
		{name: "dot segment", target: "./notes", wantErr: true, errMsg: `"."`},
		{name: "control character", target: "notes/\n1", wantErr: true, errMsg: "control"},
		{name: "invalid utf8", target: "notes/\xff", wantErr: true, errMsg: "UTF-8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTarget(tt.target)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateUserID(t *testing.T) {
	tests := []struct {
		name    string
		userID  string
		wantErr bool
	}{
		{name: "plain", userID: "user-1"},
		{name: "email like", userID: "alice@example.com"},
		{name: "empty", userID: "", wantErr: true},
		{name: "space", userID: "alice smith", wantErr: true},
		{name: "slash", userID: "a/b", wantErr: true},
		{name: "too long", userID: strings.Repeat("a", 65), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUserID(tt.userID)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
