package identity

import (
	"encoding/json"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		input   string
		want    Role
		wantErr bool
	}{
		{"ADMIN", RoleAdmin, false},
		{"admin", RoleAdmin, false},
		{" Agent ", RoleAgent, false},
		{"owner", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseRole(tt.input)
		if tt.wantErr {
			assert.ErrorIs(t, err, errdefs.ErrInvalidArgument, tt.input)
			continue
		}
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, got, tt.input)
	}
}

func TestActorJSONRoundTripUsesRoleNames(t *testing.T) {
	raw, err := json.Marshal(Actor{ID: "u1", Role: RoleAdmin})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"u1","role":"ADMIN"}`, string(raw))

	var decoded Actor
	require.NoError(t, json.Unmarshal([]byte(`{"id":"u2","role":"agent"}`), &decoded))
	assert.Equal(t, Actor{ID: "u2", Role: RoleAgent}, decoded)
}

func TestActorValidate(t *testing.T) {
	assert.NoError(t, Actor{ID: "u1", Role: RoleAgent}.Validate())
	assert.ErrorIs(t, Actor{Role: RoleAgent}.Validate(), errdefs.ErrUnauthenticated)
	assert.ErrorIs(t, Actor{ID: "u1"}.Validate(), errdefs.ErrUnauthenticated)
	assert.False(t, Actor{ID: "u1"}.IsAdmin())
	assert.True(t, Actor{ID: "u1", Role: RoleAdmin}.IsAdmin())
}
