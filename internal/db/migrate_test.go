package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/inboxd/internal/config"
)

func TestCheckMigrateCommand(t *testing.T) {
	cases := []struct {
		name    string
		command string
		args    []string
		want    int
		errPart string
	}{
		{name: "up", command: MigrateUp},
		{name: "down", command: MigrateDown},
		{name: "version", command: MigrateVersion},
		{name: "force", command: MigrateForce, args: []string{" 3 "}, want: 3},
		{name: "force without version", command: MigrateForce, errPart: "version number"},
		{name: "force with garbage", command: MigrateForce, args: []string{"three"}, errPart: "invalid version"},
		{name: "unknown", command: "sideways", errPart: "unknown migrate command"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := checkMigrateCommand(tc.command, tc.args)
			if tc.errPart != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.errPart)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRunMigrateRejectsBeforeConnecting(t *testing.T) {
	// An unreachable port proves validation happens before any dial.
	cfg := config.PostgresConfig{Host: "127.0.0.1", Port: 1, User: "inbox", Database: "inbox", SSLMode: "disable"}
	err := RunMigrate(nil, cfg, nil, "invalid", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown migrate command")
}
