package modules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
)

func TestModulesGraphIsComplete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[auth]
jwt_secret = "test"

[storage]
driver = "memory"
`), 0o600))

	err := fx.ValidateApp(
		fx.Supply(ConfigPath(path)),
		InfraModule,
		DomainModule,
		HandlersModule,
		ServerModule,
		fx.NopLogger,
	)
	require.NoError(t, err)
}
