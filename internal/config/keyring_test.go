package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestKeyringManager_SaveGetDelete(t *testing.T) {
	keyring.MockInit()
	km := NewKeyringManager()

	require.True(t, km.IsAvailable())

	password, err := km.GetDBPassword()
	require.NoError(t, err)
	assert.Empty(t, password, "unset password is not an error")

	require.NoError(t, km.SaveDBPassword("s3cret-terp"))

	password, err = km.GetDBPassword()
	require.NoError(t, err)
	assert.Equal(t, "s3cret-terp", password)

	require.NoError(t, km.DeleteDBPassword())
	require.NoError(t, km.DeleteDBPassword(), "deleting twice is not an error")

	password, err = km.GetDBPassword()
	require.NoError(t, err)
	assert.Empty(t, password)
}

func TestKeyringManager_SaveEmpty(t *testing.T) {
	keyring.MockInit()
	assert.Error(t, NewKeyringManager().SaveDBPassword(""))
}

func TestResolvePassword(t *testing.T) {
	keyring.MockInit()
	km := NewKeyringManager()
	require.NoError(t, km.SaveDBPassword("from-keychain"))
	defer km.DeleteDBPassword()

	tests := []struct {
		name     string
		password string
		keychain bool
		want     string
	}{
		{"keychain fills empty password", "", true, "from-keychain"},
		{"explicit password wins", "from-env", true, "from-env"},
		{"keychain disabled", "", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Database.Password = tt.password
			cfg.Database.UseKeychain = tt.keychain

			require.NoError(t, resolvePassword(cfg, km))
			assert.Equal(t, tt.want, cfg.Database.Password)
		})
	}
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "(not set)", MaskSecret(""))
	assert.Equal(t, "***", MaskSecret("short"))
	assert.Equal(t, "******rp", MaskSecret("planetterp"))
}
