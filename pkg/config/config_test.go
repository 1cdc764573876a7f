package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexibleStringSlice_MixedTypes(t *testing.T) {
	var f FlexibleStringSlice
	err := json.Unmarshal([]byte(`["abc", 12345, "def"]`), &f)
	require.NoError(t, err)
	assert.Equal(t, FlexibleStringSlice{"abc", "12345", "def"}, f)
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Oopz.HeartbeatSeconds)
	assert.Equal(t, "/", cfg.Commands.Prefix)
	assert.True(t, cfg.Moderation.Enabled)
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"moderation":{"enabled":true,"keywords":["傻逼"],"window_size":5,"window_seconds":60,"mute_tier_seconds":[600,3600],"mute_seconds":3600},"commands":{"admins":["111",222]}}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"傻逼"}, cfg.Moderation.Keywords)
	assert.Equal(t, 3600, cfg.Moderation.MuteSeconds)
	assert.Equal(t, FlexibleStringSlice{"111", "222"}, cfg.Commands.Admins)
}

func TestLoadConfig_EnvOverlay(t *testing.T) {
	t.Setenv("OOPZBOT_OOPZ_PERSON_UID", "env-person")
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, "env-person", cfg.Oopz.PersonUID)
}

func TestModerationConfig_AITimeout(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 5*time.Second, cfg.Moderation.AITimeout())

	cfg.Moderation.AITimeoutSeconds = 2
	assert.Equal(t, 2*time.Second, cfg.Moderation.AITimeout())

	// Unset or nonsense values must not disable the bound.
	cfg.Moderation.AITimeoutSeconds = -1
	assert.Equal(t, 5*time.Second, cfg.Moderation.AITimeout())
}

func TestValidate_MuteTierMembership(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Moderation.MuteSeconds = 1234
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not an allowed tier")
}

func TestValidate_EmptyTiers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Moderation.MuteTierSeconds = nil
	assert.Error(t, cfg.Validate())
}

func TestIsAdmin_OpenMode(t *testing.T) {
	cfg := DefaultConfig()
	assert.True(t, cfg.OpenMode())
	assert.True(t, cfg.IsAdmin("anyone"))

	cfg.Commands.Admins = FlexibleStringSlice{"admin-1"}
	assert.False(t, cfg.OpenMode())
	assert.True(t, cfg.IsAdmin("admin-1"))
	assert.False(t, cfg.IsAdmin("someone-else"))
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")
	cfg := DefaultConfig()
	cfg.Moderation.Keywords = []string{"banned"}
	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"banned"}, loaded.Moderation.Keywords)
}
