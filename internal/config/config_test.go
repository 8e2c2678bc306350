package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "FRIEND_DEGREE", "TRACKED_PURCHASES", "SIGMA_THRESHOLD", "SEED_HISTORY_ELIGIBLE"} {
		setEnv(t, key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultFriendDegree, cfg.FriendDegree)
	assert.Equal(t, DefaultTrackedPurchases, cfg.TrackedPurchases)
	assert.Equal(t, DefaultSigma, cfg.Sigma)
	assert.True(t, cfg.SeedHistoryEligible)
}

func TestLoad_Overrides(t *testing.T) {
	setEnv(t, "PORT", "9090")
	setEnv(t, "FRIEND_DEGREE", "2")
	setEnv(t, "TRACKED_PURCHASES", "5")
	setEnv(t, "SIGMA_THRESHOLD", "2.5")
	setEnv(t, "SEED_HISTORY_ELIGIBLE", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 2, cfg.FriendDegree)
	assert.Equal(t, 5, cfg.TrackedPurchases)
	assert.Equal(t, 2.5, cfg.Sigma)
	assert.False(t, cfg.SeedHistoryEligible)
}

func TestLoad_InvalidDegree(t *testing.T) {
	setEnv(t, "FRIEND_DEGREE", "0")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "FRIEND_DEGREE")
}

func TestLoad_MalformedIntFallsBack(t *testing.T) {
	setEnv(t, "TRACKED_PURCHASES", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultTrackedPurchases, cfg.TrackedPurchases)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name:    "valid config",
			config:  Config{FriendDegree: 3, TrackedPurchases: 50, Sigma: 3, RateLimitRPM: 120},
			wantErr: "",
		},
		{
			name:    "zero degree",
			config:  Config{FriendDegree: 0, TrackedPurchases: 50, Sigma: 3, RateLimitRPM: 120},
			wantErr: "FRIEND_DEGREE",
		},
		{
			name:    "negative tracked purchases",
			config:  Config{FriendDegree: 3, TrackedPurchases: -1, Sigma: 3, RateLimitRPM: 120},
			wantErr: "TRACKED_PURCHASES",
		},
		{
			name:    "negative sigma",
			config:  Config{FriendDegree: 3, TrackedPurchases: 50, Sigma: -0.5, RateLimitRPM: 120},
			wantErr: "SIGMA_THRESHOLD",
		},
		{
			name:    "zero sigma is allowed",
			config:  Config{FriendDegree: 3, TrackedPurchases: 50, Sigma: 0, RateLimitRPM: 120},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_EnvHelpers(t *testing.T) {
	cfg := Config{Env: "development"}
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	cfg.Env = "production"
	assert.False(t, cfg.IsDevelopment())
	assert.True(t, cfg.IsProduction())
}
