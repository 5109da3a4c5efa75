package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "0123456789abcdef0123456789abcdef"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", secret)
	t.Setenv("DB_PASSWORD", "pw")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, StoragePostgres, cfg.StorageDriver)
	assert.Equal(t, time.Hour, cfg.ResetTokenTTL)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.CORSAllowedOrigins)
	assert.True(t, cfg.PromotionsRequireAssignment)
	assert.False(t, cfg.TelegramEnabled())
	assert.Equal(t, "postgres://betdesk:pw@postgres:5432/betdesk?sslmode=disable", cfg.DatabaseDSN())
}

func TestLoad_AdminChatIDs(t *testing.T) {
	t.Setenv("JWT_SECRET", secret)
	t.Setenv("STORAGE_DRIVER", StorageMemory)
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("ADMIN_CHAT_IDS", " 42, -1001234 ,")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []int64{42, -1001234}, cfg.AdminChatIDs)
	assert.True(t, cfg.TelegramEnabled())
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing secret", map[string]string{"STORAGE_DRIVER": StorageMemory}},
		{"short secret", map[string]string{"JWT_SECRET": "short", "STORAGE_DRIVER": StorageMemory}},
		{"postgres without password", map[string]string{"JWT_SECRET": secret, "DB_PASSWORD": ""}},
		{"unknown driver", map[string]string{"JWT_SECRET": secret, "STORAGE_DRIVER": "mongo"}},
		{"bad chat ids", map[string]string{"JWT_SECRET": secret, "STORAGE_DRIVER": StorageMemory, "ADMIN_CHAT_IDS": "1,x"}},
		{"bad pool", map[string]string{"JWT_SECRET": secret, "DB_PASSWORD": "pw", "DB_MIN_CONNS": "10", "DB_MAX_CONNS": "2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
