package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, time.Second, cfg.OpenAI.PollInterval)
	assert.Equal(t, 30, cfg.OpenAI.MaxPollAttempts)
	assert.Equal(t, "https://api.z-api.io", cfg.Messenger.BaseURL)
	assert.Equal(t, "55", cfg.Webhook.CountryCode)
	assert.Equal(t, DefaultDenialMessage, cfg.Webhook.DenialMessage)
	assert.Equal(t, 256, cfg.Interactions.QueueSize)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  port: "9090"
database:
  use_in_memory: true
  seed_file: customers.yaml
openai:
  assistant_id: asst_file
  poll_interval: 500ms
messenger:
  instance_id: inst
  delay_typing: 3
webhook:
  instance_id: inst
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_ASSISTANT_ID", "asst_env")
	t.Setenv("ZAPI_TOKEN", "zapi-token")
	t.Setenv("ADMIN_TOKEN", "admin")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.True(t, cfg.Database.UseInMemory)
	assert.Equal(t, "customers.yaml", cfg.Database.SeedFile)
	assert.Equal(t, "sk-test", cfg.OpenAI.APIKey)
	assert.Equal(t, "asst_env", cfg.OpenAI.AssistantID)
	assert.Equal(t, 500*time.Millisecond, cfg.OpenAI.PollInterval)
	assert.Equal(t, "zapi-token", cfg.Messenger.Token)
	assert.Equal(t, 3, cfg.Messenger.DelayTyping)
	assert.Equal(t, "admin", cfg.Server.AdminToken)
	assert.Equal(t, "inst", cfg.Webhook.InstanceID)

	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_EnvOnly(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_ASSISTANT_ID", "asst_env")
	t.Setenv("OPENAI_BASE_URL", "https://proxy.internal/v1")
	t.Setenv("MESSENGER_INSTANCE_ID", "inst-env")
	t.Setenv("MESSENGER_TOKEN", "zapi-env")
	t.Setenv("WEBHOOK_INSTANCE_ID", "inst-env")
	t.Setenv("WEBHOOK_FALLBACK_REPLY", "Já volto!")
	t.Setenv("DATABASE_DBNAME", "crm")
	t.Setenv("DATABASE_PASSWORD", "pw")
	t.Setenv("LOGGING_DEVELOPMENT", "true")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "asst_env", cfg.OpenAI.AssistantID)
	assert.Equal(t, "https://proxy.internal/v1", cfg.OpenAI.BaseURL)
	assert.Equal(t, "inst-env", cfg.Messenger.InstanceID)
	assert.Equal(t, "zapi-env", cfg.Messenger.Token)
	assert.Equal(t, "inst-env", cfg.Webhook.InstanceID)
	assert.Equal(t, "Já volto!", cfg.Webhook.FallbackReply)
	assert.Equal(t, "crm", cfg.Database.DBName)
	assert.Equal(t, "pw", cfg.Database.Password)
	assert.True(t, cfg.Logging.Development)

	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_DatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://bot:pw@db.internal:6543/crm?sslmode=require")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, "bot", cfg.Database.User)
	assert.Equal(t, "pw", cfg.Database.Password)
	assert.Equal(t, "crm", cfg.Database.DBName)
	assert.Equal(t, "require", cfg.Database.SSLMode)
}

func TestParseDatabaseURL_DefaultPort(t *testing.T) {
	db, err := parseDatabaseURL("postgres://u@localhost/app")
	require.NoError(t, err)
	assert.Equal(t, 5432, db.Port)
	assert.Equal(t, "disable", db.SSLMode)
}

func TestValidate_ReportsAllMissing(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	require.Error(t, err)

	for _, key := range []string{"openai.api_key", "openai.assistant_id", "messenger.instance_id", "messenger.token", "database.dbname", "max_poll_attempts"} {
		assert.Contains(t, err.Error(), key)
	}
}
