package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	OpenAI       OpenAIConfig       `mapstructure:"openai"`
	Messenger    MessengerConfig    `mapstructure:"messenger"`
	Webhook      WebhookConfig      `mapstructure:"webhook"`
	Interactions InteractionsConfig `mapstructure:"interactions"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	AdminToken      string        `mapstructure:"admin_token"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	DBName      string `mapstructure:"dbname"`
	SSLMode     string `mapstructure:"sslmode"`
	UseInMemory bool   `mapstructure:"use_in_memory"`
	SeedFile    string `mapstructure:"seed_file"`
}

type OpenAIConfig struct {
	APIKey          string        `mapstructure:"api_key"`
	BaseURL         string        `mapstructure:"base_url"`
	AssistantID     string        `mapstructure:"assistant_id"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	MaxPollAttempts int           `mapstructure:"max_poll_attempts"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
}

type MessengerConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	InstanceID   string        `mapstructure:"instance_id"`
	Token        string        `mapstructure:"token"`
	ClientToken  string        `mapstructure:"client_token"`
	DelayTyping  int           `mapstructure:"delay_typing"`
	DelayMessage int           `mapstructure:"delay_message"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type WebhookConfig struct {
	// InstanceID, when set, must match the payload's instanceId.
	InstanceID    string        `mapstructure:"instance_id"`
	MaxMessageAge time.Duration `mapstructure:"max_message_age"`
	CountryCode   string        `mapstructure:"country_code"`
	DenialMessage string        `mapstructure:"denial_message"`
	FallbackReply string        `mapstructure:"fallback_reply"`
	StepTimeout   time.Duration `mapstructure:"step_timeout"`
}

type InteractionsConfig struct {
	QueueSize    int           `mapstructure:"queue_size"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

const DefaultDenialMessage = "Olá! Não encontramos um cadastro ativo para este número. " +
	"Se você já é aluno, entre em contato com o suporte para liberar seu acesso."

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		if _, err := fmt.Sscanf(u.Port(), "%d", &port); err != nil {
			return DatabaseConfig{}, fmt.Errorf("invalid port %q: %w", u.Port(), err)
		}
	}

	sslMode := u.Query().Get("sslmode")
	if sslMode == "" {
		sslMode = "disable"
	}

	return DatabaseConfig{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   strings.TrimPrefix(u.Path, "/"),
		SSLMode:  sslMode,
	}, nil
}

// LoadConfig reads the YAML file at path (optional: a missing file is fine)
// and overlays environment variables, e.g. OPENAI_ASSISTANT_ID for
// openai.assistant_id.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.use_in_memory", false)
	v.SetDefault("openai.poll_interval", time.Second)
	v.SetDefault("openai.max_poll_attempts", 30)
	v.SetDefault("openai.request_timeout", 8*time.Second)
	v.SetDefault("messenger.base_url", "https://api.z-api.io")
	v.SetDefault("messenger.delay_typing", 2)
	v.SetDefault("messenger.delay_message", 1)
	v.SetDefault("messenger.timeout", 8*time.Second)
	v.SetDefault("webhook.max_message_age", 15*time.Minute)
	v.SetDefault("webhook.country_code", "55")
	v.SetDefault("webhook.denial_message", DefaultDenialMessage)
	v.SetDefault("webhook.step_timeout", 8*time.Second)
	v.SetDefault("interactions.queue_size", 256)
	v.SetDefault("interactions.write_timeout", 5*time.Second)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)

	// Unmarshal only sees keys viper knows about, so keys without a real
	// default are registered empty to stay reachable from the environment.
	for _, key := range []string{
		"server.admin_token",
		"database.password",
		"database.dbname",
		"database.seed_file",
		"openai.api_key",
		"openai.base_url",
		"openai.assistant_id",
		"messenger.instance_id",
		"messenger.token",
		"messenger.client_token",
		"webhook.instance_id",
		"webhook.fallback_reply",
	} {
		v.SetDefault(key, "")
	}

	// Enable environment variable support
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Check for DATABASE_URL environment variable
	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		dbConfig.UseInMemory = config.Database.UseInMemory
		dbConfig.SeedFile = config.Database.SeedFile
		config.Database = dbConfig
	}

	// Provider-style names that do not follow the section_key pattern
	if apiKey := v.GetString("OPENAI_API_KEY"); apiKey != "" {
		config.OpenAI.APIKey = apiKey
	}
	if token := v.GetString("ZAPI_TOKEN"); token != "" {
		config.Messenger.Token = token
	}
	if token := v.GetString("ZAPI_CLIENT_TOKEN"); token != "" {
		config.Messenger.ClientToken = token
	}
	if token := v.GetString("ADMIN_TOKEN"); token != "" {
		config.Server.AdminToken = token
	}
	if port := v.GetString("PORT"); port != "" {
		config.Server.Port = port
	}

	return &config, nil
}

// Validate reports every missing required setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.OpenAI.APIKey == "" {
		errs = append(errs, errors.New("openai.api_key is required"))
	}
	if c.OpenAI.AssistantID == "" {
		errs = append(errs, errors.New("openai.assistant_id is required"))
	}
	if c.Messenger.InstanceID == "" {
		errs = append(errs, errors.New("messenger.instance_id is required"))
	}
	if c.Messenger.Token == "" {
		errs = append(errs, errors.New("messenger.token is required"))
	}
	if !c.Database.UseInMemory && c.Database.DBName == "" {
		errs = append(errs, errors.New("database.dbname is required unless database.use_in_memory is set"))
	}
	if c.OpenAI.MaxPollAttempts <= 0 {
		errs = append(errs, errors.New("openai.max_poll_attempts must be positive"))
	}
	return errors.Join(errs...)
}
