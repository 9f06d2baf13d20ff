package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	DB           DBConfig           `mapstructure:"db"`
	Token        TokenConfig        `mapstructure:"token"`
	Logger       LoggerConfig       `mapstructure:"logger"`
	SMTP         SMTPConfig         `mapstructure:"smtp"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Notification NotificationConfig `mapstructure:"notification"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	// PublicBaseURL prefixes the confirmation links sent by email.
	PublicBaseURL   string        `mapstructure:"publicBaseURL"`
	RequestTimeout  time.Duration `mapstructure:"requestTimeout"`
	ReadTimeout     time.Duration `mapstructure:"readTimeout"`
	WriteTimeout    time.Duration `mapstructure:"writeTimeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
}

type DBConfig struct {
	Driver             string        `mapstructure:"driver"`
	DatabaseURL        string        `mapstructure:"databaseURL"`
	BoltPath           string        `mapstructure:"boltPath"`
	MaxOpenConnection  int           `mapstructure:"maxOpenConnection"`
	MaxIdleConnection  int           `mapstructure:"maxIdleConnection"`
	ConnectionLifetime time.Duration `mapstructure:"connectionLifetime"`
	// LockTimeout bounds the wait for a record's row lock during a transition.
	LockTimeout time.Duration `mapstructure:"lockTimeout"`
}

type TokenConfig struct {
	AuthToken string `mapstructure:"authToken"`
	// ConfirmationBytes is the entropy of confirmation tokens in bytes.
	ConfirmationBytes int `mapstructure:"confirmationBytes"`
}

type LoggerConfig struct {
	LoggerLevel string `mapstructure:"loggerLevel"`
	Development bool   `mapstructure:"development"`
}

type SMTPConfig struct {
	Host          string `mapstructure:"host"`
	Port          string `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Pass          string `mapstructure:"pass"`
	TLSMode       string `mapstructure:"tlsMode"`
	SkipVerifyTLS bool   `mapstructure:"skipVerifyTLS"`
	From          string `mapstructure:"from"`
	FromName      string `mapstructure:"fromName"`
}

type StorageConfig struct {
	Driver          string `mapstructure:"driver"`
	LocalDir        string `mapstructure:"localDir"`
	LocalURLPrefix  string `mapstructure:"localURLPrefix"`
	S3Region        string `mapstructure:"s3Region"`
	S3Bucket        string `mapstructure:"s3Bucket"`
	S3Prefix        string `mapstructure:"s3Prefix"`
	S3PublicBaseURL string `mapstructure:"s3PublicBaseURL"`
	MaxFileSize     int64  `mapstructure:"maxFileSize"`
	MaxFiles        int    `mapstructure:"maxFiles"`
}

// NotificationConfig seeds the email config when none is stored.
type NotificationConfig struct {
	EmailTramitador string   `mapstructure:"emailTramitador"`
	EmailPagador    string   `mapstructure:"emailPagador"`
	CCEmails        []string `mapstructure:"ccEmails"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.publicBaseURL", "http://localhost:8080")
	v.SetDefault("server.requestTimeout", 15*time.Second)
	v.SetDefault("server.readTimeout", 10*time.Second)
	v.SetDefault("server.writeTimeout", 20*time.Second)
	v.SetDefault("server.shutdownTimeout", 10*time.Second)

	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.databaseURL", "")
	v.SetDefault("db.boltPath", "extornos.db")
	v.SetDefault("db.maxOpenConnection", 15)
	v.SetDefault("db.maxIdleConnection", 10)
	v.SetDefault("db.connectionLifetime", time.Hour)
	v.SetDefault("db.lockTimeout", 5*time.Second)

	v.SetDefault("token.authToken", "")
	v.SetDefault("token.confirmationBytes", 32)

	v.SetDefault("logger.loggerLevel", "info")
	v.SetDefault("logger.development", false)

	// keys without a default are invisible to AutomaticEnv during Unmarshal
	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.user", "")
	v.SetDefault("smtp.pass", "")
	v.SetDefault("smtp.from", "")
	v.SetDefault("smtp.skipVerifyTLS", false)
	v.SetDefault("smtp.port", "465")
	v.SetDefault("smtp.tlsMode", "tls")
	v.SetDefault("smtp.fromName", "Sistema de Extornos CVO")

	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.localDir", "./storage/extornos")
	v.SetDefault("storage.localURLPrefix", "/uploads/extornos")
	v.SetDefault("storage.s3Region", "")
	v.SetDefault("storage.s3Bucket", "")
	v.SetDefault("storage.s3Prefix", "extornos")
	v.SetDefault("storage.s3PublicBaseURL", "")
	v.SetDefault("storage.maxFileSize", 10<<20)
	v.SetDefault("storage.maxFiles", 10)

	v.SetDefault("notification.emailTramitador", "tramitador@example.com")
	v.SetDefault("notification.emailPagador", "pagador@example.com")
	v.SetDefault("notification.ccEmails", []string{})
}

// Load reads config.yaml from the working directory or ./internal/config and
// lets environment variables override every key (server.port -> SERVER_PORT).
func Load() (*Config, error) {
	return LoadFrom(viper.New(), ".", "./internal/config")
}

func LoadFrom(v *viper.Viper, paths ...string) (*Config, error) {
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.DB.Driver {
	case "postgres":
		if c.DB.DatabaseURL == "" {
			return errors.New("config: db.databaseURL is required for the postgres driver")
		}
	case "bolt":
		if c.DB.BoltPath == "" {
			return errors.New("config: db.boltPath is required for the bolt driver")
		}
	default:
		return fmt.Errorf("config: unknown db.driver %q", c.DB.Driver)
	}
	if c.Token.ConfirmationBytes < 16 {
		return fmt.Errorf("config: token.confirmationBytes must be at least 16, got %d", c.Token.ConfirmationBytes)
	}
	return nil
}
