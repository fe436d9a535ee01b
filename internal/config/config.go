package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	DB         DBConfig         `mapstructure:"db"`
	Token      TokenConfig      `mapstructure:"token"`
	Logger     LoggerConfig     `mapstructure:"logger"`
	Withdrawal WithdrawalConfig `mapstructure:"withdrawal"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Mail       MailConfig       `mapstructure:"mail"`
	Seed       []AccountSeed    `mapstructure:"seed"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"readTimeout"`
	WriteTimeout    time.Duration `mapstructure:"writeTimeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
}

type DBConfig struct {
	// Driver is "memory" or "postgres".
	Driver             string        `mapstructure:"driver"`
	DatabaseURL        string        `mapstructure:"databaseURL"`
	MaxOpenConnection  int           `mapstructure:"maxOpenConnection"`
	MaxIdleConnection  int           `mapstructure:"maxIdleConnection"`
	ConnectionLifetime time.Duration `mapstructure:"connectionLifetime"`
	Migrate            bool          `mapstructure:"migrate"`
}

type TokenConfig struct {
	// Secret signs and verifies HS256 bearer tokens.
	Secret string `mapstructure:"secret"`
}

type LoggerConfig struct {
	LoggerLevel string `mapstructure:"loggerLevel"`
	Development bool   `mapstructure:"development"`
}

type WithdrawalConfig struct {
	MinAmount         int64         `mapstructure:"minAmount"`
	MaxAdminNote      int           `mapstructure:"maxAdminNote"`
	ContentionRetries int           `mapstructure:"contentionRetries"`
	InitialBackoff    time.Duration `mapstructure:"initialBackoff"`
	MaxBackoff        time.Duration `mapstructure:"maxBackoff"`
	StoreTimeout      time.Duration `mapstructure:"storeTimeout"`
	TxIDPrefix        string        `mapstructure:"txidPrefix"`
	TxIDRetries       int           `mapstructure:"txidRetries"`
}

type NotifyConfig struct {
	// Driver is "inproc", "asynq" or "none".
	Driver    string `mapstructure:"driver"`
	QueueSize int    `mapstructure:"queueSize"`
	Workers   int    `mapstructure:"workers"`
	RedisAddr string `mapstructure:"redisAddr"`
	Queue     string `mapstructure:"queue"`
}

// MailConfig with an empty Host makes the worker log messages instead of
// sending them.
type MailConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// AccountSeed is a seller account opened at startup when it does not exist
// yet. Name and Email fill the in-memory seller directory only.
type AccountSeed struct {
	SellerID string `mapstructure:"sellerId"`
	Name     string `mapstructure:"name"`
	Email    string `mapstructure:"email"`
	Balance  int64  `mapstructure:"balance"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.readTimeout", 10*time.Second)
	v.SetDefault("server.writeTimeout", 10*time.Second)
	v.SetDefault("server.shutdownTimeout", 15*time.Second)

	v.SetDefault("db.driver", "memory")
	v.SetDefault("db.databaseURL", "")
	v.SetDefault("db.maxOpenConnection", 15)
	v.SetDefault("db.maxIdleConnection", 10)
	v.SetDefault("db.connectionLifetime", time.Hour)
	v.SetDefault("db.migrate", true)

	v.SetDefault("token.secret", "")

	v.SetDefault("logger.loggerLevel", "info")
	v.SetDefault("logger.development", false)

	v.SetDefault("withdrawal.minAmount", 100)
	v.SetDefault("withdrawal.maxAdminNote", 500)
	v.SetDefault("withdrawal.contentionRetries", 3)
	v.SetDefault("withdrawal.initialBackoff", 10*time.Millisecond)
	v.SetDefault("withdrawal.maxBackoff", 200*time.Millisecond)
	v.SetDefault("withdrawal.storeTimeout", 5*time.Second)
	v.SetDefault("withdrawal.txidPrefix", "WD")
	v.SetDefault("withdrawal.txidRetries", 3)

	v.SetDefault("notify.driver", "inproc")
	v.SetDefault("notify.queueSize", 256)
	v.SetDefault("notify.workers", 2)
	v.SetDefault("notify.redisAddr", "127.0.0.1:6379")
	v.SetDefault("notify.queue", "notifications")

	v.SetDefault("mail.host", "")
	v.SetDefault("mail.port", "465")
	v.SetDefault("mail.username", "")
	v.SetDefault("mail.password", "")
	v.SetDefault("mail.from", "")
}

// Load reads .env, config.yaml and the environment, in that order of
// precedence from lowest to highest. SERVER_PORT overrides server.port.
func Load(paths ...string) (*Config, error) {
	if err := godotenv.Load(); err == nil {
		log.Println("loaded .env")
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{".", "./internal/config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		log.Println("config file not found, using defaults and environment")
	} else {
		log.Printf("using config file: %s", v.ConfigFileUsed())
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
	var errs []error

	switch c.DB.Driver {
	case "memory":
	case "postgres":
		if c.DB.DatabaseURL == "" {
			errs = append(errs, errors.New("db.databaseURL is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown db.driver %q", c.DB.Driver))
	}

	switch c.Notify.Driver {
	case "inproc", "none":
	case "asynq":
		if c.Notify.RedisAddr == "" {
			errs = append(errs, errors.New("notify.redisAddr is required for the asynq driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown notify.driver %q", c.Notify.Driver))
	}

	if c.Withdrawal.MinAmount <= 0 {
		errs = append(errs, errors.New("withdrawal.minAmount must be positive"))
	}
	if c.Withdrawal.MaxAdminNote < 0 {
		errs = append(errs, errors.New("withdrawal.maxAdminNote must not be negative"))
	}
	if c.Withdrawal.ContentionRetries < 1 {
		errs = append(errs, errors.New("withdrawal.contentionRetries must be at least 1"))
	}
	if c.Withdrawal.TxIDRetries < 1 {
		errs = append(errs, errors.New("withdrawal.txidRetries must be at least 1"))
	}
	if c.Withdrawal.TxIDPrefix == "" {
		errs = append(errs, errors.New("withdrawal.txidPrefix must not be empty"))
	}

	for i, a := range c.Seed {
		if strings.TrimSpace(a.SellerID) == "" {
			errs = append(errs, fmt.Errorf("seed[%d].sellerId is required", i))
		}
		if a.Balance < 0 {
			errs = append(errs, fmt.Errorf("seed[%d].balance must not be negative", i))
		}
	}

	return errors.Join(errs...)
}
