package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/mapleleafu/typerace/protocol"
)

type Config struct {
	ServerHost       string `validate:"required"`
	ServerPort       int    `validate:"min=1,max=65535"`
	MulticastAddress string `validate:"required,ipv4"`
	MulticastPort    int    `validate:"min=1,max=65535"`
	NetworkInterface string
	HTTPAddr         string

	GameStartDelay  time.Duration `validate:"gt=0"`
	ProgressTick    time.Duration `validate:"gt=0"`
	ResponseTimeout time.Duration `validate:"gt=0"`
	MinPlayers      int           `validate:"min=2"`

	ParagraphsDB   string
	ParagraphsFile string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	MongoURI      string
	MongoDatabase string `validate:"required_with=MongoURI"`
}

// Load reads an optional .env file and then builds the config from the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}
	cfg := LoadConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadConfig() *Config {
	return &Config{
		ServerHost:       getEnv("SERVER_HOST", "localhost"),
		ServerPort:       getEnvInt("SERVER_PORT", 4445),
		MulticastAddress: getEnv("MULTICAST_ADDRESS", "230.0.0.0"),
		MulticastPort:    getEnvInt("MULTICAST_PORT", 4446),
		NetworkInterface: getEnv("NETWORK_INTERFACE", ""),
		HTTPAddr:         getEnv("HTTP_ADDR", ":8000"),

		GameStartDelay:  getEnvDuration("GAME_START_DELAY", protocol.GameStartDelay),
		ProgressTick:    getEnvDuration("PROGRESS_TICK", protocol.ProgressTick),
		ResponseTimeout: getEnvDuration("RESPONSE_TIMEOUT", protocol.ResponseTimeout),
		MinPlayers:      getEnvInt("MIN_PLAYERS", protocol.MinPlayersForGame),

		ParagraphsDB:   getEnv("PARAGRAPHS_DB", ""),
		ParagraphsFile: getEnv("PARAGRAPHS_FILE", ""),

		DBHost:     getEnv("DB_HOST", ""),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "user"),
		DBPassword: getEnv("DB_PASSWORD", "password"),
		DBName:     getEnv("DB_NAME", "typerace"),

		MongoURI:      getEnv("MONGO_URI", ""),
		MongoDatabase: getEnv("MONGO_DATABASE", "typerace"),
	}
}

var validate = validator.New()

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// UnicastAddr is the host:port the server listens on and clients send to.
func (c *Config) UnicastAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

func (c *Config) PostgresEnabled() bool {
	return c.DBHost != ""
}

func (c *Config) MongoEnabled() bool {
	return c.MongoURI != ""
}

// getEnv reads an environment variable and returns its value or a default value
func getEnv(key, defaultValue string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		value = defaultValue
		log.Printf("Environment variable %s not set, using default value: %q", key, defaultValue)
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	raw := getEnv(key, strconv.Itoa(defaultValue))
	n, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("Environment variable %s=%q is not an integer, using default value: %d", key, raw, defaultValue)
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	raw := getEnv(key, defaultValue.String())
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("Environment variable %s=%q is not a duration, using default value: %s", key, raw, defaultValue)
		return defaultValue
	}
	return d
}
