package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
)

// Settings carries the environment-resolved runtime configuration for the
// gateway process. Every field has a development default so a bare
// `fireline` invocation comes up on sqlite with no broker attached.
type Settings struct {
	// DatabaseURL is a sqlite database path. sqlite:// style URLs are
	// accepted and normalized to plain paths.
	DatabaseURL string

	// Host and Port form the HTTP listen address.
	Host string
	Port int

	// Redis connection parameters. Recognized for deployment parity but no
	// component currently attaches to Redis.
	RedisHost     string
	RedisPort     int
	RedisPassword string

	// MQTT broker used to mirror mission events for field UIs. An empty
	// broker disables the mirror.
	MQTTBroker    string
	MQTTPort      int
	MQTTUsername  string
	MQTTPassword  string
	MissionsTopic string

	// CORS and host filtering.
	AllowedOrigins []string
	AllowedHosts   []string

	// SecretKey signs and verifies JWT bearer tokens.
	SecretKey          string
	TokenExpireMinutes int

	// RequireConfirm holds auto-synthesized missions in a proposed state
	// until an operator confirms them.
	RequireConfirm bool

	LogLevel string

	// External integration endpoints. Empty values disable the
	// corresponding notifier.
	ArcGISURL     string
	ArcGISToken   string
	CADWebhookURL string
}

// FromEnv builds Settings from process environment variables, applying
// defaults for anything unset.
func FromEnv() *Settings {
	return &Settings{
		DatabaseURL:   normalizeDatabaseURL(getEnv("DATABASE_URL", "fireline.db")),
		Host:          getEnv("API_GATEWAY_HOST", "0.0.0.0"),
		Port:          getEnvInt("API_GATEWAY_PORT", 8000),
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnvInt("REDIS_PORT", 6379),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		MQTTBroker:    getEnv("MQTT_BROKER", "localhost"),
		MQTTPort:      getEnvInt("MQTT_PORT", 1883),
		MQTTUsername:  getEnv("MQTT_USERNAME", ""),
		MQTTPassword:  getEnv("MQTT_PASSWORD", ""),
		MissionsTopic: getEnv("MISSIONS_TOPIC", getEnv("DISPATCHER_MISSIONS_TOPIC", "missions/updates")),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{
			"http://localhost:3000",
			"http://localhost:3001",
			"https://wildfire-ops.example.com",
		}),
		AllowedHosts:       getEnvList("ALLOWED_HOSTS", []string{"*"}),
		SecretKey:          getEnv("SECRET_KEY", "your-secret-key-here"),
		TokenExpireMinutes: getEnvInt("ACCESS_TOKEN_EXPIRE_MINUTES", 30),
		RequireConfirm:     getEnvBool("DISPATCHER_REQUIRE_CONFIRM", false),
		LogLevel:           strings.ToUpper(getEnv("LOG_LEVEL", "INFO")),
		ArcGISURL:          getEnv("ARCGIS_URL", ""),
		ArcGISToken:        getEnv("ARCGIS_TOKEN", ""),
		CADWebhookURL:      getEnv("CAD_WEBHOOK_URL", ""),
	}
}

// Addr returns the HTTP listen address as host:port.
func (s *Settings) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// DebugLogging reports whether DEBUG level logging is requested.
func (s *Settings) DebugLogging() bool {
	return s.LogLevel == "DEBUG"
}

// Validate rejects configurations the process cannot run with.
func (s *Settings) Validate() error {
	if s.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must not be empty")
	}
	if strings.Contains(s.DatabaseURL, "://") {
		return fmt.Errorf("unsupported database url %q: only sqlite paths are supported", s.DatabaseURL)
	}
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("API_GATEWAY_PORT %d out of range", s.Port)
	}
	if s.MQTTPort < 1 || s.MQTTPort > 65535 {
		return fmt.Errorf("MQTT_PORT %d out of range", s.MQTTPort)
	}
	if s.RedisPort < 1 || s.RedisPort > 65535 {
		return fmt.Errorf("REDIS_PORT %d out of range", s.RedisPort)
	}
	if s.TokenExpireMinutes <= 0 {
		return fmt.Errorf("ACCESS_TOKEN_EXPIRE_MINUTES must be positive, got %d", s.TokenExpireMinutes)
	}
	switch s.LogLevel {
	case "DEBUG", "INFO", "WARNING", "ERROR":
	default:
		return fmt.Errorf("unknown LOG_LEVEL %q", s.LogLevel)
	}
	return nil
}

// normalizeDatabaseURL strips sqlite URL prefixes so operators can reuse
// sqlite:///./fireline.db style values unchanged.
func normalizeDatabaseURL(u string) string {
	for _, prefix := range []string{"sqlite:///", "sqlite://", "sqlite:"} {
		if strings.HasPrefix(u, prefix) {
			return strings.TrimPrefix(u, prefix)
		}
	}
	return u
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}

func getEnvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
