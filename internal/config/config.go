package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	Azure     AzureConfig
	Graph     GraphConfig
	Session   SessionConfig
	Scheduler SchedulerConfig
	Upload    UploadConfig
	CORS      CORSConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// AzureConfig describes the identity-provider app registration used for the
// authorization-code flow. Authority defaults to the public Microsoft
// endpoint for the configured tenant; tests point it at a local issuer.
type AzureConfig struct {
	ClientID     string
	ClientSecret string
	TenantID     string
	Authority    string
	RedirectPath string
	RedirectURI  string
	Scopes       []string
}

type GraphConfig struct {
	BaseURL string
	Timeout time.Duration
}

type SessionConfig struct {
	CookieName string
	TTL        time.Duration
}

type SchedulerConfig struct {
	Tick time.Duration
}

type UploadConfig struct {
	Dir string
}

type CORSConfig struct {
	Origins []string
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type RateLimitConfig struct {
	Enabled       bool
	RPS           float64
	Burst         int
	UseRedis      bool
	WindowSeconds int
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env")

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "5000")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_ENVIRONMENT", "development")
	viper.SetDefault("BASE_URL", "http://localhost:5000")
	viper.SetDefault("AZURE_TENANT_ID", "common")
	viper.SetDefault("AUTH_REDIRECT_PATH", "/auth/redirect")
	viper.SetDefault("AZURE_SCOPE", "User.Read Mail.Send offline_access openid profile email")
	viper.SetDefault("GRAPH_BASE_URL", "https://graph.microsoft.com/v1.0")
	viper.SetDefault("GRAPH_TIMEOUT", 15)
	viper.SetDefault("SESSION_COOKIE_NAME", "sid")
	viper.SetDefault("SESSION_TTL", 1440)
	viper.SetDefault("SCHEDULER_TICK", 1)
	viper.SetDefault("UPLOAD_DIR", "./data/uploads")
	viper.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	viper.SetDefault("MONGODB_DATABASE", "mailbridge")
	viper.SetDefault("MONGODB_TIMEOUT", 10)
	viper.SetDefault("RATE_LIMIT_RPS", 10.0)
	viper.SetDefault("RATE_LIMIT_BURST", 20)
	viper.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)

	tenant := viper.GetString("AZURE_TENANT_ID")
	viper.SetDefault("AZURE_AUTHORITY", "https://login.microsoftonline.com/"+tenant)

	redirectPath := viper.GetString("AUTH_REDIRECT_PATH")
	viper.SetDefault("AUTH_REDIRECT_URI", viper.GetString("BASE_URL")+redirectPath)

	cfg := &Config{
		Server: ServerConfig{
			Port:         viper.GetString("SERVER_PORT"),
			Host:         viper.GetString("SERVER_HOST"),
			Environment:  viper.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Azure: AzureConfig{
			ClientID:     viper.GetString("AZURE_CLIENT_ID"),
			ClientSecret: os.Getenv("AZURE_CLIENT_SECRET"),
			TenantID:     tenant,
			Authority:    viper.GetString("AZURE_AUTHORITY"),
			RedirectPath: redirectPath,
			RedirectURI:  viper.GetString("AUTH_REDIRECT_URI"),
			Scopes:       strings.Fields(viper.GetString("AZURE_SCOPE")),
		},
		Graph: GraphConfig{
			BaseURL: viper.GetString("GRAPH_BASE_URL"),
			Timeout: time.Duration(viper.GetInt("GRAPH_TIMEOUT")) * time.Second,
		},
		Session: SessionConfig{
			CookieName: viper.GetString("SESSION_COOKIE_NAME"),
			TTL:        time.Duration(viper.GetInt("SESSION_TTL")) * time.Minute,
		},
		Scheduler: SchedulerConfig{
			Tick: time.Duration(viper.GetInt("SCHEDULER_TICK")) * time.Second,
		},
		Upload: UploadConfig{
			Dir: viper.GetString("UPLOAD_DIR"),
		},
		CORS: CORSConfig{
			Origins: splitList(viper.GetString("CORS_ORIGINS")),
		},
		MongoDB: MongoDBConfig{
			URI:      viper.GetString("MONGODB_URI"),
			Database: viper.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(viper.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       0,
		},
		RateLimit: RateLimitConfig{
			Enabled:       viper.GetBool("RATE_LIMIT_ENABLED"),
			RPS:           viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         viper.GetInt("RATE_LIMIT_BURST"),
			UseRedis:      viper.GetBool("RATE_LIMIT_USE_REDIS"),
			WindowSeconds: viper.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
	}

	// Basic validation
	if cfg.Azure.ClientID == "" {
		log.Println("WARNING: AZURE_CLIENT_ID is not set; login will fail until the app registration is configured")
	}

	return cfg, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
