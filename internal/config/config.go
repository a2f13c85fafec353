package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	DynamoDB  DynamoDBConfig
	Redis     RedisConfig
	Firebase  FirebaseConfig
	JWT       JWTConfig
	OTP       OTPConfig
	SMS       SMSConfig
	WhatsApp  WhatsAppConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	AllowOrigin  string

	// TrustedProxies are the peers whose X-Forwarded-For and X-Real-IP
	// headers are believed. Empty means the socket address is always used.
	TrustedProxies []*net.IPNet
}

type DynamoDBConfig struct {
	Endpoint  string
	Region    string
	TableName string
}

type RedisConfig struct {
	Endpoint string
	Password string
	DB       int
}

type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
	Collection      string
}

type JWTConfig struct {
	SecretKey     string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

// Store backends for OTP records.
const (
	StoreDynamoDB  = "dynamodb"
	StoreRedis     = "redis"
	StoreFirestore = "firestore"
	StoreMemory    = "memory"
)

type OTPConfig struct {
	Length             int
	Expiry             time.Duration
	MaxAttempts        int
	ResendCooldown     time.Duration
	DefaultCountryCode string
	Store              string
	// DevMode logs codes and delivers through the console sender.
	DevMode bool
}

type SMSConfig struct {
	BaseURL string
	Token   string
	Sender  string
	Timeout time.Duration
}

type WhatsAppConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Rule mirrors service.Rule so config stays free of service imports.
type Rule struct {
	Window      time.Duration
	Max         int
	MinInterval time.Duration
}

type RateLimitConfig struct {
	SendPerIP    Rule
	SendPerPhone Rule
	VerifyPerIP  Rule
}

func Load() (*Config, error) {
	// A missing .env is fine; the environment wins either way.
	_ = godotenv.Load()

	proxies, err := parseTrustedProxies(getEnv("TRUSTED_PROXIES", ""))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			AllowOrigin:    getEnv("CORS_ALLOW_ORIGIN", "*"),
			TrustedProxies: proxies,
		},
		DynamoDB: DynamoDBConfig{
			Endpoint:  getEnv("DYNAMODB_ENDPOINT", ""),
			Region:    getEnv("DYNAMODB_REGION", "us-east-1"),
			TableName: getEnv("DYNAMODB_TABLE_NAME", "RecruitAuth"),
		},
		Redis: RedisConfig{
			Endpoint: getEnv("REDIS_ENDPOINT", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Firebase: FirebaseConfig{
			ProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
			CredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),
			Collection:      getEnv("FIREBASE_OTP_COLLECTION", "otps"),
		},
		JWT: JWTConfig{
			SecretKey:     getEnv("JWT_SECRET_KEY", ""),
			AccessExpiry:  getEnvAsDuration("JWT_ACCESS_EXPIRY", 15*time.Minute),
			RefreshExpiry: getEnvAsDuration("JWT_REFRESH_EXPIRY", 7*24*time.Hour),
		},
		OTP: OTPConfig{
			Length:             getEnvAsInt("OTP_LENGTH", 6),
			Expiry:             getEnvAsDuration("OTP_EXPIRY", 5*time.Minute),
			MaxAttempts:        getEnvAsInt("OTP_MAX_ATTEMPTS", 3),
			ResendCooldown:     getEnvAsDuration("OTP_RESEND_COOLDOWN", time.Minute),
			DefaultCountryCode: getEnv("OTP_DEFAULT_COUNTRY_CODE", "20"),
			Store:              strings.ToLower(getEnv("OTP_STORE", StoreDynamoDB)),
			DevMode:            getEnvAsBool("OTP_DEV_MODE", false),
		},
		SMS: SMSConfig{
			BaseURL: getEnv("BEON_SMS_BASE_URL", "https://v3.api.beon.chat/api/v3"),
			Token:   getEnv("BEON_SMS_TOKEN", ""),
			Sender:  getEnv("BEON_SMS_SENDER", "ElSahm"),
			Timeout: getEnvAsDuration("BEON_SMS_TIMEOUT", 10*time.Second),
		},
		WhatsApp: WhatsAppConfig{
			BaseURL: getEnv("WHATSAPP_OTP_BASE_URL", ""),
			Token:   getEnv("WHATSAPP_OTP_TOKEN", ""),
			Timeout: getEnvAsDuration("WHATSAPP_OTP_TIMEOUT", 10*time.Second),
		},
		RateLimit: RateLimitConfig{
			SendPerIP: Rule{
				Window:      getEnvAsDuration("RATE_SEND_IP_WINDOW", time.Hour),
				Max:         getEnvAsInt("RATE_SEND_IP_MAX", 10),
				MinInterval: getEnvAsDuration("RATE_SEND_IP_MIN_INTERVAL", 10*time.Second),
			},
			SendPerPhone: Rule{
				Window:      getEnvAsDuration("RATE_SEND_PHONE_WINDOW", time.Hour),
				Max:         getEnvAsInt("RATE_SEND_PHONE_MAX", 5),
				MinInterval: getEnvAsDuration("RATE_SEND_PHONE_MIN_INTERVAL", 30*time.Second),
			},
			VerifyPerIP: Rule{
				Window:      getEnvAsDuration("RATE_VERIFY_IP_WINDOW", 15*time.Minute),
				Max:         getEnvAsInt("RATE_VERIFY_IP_MAX", 20),
				MinInterval: getEnvAsDuration("RATE_VERIFY_IP_MIN_INTERVAL", time.Second),
			},
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWT.SecretKey == "" {
		return fmt.Errorf("JWT_SECRET_KEY environment variable is required")
	}

	if len(c.JWT.SecretKey) < 32 {
		return fmt.Errorf("JWT_SECRET_KEY must be at least 32 bytes (256 bits)")
	}

	switch c.OTP.Store {
	case StoreDynamoDB, StoreRedis, StoreMemory:
	case StoreFirestore:
		if c.Firebase.ProjectID == "" {
			return fmt.Errorf("FIREBASE_PROJECT_ID is required when OTP_STORE=firestore")
		}
	default:
		return fmt.Errorf("unknown OTP_STORE %q", c.OTP.Store)
	}

	if c.OTP.Length < 4 || c.OTP.Length > 8 {
		return fmt.Errorf("OTP_LENGTH must be between 4 and 8")
	}

	if c.OTP.MaxAttempts < 1 {
		return fmt.Errorf("OTP_MAX_ATTEMPTS must be positive")
	}

	if c.OTP.ResendCooldown > 0 && c.RateLimit.SendPerPhone.MinInterval >= c.OTP.ResendCooldown {
		return fmt.Errorf("RATE_SEND_PHONE_MIN_INTERVAL must be shorter than OTP_RESEND_COOLDOWN")
	}

	if !c.OTP.DevMode && c.SMS.Token == "" {
		return fmt.Errorf("BEON_SMS_TOKEN is required unless OTP_DEV_MODE is set")
	}

	return nil
}

// parseTrustedProxies reads a comma separated list of CIDRs or bare IPs.
func parseTrustedProxies(raw string) ([]*net.IPNet, error) {
	var nets []*net.IPNet
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.Contains(part, "/") {
			ip := net.ParseIP(part)
			if ip == nil {
				return nil, fmt.Errorf("invalid TRUSTED_PROXIES entry %q", part)
			}
			bits := 128
			if ip.To4() != nil {
				ip, bits = ip.To4(), 32
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(part)
		if err != nil {
			return nil, fmt.Errorf("invalid TRUSTED_PROXIES entry %q: %w", part, err)
		}
		nets = append(nets, n)
	}
	return nets, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
