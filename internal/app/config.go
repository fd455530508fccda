package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const productionTempRoot = "/app/temp"

type Config struct {
	Port            int
	Env             string
	LogLevel        string
	LogFormat       string
	TempRoot        string
	FFMPEGPath      string
	FFProbePath     string
	BTPort          int
	SwarmProfile    string // "default" or "aggressive"
	MaxStreams      int    // concurrent stream admission; 0 = unlimited
	ReadinessWait   time.Duration
	JanitorInterval time.Duration
	JanitorMaxAge   time.Duration
	ReEncodeFirst   bool // skip stream copy and go straight to re-encode
}

// LoadConfig reads .env (best-effort) and the environment. In production the
// temp root moves to a container-local path unless overridden.
func LoadConfig() Config {
	_ = godotenv.Load()

	env := strings.ToLower(getEnv("APP_ENV", "development"))
	tempRoot := getEnv("TEMP_ROOT", "")
	if tempRoot == "" {
		if env == "production" {
			tempRoot = productionTempRoot
		} else {
			tempRoot = "temp"
		}
	}

	return Config{
		Port:            int(getEnvInt64("PORT", 3000)),
		Env:             env,
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:       strings.ToLower(getEnv("LOG_FORMAT", "text")),
		TempRoot:        tempRoot,
		FFMPEGPath:      getEnv("FFMPEG_PATH", "ffmpeg"),
		FFProbePath:     getEnv("FFPROBE_PATH", "ffprobe"),
		BTPort:          int(getEnvInt64("BT_PORT", 6881)),
		SwarmProfile:    strings.ToLower(getEnv("SWARM_PROFILE", "default")),
		MaxStreams:      int(getEnvInt64("MAX_STREAMS", 4)),
		ReadinessWait:   getEnvDuration("READINESS_WAIT", 60*time.Second),
		JanitorInterval: getEnvDuration("JANITOR_INTERVAL", 10*time.Minute),
		JanitorMaxAge:   getEnvDuration("JANITOR_MAX_AGE", 30*time.Minute),
		ReEncodeFirst:   getEnvBool("REENCODE_FIRST", false),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	if parsed < 0 {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
