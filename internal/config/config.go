package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Addr          string
	DataDir       string
	QueueBackend  string // "memory" or "nats"
	QueueCapacity int
	NATSURL       string
	NATSSubject   string
	FFmpegPath    string
	MaxFrames     int
	MaxUploadMB   int
}

func Load() Config {
	return Config{
		Addr:          getenv("FORGESYTE_ADDR", ":8080"),
		DataDir:       getenv("FORGESYTE_DATA_DIR", "./local-data"),
		QueueBackend:  strings.ToLower(getenv("FORGESYTE_QUEUE", "memory")),
		QueueCapacity: getenvInt("FORGESYTE_QUEUE_CAPACITY", 256),
		NATSURL:       getenv("FORGESYTE_NATS_URL", "nats://localhost:4222"),
		NATSSubject:   getenv("FORGESYTE_NATS_SUBJECT", "forgesyte.jobs"),
		FFmpegPath:    getenv("FORGESYTE_FFMPEG", "ffmpeg"),
		MaxFrames:     getenvInt("FORGESYTE_MAX_FRAMES", 64),
		MaxUploadMB:   getenvInt("FORGESYTE_MAX_UPLOAD_MB", 50),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
