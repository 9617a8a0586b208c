// Package config loads pipeline configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Sinnan1/PhotoPortal-sub002/internal/img"
)

type S3 struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	PublicBaseURL   string
}

type Config struct {
	ServerAddr  string
	DatabaseURL string

	// NATSURL is optional; when empty no events are published.
	NATSURL           string
	DoneSubject       string
	RegisteredSubject string

	S3 S3

	Sizes       []img.Size
	JPEGQuality int

	// QueueWorkers caps concurrent derivative jobs; 0 means one per CPU core.
	QueueWorkers int

	SignTTL          time.Duration
	StoreTimeout     time.Duration
	PartProxyTimeout time.Duration
	MaxPartSize      int64

	// AllowedContentTypes accepted at upload creation. Entries ending in "/*"
	// match by prefix.
	AllowedContentTypes []string

	RegenBatchSize int
}

func Load() (Config, error) {
	cfg := Config{
		ServerAddr:        getenv("SERVER_ADDR", ":8080"),
		DatabaseURL:       getenv("DATABASE_URL", ""),
		NATSURL:           getenv("NATS_URL", ""),
		DoneSubject:       getenv("SUBJECT_THUMBNAIL_DONE", "photos.thumbnail.done"),
		RegisteredSubject: getenv("SUBJECT_PHOTO_REGISTERED", "photos.registered"),
		S3: S3{
			Endpoint:        getenv("S3_ENDPOINT", ""),
			Region:          getenv("S3_REGION", "us-east-1"),
			Bucket:          getenv("S3_BUCKET", ""),
			AccessKeyID:     getenv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getenv("S3_SECRET_ACCESS_KEY", ""),
			UsePathStyle:    getenvBool("S3_USE_PATH_STYLE", false),
			PublicBaseURL:   getenv("S3_PUBLIC_BASE_URL", ""),
		},
		Sizes: img.DefaultSizes(),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.S3.Bucket == "" {
		return Config{}, fmt.Errorf("S3_BUCKET is required")
	}

	if sizesEnv := getenv("THUMBNAIL_SIZES", ""); sizesEnv != "" {
		sizes, err := parseThumbnailSizes(sizesEnv)
		if err != nil {
			return Config{}, fmt.Errorf("parse THUMBNAIL_SIZES: %w", err)
		}
		cfg.Sizes = sizes
	}

	quality, err := parsePositiveInt(getenv("JPEG_QUALITY", "80"), "JPEG_QUALITY")
	if err != nil {
		return Config{}, err
	}
	cfg.JPEGQuality = quality

	workers, err := parseNonNegativeInt(getenv("QUEUE_WORKERS", "0"), "QUEUE_WORKERS")
	if err != nil {
		return Config{}, err
	}
	cfg.QueueWorkers = workers

	signTTL, err := parsePositiveInt(getenv("UPLOAD_SIGN_TTL_SECONDS", "900"), "UPLOAD_SIGN_TTL_SECONDS")
	if err != nil {
		return Config{}, err
	}
	cfg.SignTTL = time.Duration(signTTL) * time.Second

	storeTimeout, err := parsePositiveInt(getenv("STORE_TIMEOUT_SECONDS", "30"), "STORE_TIMEOUT_SECONDS")
	if err != nil {
		return Config{}, err
	}
	cfg.StoreTimeout = time.Duration(storeTimeout) * time.Second

	partTimeout, err := parsePositiveInt(getenv("PART_PROXY_TIMEOUT_SECONDS", "60"), "PART_PROXY_TIMEOUT_SECONDS")
	if err != nil {
		return Config{}, err
	}
	cfg.PartProxyTimeout = time.Duration(partTimeout) * time.Second

	maxPart, err := parsePositiveInt(getenv("MAX_PART_SIZE_BYTES", strconv.Itoa(64<<20)), "MAX_PART_SIZE_BYTES")
	if err != nil {
		return Config{}, err
	}
	cfg.MaxPartSize = int64(maxPart)

	cfg.AllowedContentTypes = splitList(getenv("UPLOAD_CONTENT_TYPES", "image/*,application/octet-stream"))

	batch, err := parsePositiveInt(getenv("REGEN_BATCH_SIZE", "100"), "REGEN_BATCH_SIZE")
	if err != nil {
		return Config{}, err
	}
	cfg.RegenBatchSize = batch

	return cfg, nil
}

// parseThumbnailSizes reads "name:WxH,name:WxH" entries.
func parseThumbnailSizes(sizesEnv string) ([]img.Size, error) {
	var sizes []img.Size
	for _, pair := range strings.Split(sizesEnv, ",") {
		parts := strings.Split(strings.TrimSpace(pair), ":")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid size format %q, expected 'name:WxH'", pair)
		}

		name := strings.TrimSpace(parts[0])
		dims := strings.Split(parts[1], "x")
		if len(dims) != 2 {
			return nil, fmt.Errorf("invalid dimensions %q, expected 'WxH'", parts[1])
		}

		width, err := strconv.Atoi(strings.TrimSpace(dims[0]))
		if err != nil || width <= 0 {
			return nil, fmt.Errorf("invalid width in %q", pair)
		}
		height, err := strconv.Atoi(strings.TrimSpace(dims[1]))
		if err != nil || height <= 0 {
			return nil, fmt.Errorf("invalid height in %q", pair)
		}

		sizes = append(sizes, img.Size{Name: name, Width: width, Height: height})
	}
	if len(sizes) == 0 {
		return nil, fmt.Errorf("no sizes configured")
	}
	return sizes, nil
}

func parsePositiveInt(value, name string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be greater than zero (got %d)", name, v)
	}
	return v, nil
}

func parseNonNegativeInt(value, name string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("%s must not be negative (got %d)", name, v)
	}
	return v, nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getenvBool(key string, defaultValue bool) bool {
	val := getenv(key, "")
	if val == "" {
		return defaultValue
	}
	return val == "true"
}
