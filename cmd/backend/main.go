package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"zapfile/internal/blob"
	"zapfile/internal/jsonlog"
	"zapfile/internal/policy"
	"zapfile/internal/relay"
	"zapfile/internal/server"
	"zapfile/internal/store"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		jsonlog.Error("config_invalid", nil, err)
		os.Exit(1)
	}

	// Metadata store
	st, err := store.Open(cfg.database)
	if err != nil {
		jsonlog.Error("store_open_failed", map[string]any{"dsn": cfg.database}, err)
		os.Exit(1)
	}
	defer func() { _ = st.Close() }()

	// Blob store
	blobs, err := openBlobStore(cfg)
	if err != nil {
		jsonlog.Error("blob_store_open_failed", map[string]any{"backend": cfg.blobBackend}, err)
		os.Exit(1)
	}

	// Access policy
	pol, err := policy.New(cfg.allowedRanges, cfg.allowAllIPs)
	if err != nil {
		jsonlog.Error("policy_invalid", nil, err)
		os.Exit(1)
	}

	svc := relay.New(st, blobs, pol, cfg.maxFileBytes, cfg.maxTotalFiles)

	srv := server.New(server.Config{
		Addr:           cfg.addr,
		Relay:          svc,
		MaxUploadBytes: cfg.maxFileBytes,
		RateLimit:      cfg.rateLimit,
		RateWindow:     cfg.rateWindow,
	})

	// Graceful shutdown on SIGINT/SIGTERM.
	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		jsonlog.Info("server_starting", map[string]any{
			"addr":    cfg.addr,
			"backend": cfg.blobBackend,
		})
		if err := srv.Start(); err != nil {
			jsonlog.Error("server_stopped", nil, err)
			os.Exit(1)
		}
	}()

	<-done
	jsonlog.Info("shutting_down", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		jsonlog.Error("shutdown_failed", nil, err)
		os.Exit(1)
	}
}

type config struct {
	addr          string
	maxFileBytes  int64
	maxTotalFiles int
	allowedRanges []string
	allowAllIPs   bool
	storageDir    string
	database      string
	blobBackend   string
	s3            blob.S3Config
	rateLimit     int
	rateWindow    time.Duration
}

// loadConfig reads the environment once and validates fail-fast, so a
// misconfigured service never starts serving.
func loadConfig() (config, error) {
	cfg := config{
		addr:        getenvDefault("ZF_ADDR", ":8000"),
		storageDir:  getenvDefault("ZF_STORAGE_DIR", "uploads"),
		database:    getenvDefault("ZF_DATABASE", "zapfile.db"),
		blobBackend: getenvDefault("ZF_BLOB_BACKEND", "fs"),
	}

	var err error
	if cfg.maxFileBytes, err = getenvInt64("ZF_MAX_FILE_BYTES", 150*1024*1024); err != nil {
		return cfg, err
	}
	if cfg.maxFileBytes <= 0 {
		return cfg, fmt.Errorf("ZF_MAX_FILE_BYTES must be positive")
	}

	maxFiles, err := getenvInt64("ZF_MAX_TOTAL_FILES", 1000)
	if err != nil {
		return cfg, err
	}
	if maxFiles <= 0 {
		return cfg, fmt.Errorf("ZF_MAX_TOTAL_FILES must be positive")
	}
	cfg.maxTotalFiles = int(maxFiles)

	cfg.allowedRanges = splitRanges(getenvDefault("ZF_ALLOWED_IP_RANGES", ""))
	cfg.allowAllIPs = getenvDefault("ZF_ALLOW_ALL_IPS", "false") == "true"

	switch cfg.blobBackend {
	case "fs":
		// storageDir is created on open
	case "s3":
		cfg.s3 = blob.S3Config{
			Endpoint:  os.Getenv("ZF_S3_ENDPOINT"),
			AccessKey: os.Getenv("ZF_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("ZF_S3_SECRET_KEY"),
			Bucket:    os.Getenv("ZF_S3_BUCKET"),
		}
		if cfg.s3.Endpoint == "" || cfg.s3.AccessKey == "" || cfg.s3.SecretKey == "" || cfg.s3.Bucket == "" {
			return cfg, fmt.Errorf("s3 backend selected but ZF_S3_* configuration incomplete")
		}
	default:
		return cfg, fmt.Errorf("unknown ZF_BLOB_BACKEND %q (want fs or s3)", cfg.blobBackend)
	}

	rate, err := getenvInt64("ZF_RATE_LIMIT", 120)
	if err != nil {
		return cfg, err
	}
	cfg.rateLimit = int(rate)

	windowSecs, err := getenvInt64("ZF_RATE_WINDOW_SECONDS", 60)
	if err != nil {
		return cfg, err
	}
	if windowSecs <= 0 {
		return cfg, fmt.Errorf("ZF_RATE_WINDOW_SECONDS must be positive")
	}
	cfg.rateWindow = time.Duration(windowSecs) * time.Second

	return cfg, nil
}

func openBlobStore(cfg config) (blob.Store, error) {
	if cfg.blobBackend == "s3" {
		return blob.NewS3(cfg.s3)
	}
	return blob.NewFS(cfg.storageDir)
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt64(key string, def int64) (int64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return v, nil
}

// splitRanges parses the comma-separated CIDR list, dropping empty parts.
func splitRanges(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
