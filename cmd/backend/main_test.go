package main

import (
	"os"
	"reflect"
	"testing"
)

func TestGetenvDefault(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		def      string
		envValue string
		want     string
	}{
		{
			name:     "env var set",
			key:      "TEST_VAR_SET",
			def:      "default",
			envValue: "custom",
			want:     "custom",
		},
		{
			name:     "env var empty",
			key:      "TEST_VAR_EMPTY",
			def:      "default",
			envValue: "",
			want:     "default",
		},
		{
			name:     "env var not set",
			key:      "TEST_VAR_NOTSET",
			def:      "default",
			envValue: "",
			want:     "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Unsetenv(tt.key)
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}

			got := getenvDefault(tt.key, tt.def)
			if got != tt.want {
				t.Errorf("getenvDefault(%q, %q) = %q, want %q", tt.key, tt.def, got, tt.want)
			}
		})
	}
}

func TestGetenvInt64(t *testing.T) {
	t.Setenv("TEST_INT_OK", "42")
	if v, err := getenvInt64("TEST_INT_OK", 7); err != nil || v != 42 {
		t.Errorf("got %d, %v; want 42, nil", v, err)
	}

	os.Unsetenv("TEST_INT_UNSET")
	if v, err := getenvInt64("TEST_INT_UNSET", 7); err != nil || v != 7 {
		t.Errorf("got %d, %v; want 7, nil", v, err)
	}

	t.Setenv("TEST_INT_BAD", "not-a-number")
	if _, err := getenvInt64("TEST_INT_BAD", 7); err == nil {
		t.Error("expected error for non-integer value")
	}
}

func TestSplitRanges(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"10.0.0.0/8", []string{"10.0.0.0/8"}},
		{"10.0.0.0/8, 192.168.1.0/24", []string{"10.0.0.0/8", "192.168.1.0/24"}},
		{" , 10.0.0.0/8,, ", []string{"10.0.0.0/8"}},
	}
	for _, tt := range tests {
		if got := splitRanges(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitRanges(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{
		"ZF_ADDR", "ZF_MAX_FILE_BYTES", "ZF_MAX_TOTAL_FILES",
		"ZF_ALLOWED_IP_RANGES", "ZF_ALLOW_ALL_IPS", "ZF_STORAGE_DIR",
		"ZF_DATABASE", "ZF_BLOB_BACKEND",
	} {
		os.Unsetenv(key)
	}

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.addr != ":8000" {
		t.Errorf("addr = %q", cfg.addr)
	}
	if cfg.maxFileBytes != 150*1024*1024 {
		t.Errorf("maxFileBytes = %d", cfg.maxFileBytes)
	}
	if cfg.maxTotalFiles != 1000 {
		t.Errorf("maxTotalFiles = %d", cfg.maxTotalFiles)
	}
	if cfg.allowAllIPs {
		t.Error("allowAllIPs should default to false")
	}
	if cfg.blobBackend != "fs" {
		t.Errorf("blobBackend = %q", cfg.blobBackend)
	}
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	t.Setenv("ZF_MAX_FILE_BYTES", "-5")
	if _, err := loadConfig(); err == nil {
		t.Error("negative ZF_MAX_FILE_BYTES accepted")
	}
	os.Unsetenv("ZF_MAX_FILE_BYTES")

	t.Setenv("ZF_BLOB_BACKEND", "tape")
	if _, err := loadConfig(); err == nil {
		t.Error("unknown ZF_BLOB_BACKEND accepted")
	}
	os.Unsetenv("ZF_BLOB_BACKEND")

	t.Setenv("ZF_BLOB_BACKEND", "s3")
	if _, err := loadConfig(); err == nil {
		t.Error("s3 backend without ZF_S3_* settings accepted")
	}
}
