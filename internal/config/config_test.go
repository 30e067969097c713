package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Version != 1 {
		t.Errorf("Version = %d, want 1", cfg.Version)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Errorf("Storage.Driver = %q, want sqlite", cfg.Storage.Driver)
	}
	if cfg.Storage.Timeout().Seconds() != 5 {
		t.Errorf("Storage.Timeout() = %v, want 5s", cfg.Storage.Timeout())
	}
	if cfg.Notify.Redis.Enabled || cfg.Notify.MQTT.Enabled {
		t.Error("external notifiers should be disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Server.Port != 8765 {
		t.Errorf("Server.Port = %d, want default 8765", cfg.Server.Port)
	}
}

func TestLoadConfig_JSONOverridesDefaults(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, DirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	content := `{"version": 1, "storage": {"driver": "memory", "timeoutMs": 250}, "server": {"port": 9000}}`
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(root)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Storage.Driver != "memory" || cfg.Storage.TimeoutMs != 250 {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Server.Host != "localhost" {
		t.Errorf("unset keys should keep defaults, Host = %q", cfg.Server.Host)
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("PSUROPS_STORAGE_DRIVER", "memory")
	t.Setenv("PSUROPS_SERVER_PORT", "7001")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Storage.Driver != "memory" {
		t.Errorf("Storage.Driver = %q, want memory", cfg.Storage.Driver)
	}
	if cfg.Server.Port != 7001 {
		t.Errorf("Server.Port = %d, want 7001", cfg.Server.Port)
	}
}

func TestSaveAndLoadFile(t *testing.T) {
	for _, ext := range []string{".json", ".yaml", ".toml"} {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", "config"+ext)
			cfg := DefaultConfig()
			cfg.Storage.Driver = "memory"
			cfg.Notify.Webhooks = []WebhookConfig{{ID: "ops", URL: "https://hooks.example.com/psur", Events: []string{"update"}}}

			if err := cfg.Save(path); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			loaded, err := LoadFile(path)
			if err != nil {
				t.Fatalf("LoadFile() error = %v", err)
			}
			if loaded.Storage.Driver != "memory" {
				t.Errorf("Storage.Driver = %q, want memory", loaded.Storage.Driver)
			}
			if len(loaded.Notify.Webhooks) != 1 || loaded.Notify.Webhooks[0].URL != "https://hooks.example.com/psur" {
				t.Errorf("webhooks = %+v", loaded.Notify.Webhooks)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad version", func(c *Config) { c.Version = 9 }, "version"},
		{"bad driver", func(c *Config) { c.Storage.Driver = "mongo" }, "storage.driver"},
		{"sqlite without path", func(c *Config) { c.Storage.Path = "" }, "storage.path"},
		{"zero timeout", func(c *Config) { c.Storage.TimeoutMs = 0 }, "storage.timeoutMs"},
		{"s3 without bucket", func(c *Config) { c.Export.Blob.Driver = "s3" }, "export.blob.bucket"},
		{"webhook without url", func(c *Config) { c.Notify.Webhooks = []WebhookConfig{{ID: "x"}} }, "notify.webhooks[0].url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			ce, ok := err.(*ConfigError)
			if !ok {
				t.Fatalf("expected *ConfigError, got %T", err)
			}
			if ce.Field != tt.field {
				t.Errorf("Field = %q, want %q", ce.Field, tt.field)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("Error() = %q should mention field", err.Error())
			}
		})
	}
}
