package brand

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGet(t *testing.T) {
	b := Get()
	if b.Name == "" {
		t.Error("Brand name should not be empty")
	}
	// Version is a global variable, not in the struct
	if Version == "" {
		t.Error("Global Version should be initialized (to dev default)")
	}
	if Name == "" {
		t.Error("Global Name should be initialized")
	}
}

func TestUserAgent(t *testing.T) {
	ua := UserAgent("1.0.0")
	if ua != Name+"/1.0.0" {
		t.Errorf("unexpected user agent %q", ua)
	}

	uaDefault := UserAgent("")
	if uaDefault == "" {
		t.Error("UserAgent default should not be empty")
	}
}

func TestGetDirectories(t *testing.T) {
	// Reset envs
	cleanEnv := func() {
		os.Unsetenv(ConfigEnvPrefix + "_PREFIX")
		os.Unsetenv(ConfigEnvPrefix + "_CONFIG_DIR")
		os.Unsetenv(ConfigEnvPrefix + "_STATE_DIR")
		os.Unsetenv(ConfigEnvPrefix + "_LOG_DIR")
	}
	cleanEnv()
	defer cleanEnv()

	// Test Defaults
	if GetConfigDir() != DefaultConfigDir {
		t.Errorf("Expected default config dir %s, got %s", DefaultConfigDir, GetConfigDir())
	}
	if GetStateDir() != DefaultStateDir {
		t.Errorf("Expected default state dir %s, got %s", DefaultStateDir, GetStateDir())
	}
	if GetLogDir() != DefaultLogDir {
		t.Errorf("Expected default log dir %s, got %s", DefaultLogDir, GetLogDir())
	}

	// Test Prefix
	os.Setenv(ConfigEnvPrefix+"_PREFIX", "/tmp/homelab")
	if GetStateDir() != "/tmp/homelab/state" {
		t.Errorf("Expected prefix state dir, got %s", GetStateDir())
	}

	// Test Direct Override (Highest Priority)
	os.Setenv(ConfigEnvPrefix+"_STATE_DIR", "/custom/state")
	if GetStateDir() != "/custom/state" {
		t.Errorf("Expected custom state dir, got %s", GetStateDir())
	}
}

func TestDefaultConfigPath(t *testing.T) {
	os.Unsetenv(ConfigEnvPrefix + "_PREFIX")
	os.Unsetenv(ConfigEnvPrefix + "_CONFIG_DIR")
	want := filepath.Join(DefaultConfigDir, ConfigFileName)
	if got := DefaultConfigPath(); got != want {
		t.Errorf("DefaultConfigPath() = %s, want %s", got, want)
	}
}
