package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klali/asterix/scp03"
)

const testENCKey = "0001020304050607080910111213141516170000"[:32]
const testMACKey = "404142434445464748494A4B4C4D4E4F"[:32]
const testDEKKey = "9876543210404142434445464748494A"[:32]

func TestLoadValidFullConfigAndResolveRelativePaths(t *testing.T) {
	tmp := t.TempDir()
	encPath := filepath.Join(tmp, "enc.hex")
	macPath := filepath.Join(tmp, "mac.hex")
	if err := os.WriteFile(encPath, []byte(testENCKey+"\n"), 0o644); err != nil {
		t.Fatalf("write enc key: %v", err)
	}
	if err := os.WriteFile(macPath, []byte(testMACKey+"\n"), 0o644); err != nil {
		t.Fatalf("write mac key: %v", err)
	}

	cfgPath := filepath.Join(tmp, "config.yaml")
	cfgYAML := `
reader_index: 0
sd_aid: "A000000151000000"
i: 0x70
key_version: 0x30
sl: 1
keys:
  enc_hex_file: "enc.hex"
  mac_hex_file: "mac.hex"
`
	if err := os.WriteFile(cfgPath, []byte(cfgYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(cfg.Keys.ENC) != 16 || len(cfg.Keys.MAC) != 16 {
		t.Fatalf("expected 16-byte ENC/MAC keys, got %d/%d", len(cfg.Keys.ENC), len(cfg.Keys.MAC))
	}
	if len(cfg.Keys.DEK) != 16 {
		t.Fatalf("expected DEK to default to the ENC key, got %d bytes", len(cfg.Keys.DEK))
	}
	if cfg.Keys.KeyVersion != 0x30 {
		t.Fatalf("expected key_version 0x30, got %#x", cfg.Keys.KeyVersion)
	}
	if cfg.I != 0x70 {
		t.Fatalf("expected i=0x70, got %#x", cfg.I)
	}
}

func TestLoadWithModeKeysOnlyAllowsMissingSL(t *testing.T) {
	cfgPath := writeConfigWithKeys(t, `
reader_index: 0
keys:
  enc_hex_file: "ENC"
  mac_hex_file: "MAC"
`, "ENC", "MAC")

	cfg, err := LoadWithMode(cfgPath, ValidationKeysOnly)
	if err != nil {
		t.Fatalf("LoadWithMode returned error: %v", err)
	}
	if cfg.Keys.ENC == nil {
		t.Fatalf("expected ENC key to be loaded")
	}
}

func TestLoadFullFailsWithoutSL(t *testing.T) {
	cfgPath := writeConfigWithKeys(t, `
reader_index: 0
keys:
  enc_hex_file: "ENC"
  mac_hex_file: "MAC"
`, "ENC", "MAC")

	_, err := Load(cfgPath)
	if !scp03.IsConfigError(err) || !strings.Contains(err.Error(), "sl") {
		t.Fatalf("expected missing sl ConfigError, got %v", err)
	}
}

func TestLoadFailsWithoutReaderIndex(t *testing.T) {
	cfgPath := writeConfigWithKeys(t, `
keys:
  enc_hex_file: "ENC"
  mac_hex_file: "MAC"
sl: 1
`, "ENC", "MAC")

	_, err := Load(cfgPath)
	if !scp03.IsConfigError(err) || !strings.Contains(err.Error(), "reader_index") {
		t.Fatalf("expected missing reader_index ConfigError, got %v", err)
	}
}

func TestLoadFailsWithoutMACKeyFile(t *testing.T) {
	cfgPath := writeConfig(t, `
reader_index: 0
sl: 1
keys:
  enc_hex_file: "ENC"
`)

	_, err := Load(cfgPath)
	if !scp03.IsConfigError(err) || !strings.Contains(err.Error(), "keys.mac_hex_file") {
		t.Fatalf("expected missing mac_hex_file ConfigError, got %v", err)
	}
}

func TestLoadFailsOnMissingKeyFile(t *testing.T) {
	cfgPath := writeConfig(t, `
reader_index: 0
sl: 1
keys:
  enc_hex_file: "nonexistent-enc.hex"
  mac_hex_file: "nonexistent-mac.hex"
`)

	_, err := Load(cfgPath)
	if !scp03.IsConfigError(err) || !strings.Contains(err.Error(), "keys.enc_hex_file") {
		t.Fatalf("expected enc key file ConfigError, got %v", err)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	cfgPath := writeConfigWithKeys(t, `
reader_index: 0
sl: 1
bogus_field: true
keys:
  enc_hex_file: "ENC"
  mac_hex_file: "MAC"
`, "ENC", "MAC")

	_, err := Load(cfgPath)
	if err == nil || !strings.Contains(err.Error(), "parse config yaml") {
		t.Fatalf("expected strict decode to reject unknown field, got %v", err)
	}
}

func TestLoadRejectsInvalidSDAID(t *testing.T) {
	cfgPath := writeConfigWithKeys(t, `
reader_index: 0
sl: 1
sd_aid: "ZZ"
keys:
  enc_hex_file: "ENC"
  mac_hex_file: "MAC"
`, "ENC", "MAC")

	_, err := Load(cfgPath)
	if !scp03.IsConfigError(err) || !strings.Contains(err.Error(), "sd_aid") {
		t.Fatalf("expected invalid sd_aid ConfigError, got %v", err)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath
}

func writeConfigWithKeys(t *testing.T, content, encName, macName string) string {
	t.Helper()
	cfgPath := writeConfig(t, content)
	baseDir := filepath.Dir(cfgPath)
	encPath := filepath.Join(baseDir, encName)
	macPath := filepath.Join(baseDir, macName)
	if err := os.WriteFile(encPath, []byte(testENCKey+"\n"), 0o644); err != nil {
		t.Fatalf("write enc key: %v", err)
	}
	if err := os.WriteFile(macPath, []byte(testMACKey+"\n"), 0o644); err != nil {
		t.Fatalf("write mac key: %v", err)
	}
	return cfgPath
}
