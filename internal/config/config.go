// Package config loads the YAML configuration for the scp03ctl demo CLI:
// the reader to use, the static key material, and the negotiated security
// level and SCP parameters.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/klali/asterix/scp03"
)

type ValidationMode int

const (
	ValidationFull ValidationMode = iota
	ValidationKeysOnly
)

// Config is the on-disk shape of a host configuration file.
type Config struct {
	ReaderIndex *int      `yaml:"reader_index"`
	SDAID       string    `yaml:"sd_aid"`
	I           *int      `yaml:"i"`
	KeyVersion  *int      `yaml:"key_version"`
	SL          *int      `yaml:"sl"`
	Keys        KeysBlock `yaml:"keys"`
}

type KeysBlock struct {
	ENCHexFile string `yaml:"enc_hex_file"`
	MACHexFile string `yaml:"mac_hex_file"`
	DEKHexFile string `yaml:"dek_hex_file"`
}

// HostConfig is the resolved, validated configuration, ready to build an
// scp03.SessionConfig from.
type HostConfig struct {
	ReaderIndex int
	SDAID       []byte
	I           byte
	SL          scp03.SecurityLevel
	Keys        scp03.StaticKeySet
}

func Load(path string) (*HostConfig, error) {
	return LoadWithMode(path, ValidationFull)
}

func LoadWithMode(path string, mode ValidationMode) (*HostConfig, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)

	var raw Config
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	raw.resolvePaths(path)

	return raw.resolve(mode)
}

func (c *Config) resolvePaths(configPath string) {
	dir := filepath.Dir(configPath)
	c.Keys.ENCHexFile = resolvePath(dir, c.Keys.ENCHexFile)
	c.Keys.MACHexFile = resolvePath(dir, c.Keys.MACHexFile)
	c.Keys.DEKHexFile = resolvePath(dir, c.Keys.DEKHexFile)
}

func resolvePath(baseDir, path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Clean(filepath.Join(baseDir, trimmed))
}

func (c *Config) resolve(mode ValidationMode) (*HostConfig, error) {
	if c.ReaderIndex == nil {
		return nil, &scp03.ConfigError{Field: "reader_index", Msg: "is required"}
	}
	if *c.ReaderIndex < 0 {
		return nil, &scp03.ConfigError{Field: "reader_index", Msg: "must be >= 0"}
	}

	if strings.TrimSpace(c.Keys.ENCHexFile) == "" {
		return nil, &scp03.ConfigError{Field: "keys.enc_hex_file", Msg: "is required"}
	}
	if strings.TrimSpace(c.Keys.MACHexFile) == "" {
		return nil, &scp03.ConfigError{Field: "keys.mac_hex_file", Msg: "is required"}
	}
	enc, err := LoadAESKeyHexFile(c.Keys.ENCHexFile)
	if err != nil {
		return nil, &scp03.ConfigError{Field: "keys.enc_hex_file", Msg: err.Error()}
	}
	mac, err := LoadAESKeyHexFile(c.Keys.MACHexFile)
	if err != nil {
		return nil, &scp03.ConfigError{Field: "keys.mac_hex_file", Msg: err.Error()}
	}
	var dek []byte
	if strings.TrimSpace(c.Keys.DEKHexFile) != "" {
		dek, err = LoadAESKeyHexFile(c.Keys.DEKHexFile)
		if err != nil {
			return nil, &scp03.ConfigError{Field: "keys.dek_hex_file", Msg: err.Error()}
		}
	} else {
		dek = enc
	}

	hc := &HostConfig{
		ReaderIndex: *c.ReaderIndex,
		Keys: scp03.StaticKeySet{
			ENC: enc,
			MAC: mac,
			DEK: dek,
		},
	}

	if c.KeyVersion != nil {
		if *c.KeyVersion < 0 || *c.KeyVersion > 0xFF {
			return nil, &scp03.ConfigError{Field: "key_version", Msg: "must be 0..255"}
		}
		hc.Keys.KeyVersion = byte(*c.KeyVersion)
	}

	if strings.TrimSpace(c.SDAID) != "" {
		aid, err := parseHexAID(c.SDAID)
		if err != nil {
			return nil, &scp03.ConfigError{Field: "sd_aid", Msg: err.Error()}
		}
		hc.SDAID = aid
	}

	if c.I != nil {
		if *c.I < 0 || *c.I > 0xFF {
			return nil, &scp03.ConfigError{Field: "i", Msg: "must be 0..255"}
		}
		hc.I = byte(*c.I)
	}

	if mode == ValidationKeysOnly {
		return hc, nil
	}

	if c.SL == nil {
		return nil, &scp03.ConfigError{Field: "sl", Msg: "is required"}
	}
	if *c.SL < 0 || *c.SL > 0xFF {
		return nil, &scp03.ConfigError{Field: "sl", Msg: "must be 0..255"}
	}
	hc.SL = scp03.SecurityLevel(*c.SL)

	return hc, nil
}

func parseHexAID(s string) ([]byte, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, " ", ""))
	b := make([]byte, len(s)/2)
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("odd-length hex string")
	}
	for i := range b {
		var v byte
		if _, err := fmt.Sscanf(s[2*i:2*i+2], "%02X", &v); err != nil {
			return nil, fmt.Errorf("invalid hex byte %q: %w", s[2*i:2*i+2], err)
		}
		b[i] = v
	}
	if len(b) < 5 || len(b) > 16 {
		return nil, fmt.Errorf("AID must be 5-16 bytes, got %d", len(b))
	}
	return b, nil
}
