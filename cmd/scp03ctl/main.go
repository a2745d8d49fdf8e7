// Command scp03ctl opens a GlobalPlatform SCP03 secure channel against a
// card in a PC/SC reader, runs mutual authentication at the configured
// security level, and transmits a single cleartext APDU given on the
// command line through the resulting secure channel.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/klali/asterix/internal/config"
	"github.com/klali/asterix/scp03"
	"github.com/klali/asterix/transport"
)

const configFileName = "config.yaml"

func main() {
	verbose := flag.Bool("v", false, "enable debug logging")
	logFormat := flag.String("log-format", "text", "log format: text or json")
	configFlag := flag.String("config", "", "path to config.yaml (defaults to alongside the binary or cwd)")
	apduHex := flag.String("apdu", "", "hex-encoded cleartext APDU to transmit once the channel is authenticated")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if *logFormat == "json" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, opts)))
	} else {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, opts)))
	}

	configPath := *configFlag
	if configPath == "" {
		var err error
		configPath, err = defaultConfigPath()
		if err != nil {
			log.Fatalf("resolve config path failed: %v", err)
		}
	}
	fmt.Printf("Using config: %s\n", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	conn, err := transport.Connect(cfg.ReaderIndex)
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()
	fmt.Printf("Using reader [%d]: %s\n", conn.ReaderIdx, conn.Reader)

	sess, err := scp03.NewSession(scp03.SessionConfig{
		Keys:  cfg.Keys,
		I:     cfg.I,
		SDAID: cfg.SDAID,
	})
	if err != nil {
		log.Fatalf("session configuration invalid: %v", err)
	}
	defer sess.Close()

	ch := transport.New(conn, sess)

	aid := cfg.SDAID
	if aid == nil {
		aid = scp03.DefaultSDAID
	}
	hostChallenge, err := randomChallenge()
	if err != nil {
		log.Fatalf("generate host challenge: %v", err)
	}

	fmt.Printf("Authenticating at SL=%#x...\n", byte(cfg.SL))
	if err := ch.MutualAuthenticate(cfg.SL, hostChallenge, 0, aid); err != nil {
		log.Fatalf("mutual authentication failed: %v", err)
	}
	fmt.Println("Secure channel established.")

	if *apduHex == "" {
		return
	}
	apdu, err := hex.DecodeString(*apduHex)
	if err != nil {
		log.Fatalf("invalid -apdu hex: %v", err)
	}
	data, sw1, sw2, err := ch.Transmit(apdu)
	if err != nil {
		log.Fatalf("transmit failed: %v", err)
	}
	fmt.Printf("Response: %X SW=%02X%02X\n", data, sw1, sw2)
}

func randomChallenge() ([8]byte, error) {
	var c [8]byte
	if _, err := io.ReadFull(rand.Reader, c[:]); err != nil {
		return c, err
	}
	return c, nil
}

func defaultConfigPath() (string, error) {
	exePath, err := os.Executable()
	if err != nil {
		return "", err
	}
	exeConfigPath := filepath.Join(filepath.Dir(exePath), configFileName)
	if fileExists(exeConfigPath) {
		return exeConfigPath, nil
	}

	// Fallback for `go run`, where the executable is placed in a temp directory.
	cwd, err := os.Getwd()
	if err != nil {
		return exeConfigPath, nil
	}
	cwdConfigPath := filepath.Join(cwd, configFileName)
	if fileExists(cwdConfigPath) {
		return cwdConfigPath, nil
	}
	return exeConfigPath, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
