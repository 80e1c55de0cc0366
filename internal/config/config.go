// Package config loads voice client configuration from a JSON file with
// environment-variable overrides.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds all configuration for the voice client core.
type Config struct {
	Gateway GatewayConfig `json:"gateway"`
	Voice   VoiceConfig   `json:"voice"`
}

// GatewayConfig describes how to reach the external main-gateway and REST
// user collaborators (§6 of the spec). The voice core never talks to these
// directly in-process tests; in a real deployment they are supplied by the
// host bot framework.
type GatewayConfig struct {
	RESTBaseURL string `json:"rest_base_url"`
	BotToken    string `json:"bot_token"`
}

// VoiceConfig holds the enumerated configuration options from spec §6.
type VoiceConfig struct {
	// HeartbeatSafetyMarginMS subtracts from the announced heartbeat
	// interval so heartbeats are sent slightly early. 0 means "derive a
	// default of interval/8 at runtime", since the true interval is only
	// known after Hello is received.
	HeartbeatSafetyMarginMS int `json:"heartbeat_safety_margin_ms"`

	// AudioOptimization is one of "voip", "audio", "lowdelay".
	AudioOptimization string `json:"audio_optimization"`

	// SampleDurationMS must be a valid Opus frame duration (2.5, 5, 10,
	// 20, 40, or 60 ms); the spec default is 40.
	SampleDurationMS int `json:"sample_duration_ms"`

	// BitrateBPS is the Opus encoder target bitrate; spec caps it at
	// 128 kbps.
	BitrateBPS int `json:"bitrate_bps"`

	// HandshakeTimeoutMS bounds the C1 rendezvous wait (spec default 5s).
	HandshakeTimeoutMS int `json:"handshake_timeout_ms"`

	// IPDiscoveryTimeoutMS bounds the C3 UDP discovery round trip (spec
	// default 1s).
	IPDiscoveryTimeoutMS int `json:"ip_discovery_timeout_ms"`

	// SessionDescriptionTimeoutMS bounds the wait for SessionDescription
	// after SelectProtocol (spec default 2s).
	SessionDescriptionTimeoutMS int `json:"session_description_timeout_ms"`

	// StrictHeartbeatNonce opts into logging a warning for HeartbeatAcks
	// whose echoed nonce does not match the last sent nonce; such an ack
	// still counts for liveness. Default false: the peer is known to
	// sometimes echo zero, so by default mismatches are not reported (see
	// DESIGN.md, Open Question 1).
	StrictHeartbeatNonce bool `json:"strict_heartbeat_nonce"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			RESTBaseURL: "",
			BotToken:    "",
		},
		Voice: VoiceConfig{
			HeartbeatSafetyMarginMS:     0,
			AudioOptimization:           "voip",
			SampleDurationMS:            40,
			BitrateBPS:                  128000,
			HandshakeTimeoutMS:          5000,
			IPDiscoveryTimeoutMS:        1000,
			SessionDescriptionTimeoutMS: 2000,
			StrictHeartbeatNonce:        false,
		},
	}
}

func envString(key string, target *string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func envInt(key string, target *int) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*target = i
		}
	}
}

func envBool(key string, target *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*target = b
		}
	}
}

// Load loads configuration from a config file (if present) and then applies
// environment-variable overrides, matching the teacher's file-then-env
// layering.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath := getConfigPath()
	if data, err := os.ReadFile(configPath); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to parse config file %s: %v\n", configPath, err)
		}
	}

	envString("VOICECORE_REST_BASE_URL", &cfg.Gateway.RESTBaseURL)
	envString("VOICECORE_BOT_TOKEN", &cfg.Gateway.BotToken)

	envString("VOICECORE_AUDIO_OPTIMIZATION", &cfg.Voice.AudioOptimization)
	envInt("VOICECORE_SAMPLE_DURATION_MS", &cfg.Voice.SampleDurationMS)
	envInt("VOICECORE_BITRATE_BPS", &cfg.Voice.BitrateBPS)
	envInt("VOICECORE_HEARTBEAT_SAFETY_MARGIN_MS", &cfg.Voice.HeartbeatSafetyMarginMS)
	envInt("VOICECORE_HANDSHAKE_TIMEOUT_MS", &cfg.Voice.HandshakeTimeoutMS)
	envInt("VOICECORE_IP_DISCOVERY_TIMEOUT_MS", &cfg.Voice.IPDiscoveryTimeoutMS)
	envInt("VOICECORE_SESSION_DESCRIPTION_TIMEOUT_MS", &cfg.Voice.SessionDescriptionTimeoutMS)
	envBool("VOICECORE_STRICT_HEARTBEAT_NONCE", &cfg.Voice.StrictHeartbeatNonce)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func isValidURL(urlStr string) bool {
	u, err := url.Parse(urlStr)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	var errs []string

	switch c.Voice.AudioOptimization {
	case "voip", "audio", "lowdelay":
	default:
		errs = append(errs, "voice.audio_optimization must be one of voip, audio, lowdelay")
	}

	switch c.Voice.SampleDurationMS {
	case 2, 5, 10, 20, 40, 60:
	default:
		errs = append(errs, "voice.sample_duration_ms must be a valid Opus frame duration (2.5/5/10/20/40/60 ms; 2 is used here for the 2.5ms case rounded down)")
	}

	if c.Voice.BitrateBPS < 500 || c.Voice.BitrateBPS > 128000 {
		errs = append(errs, "voice.bitrate_bps must be between 500 and 128000")
	}

	if c.Voice.HandshakeTimeoutMS < 1 {
		errs = append(errs, "voice.handshake_timeout_ms must be positive")
	}
	if c.Voice.IPDiscoveryTimeoutMS < 1 {
		errs = append(errs, "voice.ip_discovery_timeout_ms must be positive")
	}
	if c.Voice.SessionDescriptionTimeoutMS < 1 {
		errs = append(errs, "voice.session_description_timeout_ms must be positive")
	}

	if c.Gateway.RESTBaseURL != "" && !isValidURL(c.Gateway.RESTBaseURL) {
		errs = append(errs, "gateway.rest_base_url must be a valid URL")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// getConfigPath returns the path to the config file.
func getConfigPath() string {
	if path := os.Getenv("VOICECORE_CONFIG"); path != "" {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "config.json"
	}

	configDir := filepath.Join(homeDir, ".config", "voicecore")
	configPath := filepath.Join(configDir, "config.json")
	if _, err := os.Stat(configPath); err == nil {
		return configPath
	}

	return configPath
}
