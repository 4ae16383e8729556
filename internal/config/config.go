// Package config loads endpoint configuration from the environment.
package config

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds the external endpoints of the chat backend.
type Config struct {
	// APIBaseURL is the base URL of the REST services (credentials,
	// directory, message history).
	APIBaseURL string
	// WSEndpoint is the duplex channel endpoint.
	WSEndpoint string
}

// Load reads configuration from a .env file (if present) and the process
// environment. CHAT_ENV selects between CHAT_DEV_API_URL (development) and
// CHAT_API_URL (anything else). The websocket endpoint is derived from the
// API base URL unless CHAT_WS_URL overrides it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: .env file could not be loaded: %v", err)
	}

	base := os.Getenv("CHAT_API_URL")
	if os.Getenv("CHAT_ENV") == "development" {
		if dev := os.Getenv("CHAT_DEV_API_URL"); dev != "" {
			base = dev
		}
	}
	if base == "" {
		return nil, fmt.Errorf("CHAT_API_URL is not set")
	}
	base = strings.TrimSuffix(base, "/")

	ws := os.Getenv("CHAT_WS_URL")
	if ws == "" {
		var err error
		ws, err = deriveWSEndpoint(base)
		if err != nil {
			return nil, err
		}
	}

	return &Config{APIBaseURL: base, WSEndpoint: ws}, nil
}

// deriveWSEndpoint swaps the URL scheme of the API base for the matching
// websocket scheme, keeping host and path.
func deriveWSEndpoint(base string) (string, error) {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://"), nil
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://"), nil
	default:
		return "", fmt.Errorf("cannot derive websocket endpoint from %q", base)
	}
}
