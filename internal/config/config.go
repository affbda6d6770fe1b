// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Stellar network settings
	HorizonURL        string
	NetworkPassphrase string

	// Escrow custody
	EscrowEncryptionSecret string // Key material for AES-256-GCM credential encryption
	EscrowFunderSecret     string // Secret seed of the account funding new escrows
	EscrowStartingBalance  string // XLM seeded into each new escrow account

	// Ticket signing (ed25519)
	TicketSigningSeed     string // Hex-encoded 32-byte seed; derives the signing key
	TicketVerificationKey string // Hex-encoded 32-byte public key; optional, derived from seed if empty

	// Sponsor pledges
	SponsorWallet string // Public key receiving sponsor pledge payments

	// Observability
	OTLPEndpoint string // OTLP gRPC endpoint; empty disables tracing
}

// Testnet defaults
const (
	DefaultHorizonURL        = "https://horizon-testnet.stellar.org"
	DefaultNetworkPassphrase = "Test SDF Network ; September 2015"
	DefaultPort              = "8080"
	DefaultEnv               = "development"
	DefaultLogLevel          = "info"
	DefaultStartingBalance   = "2"
)

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                   getEnv("PORT", DefaultPort),
		Env:                    getEnv("ENV", DefaultEnv),
		LogLevel:               getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:            os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		HorizonURL:             getEnv("HORIZON_URL", DefaultHorizonURL),
		NetworkPassphrase:      getEnv("NETWORK_PASSPHRASE", DefaultNetworkPassphrase),
		EscrowEncryptionSecret: os.Getenv("ESCROW_ENCRYPTION_SECRET"), // Required, no default
		EscrowFunderSecret:     os.Getenv("ESCROW_FUNDER_SECRET"),     // Required, no default
		EscrowStartingBalance:  getEnv("ESCROW_STARTING_BALANCE", DefaultStartingBalance),
		TicketSigningSeed:      os.Getenv("TICKET_SIGNING_SEED"), // Required, no default
		TicketVerificationKey:  os.Getenv("TICKET_VERIFICATION_KEY"),
		SponsorWallet:          os.Getenv("SPONSOR_WALLET"),
		OTLPEndpoint:           os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.EscrowEncryptionSecret == "" {
		return fmt.Errorf("ESCROW_ENCRYPTION_SECRET is required")
	}

	if c.EscrowFunderSecret == "" {
		return fmt.Errorf("ESCROW_FUNDER_SECRET is required")
	}
	if len(c.EscrowFunderSecret) != 56 || c.EscrowFunderSecret[0] != 'S' {
		return fmt.Errorf("ESCROW_FUNDER_SECRET must be a Stellar secret seed (S..., 56 characters)")
	}

	if c.TicketSigningSeed == "" {
		return fmt.Errorf("TICKET_SIGNING_SEED is required")
	}
	if len(c.TicketSigningSeed) != 64 {
		return fmt.Errorf("TICKET_SIGNING_SEED must be 64 hex characters (32 bytes)")
	}

	if c.HorizonURL == "" {
		return fmt.Errorf("HORIZON_URL is required")
	}

	if _, err := strconv.ParseFloat(c.EscrowStartingBalance, 64); err != nil {
		return fmt.Errorf("ESCROW_STARTING_BALANCE must be a decimal amount: %w", err)
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
