package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config collects every environment setting the bot needs. Loading fails
// with a single error naming all missing required variables at once.
type Config struct {
	Port string

	// WhatsApp Cloud API
	BaseWPURL     string
	APIVersion    string
	APIToken      string
	BusinessPhone string
	VerifyToken   string

	// Google Sheets
	ServiceAccountEmail string
	PrivateKey          string
	SpreadsheetID       string
	ConfigSheet         string
	AnswersSheet        string
	PendingSheet        string

	// Optional behavior
	LogLevel    string
	Timezone    string
	CountryCode string
	ReloadEvery string // cron spec, empty disables the periodic catalog reload
	TgBotToken  string // empty disables the Telegram transport
	RatePerSec  int
}

var requiredEnvVars = []string{
	"API_TOKEN",
	"BUSINESS_PHONE",
	"WEBHOOK_VERIFY_TOKEN",
	"GOOGLE_SERVICE_ACCOUNT_EMAIL",
	"GOOGLE_PRIVATE_KEY",
	"GOOGLE_SHEETS_ID",
	"CONFIG_SHEET",
	"ANSWERS_SHEET",
	"PENDING_SHEET",
}

func loadConfig() (Config, error) {
	var missing []string
	for _, name := range requiredEnvVars {
		if os.Getenv(name) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing environment variables: %s", strings.Join(missing, ", "))
	}

	return Config{
		Port: envOr("PORT", "3000"),

		BaseWPURL:     envOr("BASE_WP_URL", "https://graph.facebook.com"),
		APIVersion:    envOr("API_VERSION", "v21.0"),
		APIToken:      os.Getenv("API_TOKEN"),
		BusinessPhone: os.Getenv("BUSINESS_PHONE"),
		VerifyToken:   os.Getenv("WEBHOOK_VERIFY_TOKEN"),

		ServiceAccountEmail: os.Getenv("GOOGLE_SERVICE_ACCOUNT_EMAIL"),
		PrivateKey:          os.Getenv("GOOGLE_PRIVATE_KEY"),
		SpreadsheetID:       os.Getenv("GOOGLE_SHEETS_ID"),
		ConfigSheet:         os.Getenv("CONFIG_SHEET"),
		AnswersSheet:        os.Getenv("ANSWERS_SHEET"),
		PendingSheet:        os.Getenv("PENDING_SHEET"),

		LogLevel:    envOr("LOG_LEVEL", "info"),
		Timezone:    envOr("TIMEZONE", "America/Argentina/Buenos_Aires"),
		CountryCode: envOr("COUNTRY_CODE", "54"),
		ReloadEvery: os.Getenv("RELOAD_EVERY"),
		TgBotToken:  os.Getenv("TELEGRAM_BOT_TOKEN"),
		RatePerSec:  envIntOr("SEND_RATE_PER_SEC", 2),
	}, nil
}

func envOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func envIntOr(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
