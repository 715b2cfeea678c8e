// Package sheets provides Google Sheets API integration for report generation.
package sheets

import (
	"fmt"
	"time"

	"github.com/finmatch/finmatch/internal/common"
)

// Config holds the configuration for the Google Sheets writer.
type Config struct {
	ClientID           string
	ClientSecret       string
	RefreshToken       string
	ServiceAccountPath string
	SpreadsheetID      string
	SpreadsheetName    string
	TimeZone           string
	BatchSize          int
	RetryAttempts      int
	RetryDelay         time.Duration
	EnableFormatting   bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		EnableFormatting: true,
		TimeZone:         "America/Argentina/Buenos_Aires",
		BatchSize:        1000,
		RetryAttempts:    3,
		RetryDelay:       time.Second,
	}
}

// Validate checks that the configuration is usable: one auth method and a
// spreadsheet to write to.
func (c *Config) Validate() error {
	hasOAuth := c.ClientID != "" && c.ClientSecret != "" && c.RefreshToken != ""
	hasServiceAccount := c.ServiceAccountPath != ""

	if !hasOAuth && !hasServiceAccount {
		return fmt.Errorf("%w: either OAuth2 credentials or a service account path is required", common.ErrMissingConfig)
	}

	if c.SpreadsheetID == "" && c.SpreadsheetName == "" {
		return fmt.Errorf("%w: either a spreadsheet ID or a spreadsheet name is required", common.ErrMissingConfig)
	}

	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive", common.ErrInvalidConfig)
	}

	return nil
}
