package config

import (
	"os"

	"github.com/spf13/viper"

	"github.com/finmatch/finmatch/internal/sheets"
)

// LoadSheetsConfig assembles the Google Sheets export configuration.
// Precedence per field:
// 1. Viper configuration (config file or FINMATCH_ env vars)
// 2. Direct environment variables (FINMATCH_SHEETS_*)
// 3. Defaults
func LoadSheetsConfig() (*sheets.Config, error) {
	config := sheets.DefaultConfig()

	if v := viper.GetString("sheets.service_account_path"); v != "" {
		config.ServiceAccountPath = ExpandPath(v)
	}
	if v := viper.GetString("sheets.client_id"); v != "" {
		config.ClientID = v
	}
	if v := viper.GetString("sheets.client_secret"); v != "" {
		config.ClientSecret = v
	}
	if v := viper.GetString("sheets.refresh_token"); v != "" {
		config.RefreshToken = v
	}
	if v := viper.GetString("sheets.spreadsheet_id"); v != "" {
		config.SpreadsheetID = v
	}
	if v := viper.GetString("sheets.spreadsheet_name"); v != "" {
		config.SpreadsheetName = v
	}
	if v := viper.GetString("sheets.time_zone"); v != "" {
		config.TimeZone = v
	}
	if v := viper.GetInt("sheets.batch_size"); v > 0 {
		config.BatchSize = v
	}

	if config.ServiceAccountPath == "" {
		if v := os.Getenv("FINMATCH_SHEETS_SERVICE_ACCOUNT_PATH"); v != "" {
			config.ServiceAccountPath = ExpandPath(v)
		}
	}
	if config.ClientID == "" {
		config.ClientID = os.Getenv("FINMATCH_SHEETS_CLIENT_ID")
	}
	if config.ClientSecret == "" {
		config.ClientSecret = os.Getenv("FINMATCH_SHEETS_CLIENT_SECRET")
	}
	if config.RefreshToken == "" {
		config.RefreshToken = os.Getenv("FINMATCH_SHEETS_REFRESH_TOKEN")
	}
	if config.SpreadsheetID == "" {
		config.SpreadsheetID = os.Getenv("FINMATCH_SHEETS_SPREADSHEET_ID")
	}
	if config.SpreadsheetName == "" {
		config.SpreadsheetName = os.Getenv("FINMATCH_SHEETS_SPREADSHEET_NAME")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}
