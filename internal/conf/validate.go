// conf/validate.go settings validation
package conf

import (
	"errors"
	"fmt"
	"strconv"
)

// ValidateSettings checks the loaded settings for obvious misconfiguration.
func ValidateSettings(settings *Settings) error {
	var errs []error

	if err := validateServerSettings(&settings.Server); err != nil {
		errs = append(errs, err)
	}
	if err := validateDatabaseSettings(&settings.Database); err != nil {
		errs = append(errs, err)
	}
	if err := validateWikidataSettings(&settings.Wikidata); err != nil {
		errs = append(errs, err)
	}
	if err := validateMismatchSettings(&settings.Mismatches); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func validateServerSettings(server *ServerSettings) error {
	port, err := strconv.Atoi(server.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid server port: %s", server.Port)
	}
	return nil
}

func validateDatabaseSettings(db *DatabaseSettings) error {
	if db.SQLite.Enabled && db.MySQL.Enabled {
		return fmt.Errorf("only one database backend may be enabled")
	}
	if !db.SQLite.Enabled && !db.MySQL.Enabled {
		return fmt.Errorf("no database backend enabled")
	}
	if db.SQLite.Enabled && db.SQLite.Path == "" {
		return fmt.Errorf("sqlite database path is empty")
	}
	if db.MySQL.Enabled {
		if db.MySQL.Host == "" || db.MySQL.Database == "" {
			return fmt.Errorf("mysql host and database are required")
		}
	}
	return nil
}

func validateWikidataSettings(wd *WikidataSettings) error {
	if wd.BaseURL == "" {
		return fmt.Errorf("wikidata base URL is empty")
	}
	if wd.ChunkSize < 1 {
		return fmt.Errorf("wikidata chunk size must be positive")
	}
	if wd.RequestsPerSec <= 0 {
		return fmt.Errorf("wikidata rate limit must be positive")
	}
	return nil
}

func validateMismatchSettings(m *MismatchSettings) error {
	if m.MaxQueryIDs < 1 {
		return fmt.Errorf("mismatches.maxqueryids must be positive")
	}
	if _, err := NormalizeLanguage(m.Language); err != nil {
		return fmt.Errorf("invalid default language: %w", err)
	}
	return nil
}
