package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSettings() *Settings {
	s := &Settings{}
	s.Server.Port = "8080"
	s.Database.SQLite.Enabled = true
	s.Database.SQLite.Path = "mismatches.db"
	s.Wikidata.BaseURL = "https://www.wikidata.org/w/api.php"
	s.Wikidata.ChunkSize = 50
	s.Wikidata.RequestsPerSec = 10
	s.Mismatches.MaxQueryIDs = 600
	s.Mismatches.Language = "en"
	return s
}

func TestValidateSettingsAcceptsDefaults(t *testing.T) {
	require.NoError(t, ValidateSettings(validSettings()))
}

func TestValidateSettings(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{
			name:    "bad port",
			mutate:  func(s *Settings) { s.Server.Port = "http" },
			wantErr: "invalid server port",
		},
		{
			name:    "port out of range",
			mutate:  func(s *Settings) { s.Server.Port = "70000" },
			wantErr: "invalid server port",
		},
		{
			name: "both backends enabled",
			mutate: func(s *Settings) {
				s.Database.MySQL.Enabled = true
				s.Database.MySQL.Host = "localhost"
				s.Database.MySQL.Database = "mismatches"
			},
			wantErr: "only one database backend",
		},
		{
			name:    "no backend enabled",
			mutate:  func(s *Settings) { s.Database.SQLite.Enabled = false },
			wantErr: "no database backend enabled",
		},
		{
			name:    "sqlite without path",
			mutate:  func(s *Settings) { s.Database.SQLite.Path = "" },
			wantErr: "sqlite database path is empty",
		},
		{
			name: "mysql without host",
			mutate: func(s *Settings) {
				s.Database.SQLite.Enabled = false
				s.Database.MySQL.Enabled = true
			},
			wantErr: "mysql host and database are required",
		},
		{
			name:    "empty wikidata url",
			mutate:  func(s *Settings) { s.Wikidata.BaseURL = "" },
			wantErr: "wikidata base URL is empty",
		},
		{
			name:    "zero chunk size",
			mutate:  func(s *Settings) { s.Wikidata.ChunkSize = 0 },
			wantErr: "chunk size must be positive",
		},
		{
			name:    "zero rate limit",
			mutate:  func(s *Settings) { s.Wikidata.RequestsPerSec = 0 },
			wantErr: "rate limit must be positive",
		},
		{
			name:    "zero id limit",
			mutate:  func(s *Settings) { s.Mismatches.MaxQueryIDs = 0 },
			wantErr: "maxqueryids must be positive",
		},
		{
			name:    "invalid default language",
			mutate:  func(s *Settings) { s.Mismatches.Language = "xx yy" },
			wantErr: "invalid default language",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			tt.mutate(s)
			err := ValidateSettings(s)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
