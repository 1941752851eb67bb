package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeLanguage(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		want    string
		wantErr bool
	}{
		{name: "simple code", code: "en", want: "en"},
		{name: "uppercase input", code: "DE", want: "de"},
		{name: "region subtag", code: "pt-BR", want: "pt-br"},
		{name: "underscore separator", code: "de_AT", want: "de-at"},
		{name: "surrounding whitespace", code: " fr ", want: "fr"},
		{name: "empty", code: "", wantErr: true},
		{name: "garbage", code: "not a language", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeLanguage(tt.code)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveLanguage(t *testing.T) {
	tests := []struct {
		name   string
		accept string
		want   string
	}{
		{name: "empty header falls back", accept: "", want: "en"},
		{name: "single language", accept: "de", want: "de"},
		{name: "quality ordering", accept: "fr;q=0.8, nl;q=0.9", want: "nl"},
		{name: "malformed header falls back", accept: ";;;", want: "en"},
		{name: "region preserved", accept: "pt-BR, en;q=0.5", want: "pt-br"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveLanguage(tt.accept, "en"))
		})
	}
}
