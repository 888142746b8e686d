package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)
	assert.Equal(t, "http://localhost:7997/v1", cfg.EmbeddingHost)
	assert.Equal(t, "ViT-SO400M-16-SigLIP2-384", cfg.EmbeddingModel)
	assert.Equal(t, 1152, cfg.Dimension)
	require.NoError(t, cfg.Validate())
}

func TestNewConfig_Options(t *testing.T) {
	cfg := NewConfig(
		WithEmbeddingHost("http://encoder.internal:9100"),
		WithEmbeddingModel("ViT-B-32"),
		WithDimension(512),
	)

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "http://encoder.internal:9100/v1", cfg.EmbeddingHost)
	assert.Equal(t, "ViT-B-32", cfg.EmbeddingModel)
	assert.Equal(t, 512, cfg.Dimension)
}

func TestConfig_Normalize(t *testing.T) {
	tests := []struct {
		name string
		host string
		want string
	}{
		{"adds v1 suffix", "http://localhost:7997", "http://localhost:7997/v1"},
		{"strips trailing slash", "http://localhost:7997/", "http://localhost:7997/v1"},
		{"already normalized", "http://localhost:7997/v1", "http://localhost:7997/v1"},
		{"empty host untouched", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{EmbeddingHost: tt.host}
			cfg.Normalize()
			assert.Equal(t, tt.want, cfg.EmbeddingHost)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{
			name:    "valid",
			cfg:     &Config{EmbeddingHost: "http://h/v1", EmbeddingModel: "m", Dimension: 2},
			wantErr: false,
		},
		{
			name:    "missing host",
			cfg:     &Config{EmbeddingModel: "m", Dimension: 2},
			wantErr: true,
		},
		{
			name:    "missing model",
			cfg:     &Config{EmbeddingHost: "http://h/v1", Dimension: 2},
			wantErr: true,
		},
		{
			name:    "zero dimension",
			cfg:     &Config{EmbeddingHost: "http://h/v1", EmbeddingModel: "m"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
