package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckConfigCompatibility(t *testing.T) {
	tests := []struct {
		name          string
		engine        string
		config        string
		errorContains string
	}{
		{name: "exact match", engine: "0.3.0", config: "0.3.0"},
		{name: "engine patch higher", engine: "0.3.4", config: "0.3.0"},
		{name: "config patch higher", engine: "0.3.0", config: "0.3.9"},
		{name: "v prefixes", engine: "v1.2.0", config: "v1.2.3"},
		{name: "empty config version", engine: "0.3.0", config: ""},
		{name: "development engine", engine: "main", config: "9.9.9"},
		{name: "development config", engine: "0.3.0", config: "main"},
		{name: "minor differs", engine: "0.4.0", config: "0.3.0", errorContains: "minor version mismatch"},
		{name: "major differs", engine: "1.3.0", config: "0.3.0", errorContains: "major version mismatch"},
		{name: "bad engine version", engine: "x.y", config: "0.3.0", errorContains: "invalid engine version"},
		{name: "bad config version", engine: "0.3.0", config: "latest", errorContains: "invalid config version"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckConfigCompatibility(tt.engine, tt.config)
			if tt.errorContains == "" {
				assert.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorContains)
		})
	}
}

func TestGetVersion(t *testing.T) {
	original := Version
	defer func() { Version = original }()

	Version = "v9.8.7"
	assert.Equal(t, "v9.8.7", GetVersion())
}
