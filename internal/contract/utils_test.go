package contract

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetColorLabel(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = prev }()

	tests := []struct {
		risk     float64
		expected string
	}{
		{0.95, CriticalValue},
		{0.65, HighValue},
		{0.45, ModerateValue},
		{0.05, LowValue},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetColorLabel(tt.risk))
		})
	}
}

func TestSelectOutputFile(t *testing.T) {
	f, err := SelectOutputFile("")
	require.NoError(t, err)
	assert.Equal(t, os.Stdout, f)

	path := filepath.Join(t.TempDir(), "out.csv")
	f, err = SelectOutputFile(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	assert.Equal(t, path, f.Name())
}

func TestGetDBFilePaths(t *testing.T) {
	assert.True(t, strings.HasSuffix(GetCacheDBFilePath(), ".subpulse_cache.db"))
	assert.True(t, strings.HasSuffix(GetRunDBFilePath(), ".subpulse_runs.db"))
	assert.NotEqual(t, GetCacheDBFilePath(), GetRunDBFilePath())
}

func TestTruncateLabel(t *testing.T) {
	assert.Equal(t, "short", TruncateLabel("short", 10))
	assert.Equal(t, "locati...", TruncateLabel("location=DE|package=A", 9))
	assert.Equal(t, "abcdef", TruncateLabel("abcdef", 3))
}

func TestParseBoolString(t *testing.T) {
	for _, s := range []string{"yes", "TRUE", "1"} {
		v, err := ParseBoolString(s)
		require.NoError(t, err)
		assert.True(t, v)
	}
	for _, s := range []string{"no", "False", "0"} {
		v, err := ParseBoolString(s)
		require.NoError(t, err)
		assert.False(t, v)
	}
	_, err := ParseBoolString("perhaps")
	assert.Error(t, err)
}

func TestErrorTaxonomy(t *testing.T) {
	validation := NewDataValidationError("sub-1", "negative amount")
	assert.True(t, errors.Is(validation, ErrDataValidation))
	assert.False(t, errors.Is(validation, ErrModelFit))
	assert.Contains(t, validation.Error(), "sub-1")

	history := NewInsufficientHistoryError("seasonal", 3, 24)
	assert.True(t, errors.Is(history, ErrInsufficientHistory))
	assert.Contains(t, history.Error(), "24")

	fit := NewModelFitError("gbrt", nil)
	assert.True(t, errors.Is(fit, ErrModelFit))

	cause := errors.New("boom")
	cached := NewCacheComputationError("forecast", fit)
	assert.True(t, errors.Is(cached, ErrCacheComputation))
	assert.True(t, errors.Is(cached, ErrModelFit), "the original mark survives wrapping")
	assert.False(t, errors.Is(cached, cause))
}

func TestValidateTableName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"plain", "graph_subscription", false},
		{"leading underscore", "_events", false},
		{"empty", "", true},
		{"leading digit", "1events", true},
		{"injection", "events; DROP TABLE x", true},
		{"dash", "graph-subscription", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTableName(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestQuoteIdentifier(t *testing.T) {
	assert.Equal(t, "`events`", QuoteIdentifier("events", "mysql"))
	assert.Equal(t, `"events"`, QuoteIdentifier("events", "postgresql"))
	assert.Equal(t, `"events"`, QuoteIdentifier("events", "sqlite"))
}
