package domain

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCulture(t *testing.T) {
	c, ok := NormalizeCulture("el-gr")
	require.True(t, ok)
	assert.Equal(t, CultureGreek, c)

	_, ok = NormalizeCulture("fr-FR")
	assert.False(t, ok)
	assert.False(t, IsRecognizedCulture(""))
	assert.True(t, IsRecognizedCulture("EN-us"))
}

func TestIsDefaultCulture(t *testing.T) {
	assert.True(t, IsDefaultCulture("en-us"))
	assert.True(t, IsDefaultCulture("en-US"))
	assert.False(t, IsDefaultCulture("el-GR"))
}

func TestLanguage(t *testing.T) {
	assert.Equal(t, "el", Language("el-GR"))
	assert.Equal(t, "en", Language("en-US"))
	assert.Equal(t, "de", Language("de"))
}

func TestValidationError(t *testing.T) {
	var empty *ValidationError
	require.NoError(t, empty.OrNil())
	require.NoError(t, NewValidationError().OrNil())

	v := NewValidationError()
	v.Add("Latitude", "must be between -90 and 90")
	v.Add("Culture", "is not supported")
	v.Add("Culture", "ignored second message")

	err := v.OrNil()
	require.Error(t, err)
	assert.Equal(t, "is not supported", v.Fields["Culture"])
	assert.Equal(t, "validation failed: Culture: is not supported; Latitude: must be between -90 and 90", err.Error())
}

func TestValidationError_Merge(t *testing.T) {
	v := NewValidationError()
	v.Add("Longitude", "must be a number")

	other := NewValidationError()
	other.Add("Longitude", "must be between -180 and 180")
	other.Add("UserId", "is required")
	v.Merge(other)
	v.Merge(nil)

	assert.Equal(t, map[string]string{
		"Longitude": "must be a number",
		"UserId":    "is required",
	}, v.Fields)
}

func TestUpstreamError_Retryable(t *testing.T) {
	tests := []struct {
		name string
		err  *UpstreamError
		want bool
	}{
		{"transport", &UpstreamError{Locale: "en-US", Err: errors.New("dial tcp")}, true},
		{"missing field", &UpstreamError{Locale: "en-US", Reason: "missing address.municipality"}, false},
		{"throttled", &UpstreamError{Locale: "en-US", StatusCode: http.StatusTooManyRequests}, true},
		{"server error", &UpstreamError{Locale: "en-US", StatusCode: http.StatusBadGateway}, true},
		{"client error", &UpstreamError{Locale: "en-US", StatusCode: http.StatusBadRequest}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Retryable())
		})
	}
}

func TestUpstreamError_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := error(&UpstreamError{Locale: "el-GR", Err: cause})

	var up *UpstreamError
	require.ErrorAs(t, err, &up)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "geocoding el-GR: connection reset", err.Error())
}
