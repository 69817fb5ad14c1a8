package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeChatID(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		countryCode string
		expected    string
	}{
		{
			name:        "local number gets country code",
			input:       "0501234567",
			countryCode: "966",
			expected:    "966501234567@c.us",
		},
		{
			name:        "international number with plus",
			input:       "+966 50 123 4567",
			countryCode: "966",
			expected:    "966501234567@c.us",
		},
		{
			name:        "group id",
			input:       "120363407813232111@g.us",
			countryCode: "966",
			expected:    "120363407813232111@g.us",
		},
		{
			name:        "existing suffix is not doubled",
			input:       "966501234567@c.us",
			countryCode: "966",
			expected:    "966501234567@c.us",
		},
		{
			name:        "no country code configured",
			input:       "0501234567",
			countryCode: "",
			expected:    "0501234567@c.us",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NormalizeChatID(tt.input, tt.countryCode)
			if result != tt.expected {
				t.Errorf("NormalizeChatID(%q) = %q; want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestWahaSendMessage(t *testing.T) {
	var paths []string
	var lastBody map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		_ = json.NewDecoder(r.Body).Decode(&lastBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	svc := NewWahaService(server.URL, "secret", "966")
	require.NoError(t, svc.SendMessage(context.Background(), "0501234567", "hello"))

	assert.Equal(t, []string{"/api/sendSeen", "/api/sendText"}, paths)
	assert.Equal(t, "966501234567@c.us", lastBody["chatId"])
	assert.Equal(t, "hello", lastBody["text"])
}

func TestWahaSendMessageFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	svc := NewWahaService(server.URL, "wrong", "")
	err := svc.SendMessage(context.Background(), "966501234567", "hello")
	assert.ErrorContains(t, err, "status 401")
}
