package config

import "testing"

type HostTestStruct struct {
	Host string `validate:"host"`
}

func TestValidateHost(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		expected bool
	}{
		{"empty host (optional)", "", true},
		{"localhost", "localhost", true},
		{"IP address", "127.0.0.1", true},
		{"any address", "0.0.0.0", true},
		{"hostname", "example.com", true},
		{"hostname with subdomain", "api.example.com", true},
		{"hostname with hyphen", "my-server.internal", true},
		{"IPv6 localhost", "::1", true},
		{"IPv6 address", "2001:db8::1", true},
		{"IP with port", "127.0.0.1:8080", false},
		{"host with underscore", "my_server", false},
		{"leading hyphen", "-server", false},
		{"trailing hyphen", "server-", false},
		{"empty label", "api..example.com", false},
		{"label too long", string(make([]byte, 64)), false},
		{"invalid host with space", "invalid host", false},
		{"invalid host with newline", "invalid\nhost", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate.Struct(HostTestStruct{Host: tt.host})
			if tt.expected && err != nil {
				t.Errorf("expected valid, got error: %v", err)
			}
			if !tt.expected && err == nil {
				t.Errorf("expected invalid for host %q, got valid", tt.host)
			}
		})
	}
}

func TestIsValidHostChar(t *testing.T) {
	tests := []struct {
		char     rune
		expected bool
	}{
		{'a', true},
		{'Z', true},
		{'0', true},
		{'9', true},
		{'-', true},
		{'.', false},
		{':', false},
		{'_', false},
		{' ', false},
		{'@', false},
	}

	for _, tt := range tests {
		t.Run(string(tt.char), func(t *testing.T) {
			if got := isValidHostChar(tt.char); got != tt.expected {
				t.Errorf("isValidHostChar(%q) = %v, want %v", tt.char, got, tt.expected)
			}
		})
	}
}

func TestServerHostValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Host = "invalid host"
	if err := cfg.Validate(); err == nil {
		t.Error("expected invalid server host to fail validation")
	}

	cfg.Server.Host = "localhost"
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected localhost to validate, got %v", err)
	}
}
