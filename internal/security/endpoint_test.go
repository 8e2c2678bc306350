package security

import (
	"strings"
	"testing"
)

func TestValidateEndpointURL_Rejected(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"no scheme", "://example.com/hook"},
		{"bad scheme", "ftp://example.com/hook"},
		{"no host", "https:///hook"},
		{"localhost", "https://localhost/hook"},
		{"cloud metadata", "http://metadata.google.internal/computeMetadata"},
		{"loopback v4", "https://127.0.0.1/hook"},
		{"loopback v6", "https://[::1]/hook"},
		{"private 10", "https://10.0.0.5/hook"},
		{"private 192", "https://192.168.1.1/hook"},
		{"link local", "https://169.254.169.254/latest/meta-data"},
		{"unspecified", "https://0.0.0.0/hook"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateEndpointURL(tt.url); err == nil {
				t.Errorf("expected %s to be rejected", tt.url)
			}
		})
	}
}

func TestValidateEndpointURL_PublicIPLiteral(t *testing.T) {
	// IP literals skip DNS resolution, so a public address is decidable
	// without network access.
	if err := ValidateEndpointURL("https://93.184.216.34/hook"); err != nil {
		t.Errorf("public IP literal rejected: %v", err)
	}
}

func TestValidateEndpointURL_BlockedHostMessage(t *testing.T) {
	err := ValidateEndpointURL("https://localhost:8080/hook")
	if err == nil {
		t.Fatal("expected rejection")
	}
	if !strings.Contains(err.Error(), "localhost") {
		t.Errorf("error should name the host: %v", err)
	}
}
