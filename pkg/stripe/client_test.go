package stripe

import (
	"context"
	"testing"

	"github.com/caldercommerce/storefront/pkg/config"
)

func TestNewClientValidation(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		cfg     config.StripeConfig
		wantErr bool
	}{
		{
			name: "valid test key",
			cfg:  config.StripeConfig{APIKey: "sk_test_123", Secret: "whsec_123", Env: "test"},
		},
		{
			name:    "missing api key",
			cfg:     config.StripeConfig{Secret: "whsec_123", Env: "test"},
			wantErr: true,
		},
		{
			name:    "missing signing secret",
			cfg:     config.StripeConfig{APIKey: "sk_test_123", Env: "test"},
			wantErr: true,
		},
		{
			name:    "live env with test key",
			cfg:     config.StripeConfig{APIKey: "sk_test_123", Secret: "whsec_123", Env: "live"},
			wantErr: true,
		},
		{
			name:    "unknown env",
			cfg:     config.StripeConfig{APIKey: "sk_test_123", Secret: "whsec_123", Env: "sandbox"},
			wantErr: true,
		},
		{
			name: "env defaults to test",
			cfg:  config.StripeConfig{APIKey: "sk_test_123", Secret: "whsec_123"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client, err := NewClient(ctx, tc.cfg, nil)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if client.Environment() != "test" {
				t.Fatalf("expected test env, got %q", client.Environment())
			}
			if client.SigningSecret() != "whsec_123" {
				t.Fatalf("unexpected signing secret %q", client.SigningSecret())
			}
		})
	}
}
