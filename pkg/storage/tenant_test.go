package storage

import (
	"context"
	"testing"
)

func TestSetGetTenant(t *testing.T) {
	ctx := context.Background()
	if got := GetTenant(ctx); got != "" {
		t.Errorf("GetTenant(empty ctx) = %q, want empty", got)
	}

	ctx = SetTenant(ctx, "school-a")
	if got := GetTenant(ctx); got != "school-a" {
		t.Errorf("GetTenant = %q, want %q", got, "school-a")
	}

	ctx = SetTenant(ctx, "school-b")
	if got := GetTenant(ctx); got != "school-b" {
		t.Errorf("GetTenant after override = %q, want %q", got, "school-b")
	}
}

func TestGetTenant_StringKeyIgnored(t *testing.T) {
	ctx := context.WithValue(context.Background(), "tenant", "wrong")
	if got := GetTenant(ctx); got != "" {
		t.Errorf("GetTenant should not match a string key, got %q", got)
	}
}

func TestScopedKey(t *testing.T) {
	tests := []struct {
		name   string
		tenant string
		want   string
	}{
		{"single tenant", "", "abc"},
		{"with tenant", "school-a", "school-a:abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if tt.tenant != "" {
				ctx = SetTenant(ctx, tt.tenant)
			}
			if got := ScopedKey(ctx, "abc"); got != tt.want {
				t.Errorf("ScopedKey = %q, want %q", got, tt.want)
			}
		})
	}
}
