package integration

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestParticipantOnboarding(t *testing.T) {
	c := getTestClient()
	skipIfNoServices(t, c)
	ctx := context.Background()

	if err := c.HealthCheck(ctx, c.urls.Identity); err != nil {
		t.Skipf("identity service not available: %v", err)
	}

	var created struct {
		ID     string `json:"id"`
		APIKey struct {
			Key string `json:"key"`
		} `json:"api_key"`
	}
	err := c.JSON(ctx, http.MethodPost, c.urls.Identity+"/v1/tenants", map[string]any{
		"name":          fmt.Sprintf("it-shopper-%d", time.Now().UnixNano()),
		"type":          "SHOPPER",
		"did":           "did:ap2:shopper:aex-work-publisher",
		"contact_email": "shopper@example.test",
	}, &created)
	if err != nil {
		t.Fatalf("participant creation failed: %v", err)
	}
	if created.APIKey.Key == "" {
		t.Fatal("no API key issued")
	}

	var validated struct {
		TenantID string `json:"tenant_id"`
	}
	err = c.JSON(ctx, http.MethodPost, c.urls.Identity+"/internal/v1/apikeys/validate", map[string]string{
		"api_key": created.APIKey.Key,
	}, &validated)
	if err != nil {
		t.Fatalf("key validation failed: %v", err)
	}
	if validated.TenantID != created.ID {
		t.Errorf("validated tenant = %q, want %q", validated.TenantID, created.ID)
	}
}
