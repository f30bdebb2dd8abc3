package integration

import (
	"context"
	"net/http"
	"testing"
)

func TestGatewayHealthAndInfo(t *testing.T) {
	c := getTestClient()
	skipIfNoServices(t, c)
	ctx := context.Background()

	if err := c.HealthCheck(ctx, c.urls.Gateway); err != nil {
		t.Skipf("gateway not available: %v", err)
	}

	var info struct {
		Name string `json:"name"`
	}
	if err := c.JSON(ctx, http.MethodGet, c.urls.Gateway+"/v1/info", nil, &info); err != nil {
		t.Fatalf("info endpoint failed: %v", err)
	}
	if info.Name == "" {
		t.Error("gateway info has no name")
	}
}

func TestGatewayRejectsUnknownRoute(t *testing.T) {
	c := getTestClient()
	skipIfNoServices(t, c)
	ctx := context.Background()

	if err := c.HealthCheck(ctx, c.urls.Gateway); err != nil {
		t.Skipf("gateway not available: %v", err)
	}

	c.SetAPIKey("dev-api-key")
	defer c.SetAPIKey("")

	resp, err := c.Request(ctx, http.MethodGet, c.urls.Gateway+"/v1/not-a-route", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown route returned %d, want 404", resp.StatusCode)
	}
}
