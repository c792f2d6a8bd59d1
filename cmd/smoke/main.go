// Command smoke checks a running API: gRPC health, HTTP health and, when
// credentials are given, the login, me and logout round trip.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"corpsite.org/internal/healthclient"
	"corpsite.org/internal/httpapi"
)

func main() {
	grpcAddr := envOr("SMOKE_GRPC_ADDR", "localhost:9090")
	baseURL := envOr("SMOKE_BASE_URL", "http://localhost:8080")

	client, err := healthclient.Dial(grpcAddr)
	if err != nil {
		log.Fatalf("dial health at %s: %v", grpcAddr, err)
	}
	defer client.Close()

	ctx, cancel := healthclient.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Check(ctx, httpapi.ServiceName); err != nil {
		log.Fatalf("grpc health: %v", err)
	}

	httpClient := &http.Client{Timeout: 5 * time.Second}
	var health struct {
		Success bool `json:"success"`
	}
	if status := getJSON(httpClient, baseURL+"/api/health", "", &health); status != http.StatusOK || !health.Success {
		log.Fatalf("http health: status %d", status)
	}

	identifier, password := os.Getenv("SMOKE_USER"), os.Getenv("SMOKE_PASSWORD")
	if identifier == "" || password == "" {
		fmt.Println("✅ smoke test passed (health only)")
		return
	}

	var login struct {
		Data struct {
			Tokens struct {
				AccessToken string `json:"accessToken"`
			} `json:"tokens"`
		} `json:"data"`
	}
	status := postJSON(httpClient, baseURL+"/api/auth/login", "", map[string]string{"identifier": identifier, "password": password}, &login)
	if status != http.StatusOK || login.Data.Tokens.AccessToken == "" {
		log.Fatalf("login: status %d", status)
	}
	token := login.Data.Tokens.AccessToken

	var me struct {
		Data struct {
			User struct {
				Username string `json:"username"`
				Degraded bool   `json:"degraded"`
			} `json:"user"`
		} `json:"data"`
	}
	if status := getJSON(httpClient, baseURL+"/api/auth/me", token, &me); status != http.StatusOK {
		log.Fatalf("me: status %d", status)
	}
	if status := postJSON(httpClient, baseURL+"/api/auth/logout", token, nil, nil); status != http.StatusOK {
		log.Fatalf("logout: status %d", status)
	}
	if status := getJSON(httpClient, baseURL+"/api/auth/me", token, nil); status != http.StatusUnauthorized {
		log.Fatalf("revoked token still accepted: status %d", status)
	}

	fmt.Printf("✅ smoke test passed: user=%s degraded=%t\n", me.Data.User.Username, me.Data.User.Degraded)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getJSON(c *http.Client, url, token string, out any) int {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		log.Fatalf("build request: %v", err)
	}
	return do(c, req, token, out)
}

func postJSON(c *http.Client, url, token string, body, out any) int {
	payload, err := json.Marshal(body)
	if err != nil {
		log.Fatalf("encode body: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		log.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return do(c, req, token, out)
}

func do(c *http.Client, req *http.Request, token string, out any) int {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			log.Fatalf("decode %s: %v", req.URL.Path, err)
		}
	}
	return resp.StatusCode
}
