package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// tokenCache is persisted at ~/.config/console/token.json after signin.
type tokenCache struct {
	APIURL    string    `json:"api_url"`
	Token     string    `json:"token"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Username  string    `json:"username,omitempty"`
}

type consoleAPIClient struct {
	baseURL    string
	bearer     string
	httpClient *http.Client

	// lastSetCookie holds the session token from the most recent
	// Set-Cookie: auth_token response, if any.
	lastSetCookie string
}

func newAPIHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 20 * time.Second,
	}
}

func tokenCachePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "console", "token.json"), nil
}

func loadTokenCache() (*tokenCache, error) {
	path, err := tokenCachePath()
	if err != nil {
		return nil, err
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("not signed in; run 'consolectl signin'")
		}
		return nil, fmt.Errorf("failed to read token cache %s: %w", path, err)
	}

	var tok tokenCache
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, fmt.Errorf("failed to parse token cache %s: %w", path, err)
	}
	if strings.TrimSpace(tok.Token) == "" {
		return nil, fmt.Errorf("token cache %s has no token; run 'consolectl signin'", path)
	}
	if !tok.ExpiresAt.IsZero() && time.Now().After(tok.ExpiresAt) {
		return nil, fmt.Errorf("cached session expired at %s; run 'consolectl signin'", tok.ExpiresAt.Format(time.RFC3339))
	}
	return &tok, nil
}

func saveTokenCache(tok tokenCache) (string, error) {
	path, err := tokenCachePath()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return "", fmt.Errorf("failed to create config dir: %w", err)
	}

	b, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, b, 0600); err != nil {
		return "", fmt.Errorf("failed to write token cache: %w", err)
	}
	return path, nil
}

func removeTokenCache() error {
	path, err := tokenCachePath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func newAPIClient() (*consoleAPIClient, error) {
	tok, err := loadTokenCache()
	if err != nil {
		return nil, err
	}

	apiURL := strings.TrimSpace(tok.APIURL)
	if apiURL == "" {
		apiURL = envOr("CONSOLE_API_URL", "")
	}
	if apiURL == "" {
		return nil, errors.New("token cache missing api_url; run 'consolectl signin --api-url <url>'")
	}

	return &consoleAPIClient{
		baseURL: strings.TrimSuffix(apiURL, "/"),
		bearer:  strings.TrimSpace(tok.Token),
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
	}, nil
}

func (c *consoleAPIClient) getJSON(path string, out any) error {
	return c.doJSON(http.MethodGet, path, nil, out)
}

func (c *consoleAPIClient) postJSON(path string, body any, out any) error {
	return c.doJSON(http.MethodPost, path, body, out)
}

func (c *consoleAPIClient) doJSON(method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("api request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	for _, ck := range resp.Cookies() {
		if ck.Name == "auth_token" && ck.Value != "" {
			c.lastSetCookie = ck.Value
		}
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 256*1024))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(respBody))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		if resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("api unauthorized (%d): %s; run 'consolectl signin'", resp.StatusCode, msg)
		}
		return fmt.Errorf("api error (%d): %s", resp.StatusCode, msg)
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse api response: %w", err)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
