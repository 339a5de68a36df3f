package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/longkey1/chatc/internal/apierr"
	"github.com/longkey1/chatc/internal/chatc"
)

// RefreshCookie is the cookie that carries the refresh credential.
const RefreshCookie = "refresh_token"

// HTTPRefresher calls the backend refresh endpoint. The refresh credential
// travels as a cookie; the request has no bearer token.
type HTTPRefresher struct {
	BaseURL    string
	Path       string       // default: RefreshPath
	HTTPClient *http.Client // default: http.DefaultClient
}

// Refresh implements Refresher.
func (r *HTTPRefresher) Refresh(ctx context.Context, refreshToken string) (string, string, error) {
	path := r.Path
	if path == "" {
		path = RefreshPath
	}
	client := r.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(r.BaseURL, "/")+path, bytes.NewReader([]byte("{}")))
	if err != nil {
		return "", "", fmt.Errorf("creating refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: RefreshCookie, Value: refreshToken})

	resp, err := client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("refresh request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", "", apierr.Parse(resp.StatusCode, data)
	}

	var tokens chatc.Tokens
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return "", "", fmt.Errorf("decoding refresh response: %w", err)
	}

	// Some deployments rotate the refresh credential through Set-Cookie only.
	if tokens.RefreshToken == "" {
		for _, ck := range resp.Cookies() {
			if ck.Name == RefreshCookie && ck.Value != "" {
				tokens.RefreshToken = ck.Value
			}
		}
	}
	return tokens.AccessToken, tokens.RefreshToken, nil
}
