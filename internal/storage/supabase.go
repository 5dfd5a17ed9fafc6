package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aldoetobex/assignment-portal/pkg/config"
)

/*
Supabase wraps the one Supabase Storage call the portal needs: signing a
download URL for a file the marketplace stored.

Notes on authorization:
- A legacy service_role JWT needs both `apikey` and `Authorization: Bearer <token>`.
- A Secret API Key (sb_secret_...) that is NOT a JWT is accepted through `apikey` alone;
  sending it as a bearer token too is harmless.
*/

var ErrNotConfigured = errors.New("file storage is not configured")

type Supabase struct {
	baseURL string // e.g. https://<project>.supabase.co
	apiKey  string // service_role JWT or secret API key
	bucket  string
	ttl     int // seconds
	client  *http.Client
}

func NewSupabase(cfg *config.StorageConfig) *Supabase {
	ttl := cfg.SignedTTL
	if ttl <= 0 {
		ttl = 60
	}
	return &Supabase{
		baseURL: strings.TrimRight(cfg.SupabaseURL, "/"),
		apiKey:  cfg.SupabaseKey,
		bucket:  cfg.Bucket,
		ttl:     ttl,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *Supabase) Configured() bool {
	return s.baseURL != "" && s.apiKey != "" && s.bucket != ""
}

// TTL is how long a signed URL stays valid.
func (s *Supabase) TTL() time.Duration { return time.Duration(s.ttl) * time.Second }

// escapeKey escapes each path segment of an object key.
func escapeKey(key string) string {
	parts := strings.Split(strings.TrimLeft(key, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// SignedURL creates a short-lived signed URL:
// POST /storage/v1/object/sign/{bucket}/{objectName}  body: {"expiresIn": <seconds>}
func (s *Supabase) SignedURL(ctx context.Context, key string) (string, error) {
	if !s.Configured() {
		return "", ErrNotConfigured
	}
	endpoint := fmt.Sprintf("%s/storage/v1/object/sign/%s/%s", s.baseURL, s.bucket, escapeKey(key))

	body, _ := json.Marshal(map[string]int{"expiresIn": s.ttl})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	res, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return "", fmt.Errorf("supabase sign error: %s | %s", res.Status, string(b))
	}

	var out struct {
		SignedURL string `json:"signedURL"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.SignedURL == "" {
		return "", fmt.Errorf("empty signedURL in response")
	}

	// API returns a relative path; convert to absolute URL.
	return s.baseURL + "/storage/v1" + out.SignedURL, nil
}
