package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/SimYunSup/alt-tab-extension-sub000/internal/store"
)

// Remote is the archive store surface the pipeline needs; Client is the
// HTTP implementation, tests substitute fakes.
type Remote interface {
	CreateGroup(ctx context.Context, group *ArchivedGroup) (*ArchivedGroup, error)
	ListGroups(ctx context.Context) ([]ArchivedGroup, error)
	GetGroup(ctx context.Context, id string) (*ArchivedGroup, error)
	DeleteGroup(ctx context.Context, id string) error
	CreateAlias(ctx context.Context, id string) (*ShareAlias, error)
	GetByAlias(ctx context.Context, path string) (*ArchivedGroup, error)
}

// Client talks to the remote archive store over its JSON REST API with
// bearer-token auth. A 401 triggers one token refresh and retry; a
// second rejection surfaces as ErrUnavailable.
type Client struct {
	httpc   *http.Client
	baseURL string
	store   *store.Store
}

func NewClient(baseURL string, st *store.Store) *Client {
	return &Client{
		httpc:   &http.Client{Timeout: 15 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		store:   st,
	}
}

type tokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func (c *Client) CreateGroup(ctx context.Context, group *ArchivedGroup) (*ArchivedGroup, error) {
	var out ArchivedGroup
	if err := c.do(ctx, http.MethodPost, "/tab-group", group, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListGroups(ctx context.Context) ([]ArchivedGroup, error) {
	var out []ArchivedGroup
	if err := c.do(ctx, http.MethodGet, "/tab-group", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetGroup(ctx context.Context, id string) (*ArchivedGroup, error) {
	var out ArchivedGroup
	if err := c.do(ctx, http.MethodGet, "/tab-group/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteGroup(ctx context.Context, id string) error {
	body := map[string]string{"id": id}
	return c.do(ctx, http.MethodDelete, "/tab-group", body, nil)
}

func (c *Client) CreateAlias(ctx context.Context, id string) (*ShareAlias, error) {
	body := map[string]string{"id": id}
	var out ShareAlias
	if err := c.do(ctx, http.MethodPost, "/tab-group/qr-code", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetByAlias resolves a share alias. Runs without credentials so a
// receiving device can restore before it ever authenticated.
func (c *Client) GetByAlias(ctx context.Context, path string) (*ArchivedGroup, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tab-group/alias/"+path, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build alias request: %w", err)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("resolve alias: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("resolve alias: status %d", resp.StatusCode)
	}
	var out ArchivedGroup
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode alias response: %w", err)
	}
	return &out, nil
}

// do runs one authenticated request. The token lifecycle lives here:
// missing tokens bootstrap a device registration, expired or rejected
// access tokens get exactly one refresh-and-retry.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	tokens := c.store.Tokens()
	if tokens.AccessToken == "" {
		var err error
		if tokens, err = c.register(ctx); err != nil {
			return err
		}
	} else if tokenExpired(tokens.AccessToken) {
		if refreshed, err := c.refresh(ctx, tokens.RefreshToken); err == nil {
			tokens = refreshed
		}
	}

	status, err := c.once(ctx, method, path, body, out, tokens.AccessToken)
	if err != nil {
		return err
	}
	if status != http.StatusUnauthorized {
		return statusError(status)
	}

	tokens, err = c.refresh(ctx, tokens.RefreshToken)
	if err != nil {
		return err
	}
	status, err = c.once(ctx, method, path, body, out, tokens.AccessToken)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		return ErrUnavailable
	}
	return statusError(status)
}

func (c *Client) once(ctx context.Context, method, path string, body, out any, access string) (int, error) {
	var rd io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request body: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+access)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK && out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return 0, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// register bootstraps an anonymous device token pair.
func (c *Client) register(ctx context.Context) (store.Tokens, error) {
	return c.tokenCall(ctx, "/auth/token", nil)
}

func (c *Client) refresh(ctx context.Context, refreshToken string) (store.Tokens, error) {
	body := map[string]string{"refreshToken": refreshToken}
	tokens, err := c.tokenCall(ctx, "/auth/refresh", body)
	if err != nil {
		return store.Tokens{}, err
	}
	slog.Debug("archive tokens refreshed")
	return tokens, nil
}

func (c *Client) tokenCall(ctx context.Context, path string, body any) (store.Tokens, error) {
	var rd io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return store.Tokens{}, fmt.Errorf("encode token request: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, rd)
	if err != nil {
		return store.Tokens{}, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return store.Tokens{}, fmt.Errorf("%w: %s", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return store.Tokens{}, fmt.Errorf("%w: token endpoint status %d", ErrUnavailable, resp.StatusCode)
	}

	var pair tokenPair
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
		return store.Tokens{}, fmt.Errorf("decode token response: %w", err)
	}
	tokens := store.Tokens{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}
	c.store.PutTokens(tokens)
	return tokens, nil
}

// tokenExpired inspects the access token's exp claim without verifying
// the signature; the server remains the authority, this only saves a
// guaranteed-401 round trip.
func tokenExpired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return time.Now().After(exp.Time)
}

func statusError(status int) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusNotFound:
		return ErrNotFound
	default:
		return fmt.Errorf("archive store: status %d", status)
	}
}
