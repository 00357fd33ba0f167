package security

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nimbusworks/console-identity-service/internal/domain"
	"github.com/nimbusworks/console-identity-service/internal/ports"
)

// OAuthProviderConfig holds per-provider client credentials. TokenURL,
// UserInfoURL and IDField apply to the generic OAUTH2 provider only; the
// named providers use their well-known endpoints.
type OAuthProviderConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	UserInfoURL  string
	IDField      string
}

type OAuthConfig struct {
	HTTPClient *http.Client
	Providers  map[domain.ProviderType]OAuthProviderConfig
}

// OAuthClient exchanges authorization codes against the upstream providers.
type OAuthClient struct {
	httpClient *http.Client
	providers  map[domain.ProviderType]OAuthProviderConfig
}

func NewOAuthClient(cfg OAuthConfig) *OAuthClient {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 8 * time.Second}
	}
	return &OAuthClient{httpClient: httpClient, providers: cfg.Providers}
}

func (c *OAuthClient) Exchange(ctx context.Context, provider domain.ProviderType, code string) (ports.OAuthIdentity, error) {
	if strings.TrimSpace(code) == "" {
		return ports.OAuthIdentity{}, fmt.Errorf("%w: authorization code is required", domain.ErrInvalidInput)
	}
	cfg, ok := c.providers[provider]
	if !ok {
		return ports.OAuthIdentity{}, fmt.Errorf("%w: %s is not configured", domain.ErrProviderDisabled, provider)
	}

	var (
		identity ports.OAuthIdentity
		err      error
	)
	switch provider {
	case domain.ProviderGithub:
		identity, err = c.exchangeGithub(ctx, cfg, code)
	case domain.ProviderGoogle:
		identity, err = c.exchangeGoogle(ctx, cfg, code)
	case domain.ProviderWechat:
		identity, err = c.exchangeWechat(ctx, cfg, code)
	case domain.ProviderOAuth2:
		identity, err = c.exchangeGeneric(ctx, cfg, code)
	default:
		return ports.OAuthIdentity{}, fmt.Errorf("%w: %s is not an OAuth provider", domain.ErrInvalidInput, provider)
	}
	if err != nil {
		return ports.OAuthIdentity{}, wrapUpstream(err)
	}
	if identity.ProviderID == "" {
		return ports.OAuthIdentity{}, domain.ErrVerificationFailed
	}
	identity.Provider = provider
	return identity, nil
}

// exchangeGithub swaps the code for an access token, then reads the user.
// The numeric GitHub id is the stable identity; logins can be renamed.
func (c *OAuthClient) exchangeGithub(ctx context.Context, cfg OAuthProviderConfig, code string) (ports.OAuthIdentity, error) {
	form := url.Values{}
	form.Set("client_id", cfg.ClientID)
	form.Set("client_secret", cfg.ClientSecret)
	form.Set("code", code)

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		Error       string `json:"error"`
	}
	if err := c.postForm(ctx, "https://github.com/login/oauth/access_token", form, &tokenResp); err != nil {
		return ports.OAuthIdentity{}, err
	}
	if tokenResp.Error != "" || tokenResp.AccessToken == "" {
		return ports.OAuthIdentity{}, domain.ErrVerificationFailed
	}

	var user struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := c.getJSON(ctx, "https://api.github.com/user", tokenResp.AccessToken, &user); err != nil {
		return ports.OAuthIdentity{}, err
	}
	displayName := user.Name
	if displayName == "" {
		displayName = user.Login
	}
	return ports.OAuthIdentity{
		ProviderID:  strconv.FormatInt(user.ID, 10),
		DisplayName: displayName,
		AvatarURL:   user.AvatarURL,
	}, nil
}

// exchangeGoogle swaps the code for an id_token and reads the subject from
// it. The token arrives straight from Google's token endpoint over TLS, so
// the signature is not re-verified here.
func (c *OAuthClient) exchangeGoogle(ctx context.Context, cfg OAuthProviderConfig, code string) (ports.OAuthIdentity, error) {
	form := url.Values{}
	form.Set("client_id", cfg.ClientID)
	form.Set("client_secret", cfg.ClientSecret)
	form.Set("code", code)
	form.Set("grant_type", "authorization_code")

	var tokenResp struct {
		IDToken string `json:"id_token"`
	}
	if err := c.postForm(ctx, "https://oauth2.googleapis.com/token", form, &tokenResp); err != nil {
		return ports.OAuthIdentity{}, err
	}
	if tokenResp.IDToken == "" {
		return ports.OAuthIdentity{}, domain.ErrVerificationFailed
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenResp.IDToken, claims); err != nil {
		return ports.OAuthIdentity{}, fmt.Errorf("parse id_token: %w", err)
	}
	sub, _ := claims["sub"].(string)
	name, _ := claims["name"].(string)
	picture, _ := claims["picture"].(string)
	email, _ := claims["email"].(string)
	return ports.OAuthIdentity{
		ProviderID:  sub,
		DisplayName: name,
		AvatarURL:   picture,
		Email:       email,
	}, nil
}

// exchangeWechat prefers the cross-app unionid and falls back to openid for
// single-app deployments.
func (c *OAuthClient) exchangeWechat(ctx context.Context, cfg OAuthProviderConfig, code string) (ports.OAuthIdentity, error) {
	endpoint := "https://api.weixin.qq.com/sns/oauth2/access_token?appid=" + url.QueryEscape(cfg.ClientID) +
		"&secret=" + url.QueryEscape(cfg.ClientSecret) +
		"&code=" + url.QueryEscape(code) +
		"&grant_type=authorization_code"

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		OpenID      string `json:"openid"`
		UnionID     string `json:"unionid"`
		ErrCode     int    `json:"errcode"`
	}
	if err := c.getJSON(ctx, endpoint, "", &tokenResp); err != nil {
		return ports.OAuthIdentity{}, err
	}
	if tokenResp.ErrCode != 0 {
		return ports.OAuthIdentity{}, domain.ErrVerificationFailed
	}
	providerID := tokenResp.UnionID
	if providerID == "" {
		providerID = tokenResp.OpenID
	}
	return ports.OAuthIdentity{ProviderID: providerID}, nil
}

func (c *OAuthClient) exchangeGeneric(ctx context.Context, cfg OAuthProviderConfig, code string) (ports.OAuthIdentity, error) {
	if cfg.TokenURL == "" || cfg.UserInfoURL == "" || cfg.IDField == "" {
		return ports.OAuthIdentity{}, fmt.Errorf("%w: OAUTH2 endpoints are not configured", domain.ErrProviderDisabled)
	}
	form := url.Values{}
	form.Set("client_id", cfg.ClientID)
	form.Set("client_secret", cfg.ClientSecret)
	form.Set("code", code)
	form.Set("grant_type", "authorization_code")

	var tokenResp struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.postForm(ctx, cfg.TokenURL, form, &tokenResp); err != nil {
		return ports.OAuthIdentity{}, err
	}
	if tokenResp.AccessToken == "" {
		return ports.OAuthIdentity{}, domain.ErrVerificationFailed
	}

	var user map[string]any
	if err := c.getJSON(ctx, cfg.UserInfoURL, tokenResp.AccessToken, &user); err != nil {
		return ports.OAuthIdentity{}, err
	}
	var providerID string
	switch v := user[cfg.IDField].(type) {
	case string:
		providerID = v
	case float64:
		providerID = strconv.FormatInt(int64(v), 10)
	}
	name, _ := user["name"].(string)
	return ports.OAuthIdentity{ProviderID: providerID, DisplayName: name}, nil
}

func (c *OAuthClient) postForm(ctx context.Context, endpoint string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	return c.do(req, out)
}

func (c *OAuthClient) getJSON(ctx context.Context, endpoint, bearer string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return c.do(req, out)
}

func (c *OAuthClient) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: upstream returned %d", domain.ErrVerificationFailed, resp.StatusCode)
	}
	return json.Unmarshal(body, out)
}

// wrapUpstream maps transport timeouts onto the domain sentinel so handlers
// answer 504, not a generic failure.
func wrapUpstream(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err)
	}
	return err
}
