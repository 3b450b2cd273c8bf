package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"

	apperrors "bracket-trader/internal/errors"
	"bracket-trader/internal/security"
	"bracket-trader/pkg/utils"
)

// DefaultKiteWebURL is the Kite web host used for the TOTP login flow.
const DefaultKiteWebURL = "https://kite.zerodha.com"

// TokenStore persists the daily access token sealed with the API secret.
type TokenStore struct {
	path       string
	passphrase string
}

// sessionData represents persisted session data.
type sessionData struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// NewTokenStore creates a token store. An empty path uses the default
// location under the config directory.
func NewTokenStore(path, passphrase string) *TokenStore {
	if path == "" {
		homeDir, _ := os.UserHomeDir()
		path = filepath.Join(homeDir, ".config", "bracket-trader", "session.json")
	}
	return &TokenStore{path: path, passphrase: passphrase}
}

// Load returns the saved token if it has not expired at now.
func (s *TokenStore) Load(now time.Time) (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return "", err
	}

	plain, err := security.Open(s.passphrase, data)
	if err != nil {
		return "", fmt.Errorf("opening session: %w", err)
	}

	var session sessionData
	if err := json.Unmarshal(plain, &session); err != nil {
		return "", err
	}

	if !now.Before(session.ExpiresAt) {
		return "", apperrors.ErrSessionExpired
	}

	return session.AccessToken, nil
}

// Save writes token with an expiry of 06:00 IST the following morning.
func (s *TokenStore) Save(token string, now time.Time) error {
	plain, err := json.Marshal(sessionData{
		AccessToken: token,
		ExpiresAt:   SessionExpiry(now),
	})
	if err != nil {
		return err
	}

	sealed, err := security.Seal(s.passphrase, plain)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return err
	}
	return os.WriteFile(s.path, sealed, 0600)
}

// Clear removes the saved token.
func (s *TokenStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// SessionExpiry returns when a token issued at now stops working. Kite
// tokens expire at 6 AM IST.
func SessionExpiry(now time.Time) time.Time {
	local := now.In(utils.IndiaLocation)
	expiry := time.Date(local.Year(), local.Month(), local.Day(), 6, 0, 0, 0, utils.IndiaLocation)
	if !local.Before(expiry) {
		expiry = expiry.AddDate(0, 0, 1)
	}
	return expiry
}

// Login makes sure the broker holds a working access token. It reuses a
// saved token, then tries TOTP auto-login when credentials allow it.
func (k *KiteBroker) Login(ctx context.Context) error {
	if k.IsAuthenticated() {
		if _, err := k.client.GetUserProfile(); err == nil {
			return nil
		}
		k.setAccessToken("")
	}

	if k.cfg.Password == "" || k.cfg.TOTPSecret == "" {
		return fmt.Errorf("%w: visit %s and run `trader login --request-token <token>`",
			apperrors.ErrNotAuthenticated, k.LoginURL())
	}

	requestToken, err := fetchRequestToken(ctx, DefaultKiteWebURL, k.cfg, time.Now())
	if err != nil {
		return fmt.Errorf("auto-login: %w", err)
	}

	return k.CompleteLogin(ctx, requestToken)
}

// CompleteLogin exchanges a request token for an access token and saves it.
func (k *KiteBroker) CompleteLogin(ctx context.Context, requestToken string) error {
	session, err := k.client.GenerateSession(requestToken, k.cfg.APISecret)
	if err != nil {
		return fmt.Errorf("failed to generate session: %w", err)
	}

	k.setAccessToken(session.AccessToken)

	if err := k.tokens.Save(session.AccessToken, time.Now()); err != nil {
		k.logger.Warn().Err(err).Msg("failed to persist session")
	}

	k.logger.Info().Str("user_id", session.UserID).Msg("session established")
	return nil
}

// Logout drops the session locally and on Kite.
func (k *KiteBroker) Logout(ctx context.Context) error {
	if k.IsAuthenticated() {
		if _, err := k.client.InvalidateAccessToken(); err != nil {
			k.logger.Warn().Err(err).Msg("failed to invalidate token")
		}
	}
	k.setAccessToken("")
	return k.tokens.Clear()
}

type kiteWebResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		RequestID string `json:"request_id"`
	} `json:"data"`
}

// fetchRequestToken drives the Kite web login (password, then TOTP) and
// follows the connect redirect until it carries a request_token.
func fetchRequestToken(ctx context.Context, baseURL string, cfg KiteConfig, now time.Time) (string, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return "", err
	}

	var requestToken string
	client := &http.Client{
		Jar:     jar,
		Timeout: 30 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if t := req.URL.Query().Get("request_token"); t != "" {
				requestToken = t
				return http.ErrUseLastResponse
			}
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}

	login, err := postForm(ctx, client, baseURL+"/api/login", url.Values{
		"user_id":  {cfg.UserID},
		"password": {cfg.Password},
	})
	if err != nil {
		return "", fmt.Errorf("password step: %w", err)
	}

	code, err := totp.GenerateCode(cfg.TOTPSecret, now)
	if err != nil {
		return "", fmt.Errorf("generating TOTP: %w", err)
	}

	if _, err := postForm(ctx, client, baseURL+"/api/twofa", url.Values{
		"user_id":     {cfg.UserID},
		"request_id":  {login.Data.RequestID},
		"twofa_value": {code},
		"twofa_type":  {"totp"},
	}); err != nil {
		return "", fmt.Errorf("twofa step: %w", err)
	}

	connect := fmt.Sprintf("%s/connect/login?v=3&api_key=%s", baseURL, url.QueryEscape(cfg.APIKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, connect, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	resp.Body.Close()

	if requestToken == "" {
		return "", fmt.Errorf("no request_token in redirect (status %d)", resp.StatusCode)
	}
	return requestToken, nil
}

func postForm(ctx context.Context, client *http.Client, endpoint string, form url.Values) (*kiteWebResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var out kiteWebResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decoding response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || out.Status != "success" {
		return nil, fmt.Errorf("login rejected: %s", out.Message)
	}

	return &out, nil
}
