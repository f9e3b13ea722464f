package token

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"whatshook/internal/constants"
	apperrors "whatshook/internal/errors"
	"whatshook/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// Provider mints short-lived bearer tokens for authenticating outbound
// webhook calls
type Provider interface {
	GetAccessToken(ctx context.Context) (*models.AccessToken, error)
}

type provider struct {
	clientEmail  string
	privateKeyID string
	key          *rsa.PrivateKey
	tokenURI     string
	scope        string
	client       *http.Client
	now          func() time.Time
}

// NewProvider parses the service-account key and returns a token provider.
// Every GetAccessToken call performs one token-endpoint exchange; tokens
// are not cached and failed exchanges are not retried.
func NewProvider(cfg models.ServiceAccountConfig, timeout time.Duration) (Provider, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(cfg.PrivateKey))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeAuth, "failed to parse service account private key")
	}

	return &provider{
		clientEmail:  cfg.ClientEmail,
		privateKeyID: cfg.PrivateKeyID,
		key:          key,
		tokenURI:     cfg.TokenURI,
		scope:        constants.TokenScopeDatastore,
		client:       &http.Client{Timeout: timeout},
		now:          time.Now,
	}, nil
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int    `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// GetAccessToken signs a one-hour assertion and exchanges it for a bearer
// token via the JWT-bearer grant
func (p *provider) GetAccessToken(ctx context.Context) (*models.AccessToken, error) {
	issuedAt := p.now()

	assertion, err := p.signAssertion(issuedAt)
	if err != nil {
		return nil, err
	}

	form := url.Values{
		"grant_type": {constants.TokenGrantType},
		"assertion":  {assertion},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeAuth, "failed to build token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeAuth, "token endpoint unreachable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeAuth, "failed to read token response")
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeAuth, "failed to decode token response")
	}

	if tr.AccessToken == "" {
		msg := "token endpoint returned no access token"
		if tr.ErrorDescription != "" {
			msg = fmt.Sprintf("%s: %s", msg, tr.ErrorDescription)
		} else if tr.Error != "" {
			msg = fmt.Sprintf("%s: %s", msg, tr.Error)
		}
		return nil, apperrors.New(apperrors.ErrCodeAuth, msg).WithContext("status", resp.StatusCode)
	}

	expiresIn := time.Duration(tr.ExpiresIn) * time.Second
	if tr.ExpiresIn <= 0 {
		expiresIn = constants.TokenValiditySec * time.Second
	}

	return &models.AccessToken{
		Value:     tr.AccessToken,
		IssuedAt:  issuedAt,
		ExpiresIn: expiresIn,
	}, nil
}

func (p *provider) signAssertion(issuedAt time.Time) (string, error) {
	claims := jwt.MapClaims{
		"iss":   p.clientEmail,
		"scope": p.scope,
		"aud":   p.tokenURI,
		"iat":   issuedAt.Unix(),
		"exp":   issuedAt.Add(constants.TokenValiditySec * time.Second).Unix(),
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if p.privateKeyID != "" {
		tok.Header["kid"] = p.privateKeyID
	}

	signed, err := tok.SignedString(p.key)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeAuth, "failed to sign token assertion")
	}
	return signed, nil
}
