package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultIdentityToolkitURL = "https://identitytoolkit.googleapis.com/v1"
	defaultSecureTokenURL     = "https://securetoken.googleapis.com/v1"

	// maxResponseSize bounds how much of a toolkit response is read (1MB).
	maxResponseSize = 1 << 20
)

type FirebaseConfig struct {
	APIKey string
	// Request URI sent with signInWithIdp; Firebase requires an http(s) URL.
	RequestURI string

	// Overridable for tests.
	IdentityToolkitURL string
	SecureTokenURL     string
	HTTPClient         *http.Client
}

// FirebaseProvider implements Provider against the Identity Toolkit REST API.
type FirebaseProvider struct {
	config FirebaseConfig
	client *http.Client
	logger *zap.Logger
	now    func() time.Time
}

func NewFirebaseProvider(config FirebaseConfig, logger *zap.Logger) *FirebaseProvider {
	if config.IdentityToolkitURL == "" {
		config.IdentityToolkitURL = defaultIdentityToolkitURL
	}
	if config.SecureTokenURL == "" {
		config.SecureTokenURL = defaultSecureTokenURL
	}
	if config.RequestURI == "" {
		config.RequestURI = "http://localhost"
	}
	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &FirebaseProvider{config: config, client: client, logger: logger, now: time.Now}
}

type firebaseAuthResponse struct {
	LocalID       string `json:"localId"`
	Email         string `json:"email"`
	DisplayName   string `json:"displayName"`
	PhotoURL      string `json:"photoUrl"`
	EmailVerified bool   `json:"emailVerified"`
	IDToken       string `json:"idToken"`
	RefreshToken  string `json:"refreshToken"`
	ExpiresIn     string `json:"expiresIn"`
}

type firebaseTokenResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
	UserID       string `json:"user_id"`
}

type firebaseLookupResponse struct {
	Users []struct {
		LocalID       string `json:"localId"`
		Email         string `json:"email"`
		DisplayName   string `json:"displayName"`
		PhotoURL      string `json:"photoUrl"`
		EmailVerified bool   `json:"emailVerified"`
	} `json:"users"`
}

type firebaseErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (p *FirebaseProvider) SignInWithPassword(ctx context.Context, email, password string) (*Credentials, error) {
	var resp firebaseAuthResponse
	err := p.callAccounts(ctx, "signInWithPassword", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	creds := p.credentialsFrom(resp)

	// signInWithPassword does not report emailVerified.
	if err := p.fillFromLookup(ctx, creds); err != nil {
		p.logger.Warn("account lookup after sign-in failed", zap.String("uid", creds.UID), zap.Error(err))
	}
	return creds, nil
}

func (p *FirebaseProvider) SignUp(ctx context.Context, email, password string) (*Credentials, error) {
	var resp firebaseAuthResponse
	err := p.callAccounts(ctx, "signUp", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return p.credentialsFrom(resp), nil
}

func (p *FirebaseProvider) UpdateDisplayName(ctx context.Context, idToken, displayName string) error {
	return p.callAccounts(ctx, "update", map[string]any{
		"idToken":           idToken,
		"displayName":       displayName,
		"returnSecureToken": false,
	}, nil)
}

func (p *FirebaseProvider) SignInWithIDP(ctx context.Context, providerID, idpIDToken string) (*Credentials, error) {
	postBody := url.Values{"id_token": {idpIDToken}, "providerId": {providerID}}.Encode()

	var resp firebaseAuthResponse
	err := p.callAccounts(ctx, "signInWithIdp", map[string]any{
		"postBody":            postBody,
		"requestUri":          p.config.RequestURI,
		"returnSecureToken":   true,
		"returnIdpCredential": true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return p.credentialsFrom(resp), nil
}

func (p *FirebaseProvider) SendPasswordReset(ctx context.Context, email string) error {
	return p.callAccounts(ctx, "sendOobCode", map[string]any{
		"requestType": "PASSWORD_RESET",
		"email":       email,
	}, nil)
}

func (p *FirebaseProvider) Refresh(ctx context.Context, refreshToken string) (*Credentials, error) {
	form := url.Values{"grant_type": {"refresh_token"}, "refresh_token": {refreshToken}}
	endpoint := p.config.SecureTokenURL + "/token?key=" + url.QueryEscape(p.config.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, NewAuthError(CodeInternalError, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp firebaseTokenResponse
	if err := p.do(req, &resp); err != nil {
		return nil, err
	}

	creds := &Credentials{
		Identity:     Identity{UID: resp.UserID},
		IDToken:      resp.IDToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    p.expiry(resp.ExpiresIn),
	}
	if err := p.fillFromLookup(ctx, creds); err != nil {
		p.logger.Warn("account lookup after refresh failed", zap.String("uid", creds.UID), zap.Error(err))
	}
	return creds, nil
}

func (p *FirebaseProvider) DeleteAccount(ctx context.Context, idToken string) error {
	return p.callAccounts(ctx, "delete", map[string]any{"idToken": idToken}, nil)
}

func (p *FirebaseProvider) fillFromLookup(ctx context.Context, creds *Credentials) error {
	var resp firebaseLookupResponse
	if err := p.callAccounts(ctx, "lookup", map[string]any{"idToken": creds.IDToken}, &resp); err != nil {
		return err
	}
	if len(resp.Users) == 0 {
		return NewAuthError(CodeUserNotFound, nil)
	}
	u := resp.Users[0]
	creds.UID = u.LocalID
	creds.Email = u.Email
	creds.DisplayName = u.DisplayName
	creds.PhotoURL = u.PhotoURL
	creds.EmailVerified = u.EmailVerified
	return nil
}

func (p *FirebaseProvider) callAccounts(ctx context.Context, method string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return NewAuthError(CodeInternalError, err)
	}

	endpoint := fmt.Sprintf("%s/accounts:%s?key=%s", p.config.IdentityToolkitURL, method, url.QueryEscape(p.config.APIKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return NewAuthError(CodeInternalError, err)
	}
	req.Header.Set("Content-Type", "application/json")

	return p.do(req, out)
}

func (p *FirebaseProvider) do(req *http.Request, out any) error {
	resp, err := p.client.Do(req)
	if err != nil {
		return NewAuthError(CodeNetworkRequestFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return NewAuthError(CodeNetworkRequestFailed, err)
	}
	if len(body) > maxResponseSize {
		return NewAuthError(CodeInternalError, fmt.Errorf("identity toolkit response exceeds %d bytes", maxResponseSize))
	}

	if resp.StatusCode != http.StatusOK {
		var errResp firebaseErrorResponse
		if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
			return NewAuthError(CodeInternalError, fmt.Errorf("identity toolkit status %d", resp.StatusCode))
		}
		code := firebaseErrorCode(errResp.Error.Message)
		return NewAuthError(code, fmt.Errorf("identity toolkit: %s", errResp.Error.Message))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return NewAuthError(CodeInternalError, fmt.Errorf("decode identity toolkit response: %w", err))
	}
	return nil
}

func (p *FirebaseProvider) credentialsFrom(resp firebaseAuthResponse) *Credentials {
	return &Credentials{
		Identity: Identity{
			UID:           resp.LocalID,
			Email:         resp.Email,
			DisplayName:   resp.DisplayName,
			PhotoURL:      resp.PhotoURL,
			EmailVerified: resp.EmailVerified,
		},
		IDToken:      resp.IDToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    p.expiry(resp.ExpiresIn),
	}
}

func (p *FirebaseProvider) expiry(expiresIn string) time.Time {
	seconds, err := strconv.Atoi(expiresIn)
	if err != nil || seconds <= 0 {
		seconds = 3600
	}
	return p.now().Add(time.Duration(seconds) * time.Second)
}

// firebaseErrorCode maps REST error messages such as
// "WEAK_PASSWORD : Password should be at least 6 characters" to auth codes.
func firebaseErrorCode(message string) string {
	key, _, _ := strings.Cut(message, " ")
	key = strings.TrimSpace(strings.TrimSuffix(key, ":"))

	switch key {
	case "EMAIL_NOT_FOUND", "USER_NOT_FOUND":
		return CodeUserNotFound
	case "INVALID_PASSWORD":
		return CodeWrongPassword
	case "INVALID_LOGIN_CREDENTIALS", "INVALID_IDP_RESPONSE", "INVALID_REFRESH_TOKEN", "MISSING_REFRESH_TOKEN":
		return CodeInvalidCredential
	case "USER_DISABLED":
		return CodeUserDisabled
	case "TOO_MANY_ATTEMPTS_TRY_LATER", "QUOTA_EXCEEDED":
		return CodeTooManyRequests
	case "EMAIL_EXISTS":
		return CodeEmailAlreadyInUse
	case "WEAK_PASSWORD":
		return CodeWeakPassword
	case "INVALID_EMAIL", "MISSING_EMAIL":
		return CodeInvalidEmail
	case "TOKEN_EXPIRED", "CREDENTIAL_TOO_OLD_LOGIN_AGAIN":
		return CodeUserTokenExpired
	case "INVALID_ID_TOKEN":
		return CodeInvalidIDToken
	case "OPERATION_NOT_ALLOWED", "PASSWORD_LOGIN_DISABLED":
		return CodeOperationNotAllowed
	}
	return CodeInternalError
}

var _ Provider = (*FirebaseProvider)(nil)
