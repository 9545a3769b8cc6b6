package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Googleの各エンドポイント。テストではGoogleOAuthConfigで差し替える。
const (
	googleAuthEndpoint     = "https://accounts.google.com/o/oauth2/auth"
	googleTokenEndpoint    = "https://oauth2.googleapis.com/token"
	googleUserInfoEndpoint = "https://www.googleapis.com/oauth2/v3/userinfo"
)

// GoogleOAuthConfig はGoogle OAuthプロバイダーの設定。
// AuthURL以下はゼロ値のままならGoogleの本番エンドポイントを使う。
type GoogleOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	AuthURL     string
	TokenURL    string
	UserInfoURL string

	// HTTPClient が nil の場合は http.DefaultClient を使う。
	HTTPClient *http.Client
}

// GoogleOAuthProvider はGoogleの認可コードフローを実装する。
// コードをトークンに交換し、userinfoエンドポイントから
// プロフィール初期値（メール・姓名）を引き出す。
type GoogleOAuthProvider struct {
	config     GoogleOAuthConfig
	httpClient *http.Client
}

// NewGoogleOAuthProvider はGoogleOAuthProviderを生成する。
func NewGoogleOAuthProvider(config GoogleOAuthConfig) *GoogleOAuthProvider {
	if config.AuthURL == "" {
		config.AuthURL = googleAuthEndpoint
	}
	if config.TokenURL == "" {
		config.TokenURL = googleTokenEndpoint
	}
	if config.UserInfoURL == "" {
		config.UserInfoURL = googleUserInfoEndpoint
	}
	client := config.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &GoogleOAuthProvider{config: config, httpClient: client}
}

// GetLoginURL はユーザーをリダイレクトする認可URLを組み立てる。
// openidスコープに加えemailとprofileを要求する。
func (p *GoogleOAuthProvider) GetLoginURL(state string) string {
	query := url.Values{
		"client_id":     {p.config.ClientID},
		"redirect_uri":  {p.config.RedirectURL},
		"response_type": {"code"},
		"scope":         {"openid email profile"},
		"state":         {state},
		"access_type":   {"offline"},
	}
	return p.config.AuthURL + "?" + query.Encode()
}

type googleToken struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

type googleProfile struct {
	Sub        string `json:"sub"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
}

// ExchangeCode は認可コードからユーザー情報までを一往復で解決する。
func (p *GoogleOAuthProvider) ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error) {
	form := url.Values{
		"code":          {code},
		"client_id":     {p.config.ClientID},
		"client_secret": {p.config.ClientSecret},
		"redirect_uri":  {p.config.RedirectURL},
		"grant_type":    {"authorization_code"},
	}

	tokenReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build token request: %w", err)
	}
	tokenReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var token googleToken
	if err := p.doJSON(tokenReq, &token); err != nil {
		return nil, fmt.Errorf("token exchange: %w", err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("token exchange: no access_token in response")
	}

	infoReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.UserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build userinfo request: %w", err)
	}
	infoReq.Header.Set("Authorization", "Bearer "+token.AccessToken)

	var gp googleProfile
	if err := p.doJSON(infoReq, &gp); err != nil {
		return nil, fmt.Errorf("userinfo fetch: %w", err)
	}
	if gp.Sub == "" {
		return nil, fmt.Errorf("userinfo fetch: no sub in response")
	}

	return &OAuthUserInfo{
		ProviderUserID: gp.Sub,
		Email:          gp.Email,
		FirstName:      gp.GivenName,
		LastName:       gp.FamilyName,
		Provider:       "google",
	}, nil
}

// doJSON はリクエストを実行し、2xxであればJSONボディをoutへデコードする。
func (p *GoogleOAuthProvider) doJSON(req *http.Request, out interface{}) error {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// compile-time interface check
var _ OAuthProvider = (*GoogleOAuthProvider)(nil)
