package auth

import (
	"context"
	"fmt"
	"net/url"
)

const (
	defaultFacebookAuthURL     = "https://www.facebook.com/v18.0/dialog/oauth"
	defaultFacebookTokenURL    = "https://graph.facebook.com/v18.0/oauth/access_token"
	defaultFacebookUserInfoURL = "https://graph.facebook.com/v18.0/me"
)

// FacebookOAuthConfig はFacebook OAuthプロバイダーの設定。
type FacebookOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// テスト用にオーバーライド可能なURL
	AuthURL     string
	TokenURL    string
	UserInfoURL string
}

// FacebookOAuthProvider はFacebook Login (OAuth 2.0) による認証を提供する。
type FacebookOAuthProvider struct {
	config FacebookOAuthConfig
}

// NewFacebookOAuthProvider はFacebookOAuthProviderを生成する。
func NewFacebookOAuthProvider(config FacebookOAuthConfig) *FacebookOAuthProvider {
	if config.AuthURL == "" {
		config.AuthURL = defaultFacebookAuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultFacebookTokenURL
	}
	if config.UserInfoURL == "" {
		config.UserInfoURL = defaultFacebookUserInfoURL
	}
	return &FacebookOAuthProvider{config: config}
}

// Name はプロバイダー識別子を返す。
func (p *FacebookOAuthProvider) Name() string {
	return "facebook"
}

// GetLoginURL はFacebook Loginの認証URLを生成する。
func (p *FacebookOAuthProvider) GetLoginURL(state string) string {
	params := url.Values{
		"client_id":     {p.config.ClientID},
		"redirect_uri":  {p.config.RedirectURL},
		"response_type": {"code"},
		"scope":         {"email public_profile"},
		"state":         {state},
	}
	return p.config.AuthURL + "?" + params.Encode()
}

// facebookTokenResponse はFacebookのトークンエンドポイントのレスポンス。
type facebookTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// facebookUserInfo はFacebookのユーザー情報エンドポイントのレスポンス。
type facebookUserInfo struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// ExchangeCode は認可コードをアクセストークンに交換し、ユーザー情報を取得する。
func (p *FacebookOAuthProvider) ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error) {
	form := url.Values{
		"code":          {code},
		"client_id":     {p.config.ClientID},
		"client_secret": {p.config.ClientSecret},
		"redirect_uri":  {p.config.RedirectURL},
	}

	var tokenResp facebookTokenResponse
	if err := postFormJSON(ctx, p.config.TokenURL, form, &tokenResp); err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("empty access token in response")
	}

	// Graph APIはfieldsパラメータで取得フィールドを指定する
	infoURL := p.config.UserInfoURL + "?fields=" + url.QueryEscape("id,name,email")
	var userInfo facebookUserInfo
	if err := getJSON(ctx, infoURL, tokenResp.AccessToken, &userInfo); err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}
	if userInfo.ID == "" {
		return nil, fmt.Errorf("empty user ID in user info response")
	}

	return &OAuthUserInfo{
		ProviderUserID: userInfo.ID,
		Email:          userInfo.Email,
		Name:           userInfo.Name,
		Provider:       "facebook",
	}, nil
}

// compile-time interface check
var _ OAuthProvider = (*FacebookOAuthProvider)(nil)
