package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	defaultGitHubAuthURL   = "https://github.com/login/oauth/authorize"
	defaultGitHubTokenURL  = "https://github.com/login/oauth/access_token"
	defaultGitHubUserURL   = "https://api.github.com/user"
	defaultGitHubEmailsURL = "https://api.github.com/user/emails"
)

// GitHubOAuthConfig はGitHub OAuthプロバイダーの設定。
type GitHubOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	AuthURL   string
	TokenURL  string
	UserURL   string
	EmailsURL string

	HTTPClient *http.Client
}

// GitHubOAuthProvider はGitHub OAuthによる認証を提供する。
type GitHubOAuthProvider struct {
	config GitHubOAuthConfig
	client *http.Client
}

// NewGitHubOAuthProvider はGitHubOAuthProviderを生成する。
func NewGitHubOAuthProvider(config GitHubOAuthConfig) *GitHubOAuthProvider {
	if config.AuthURL == "" {
		config.AuthURL = defaultGitHubAuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultGitHubTokenURL
	}
	if config.UserURL == "" {
		config.UserURL = defaultGitHubUserURL
	}
	if config.EmailsURL == "" {
		config.EmailsURL = defaultGitHubEmailsURL
	}
	return &GitHubOAuthProvider{config: config, client: defaultProviderClient(config.HTTPClient)}
}

// Name はプロバイダー名を返す。
func (p *GitHubOAuthProvider) Name() string {
	return "github"
}

// LoginURL はGitHubの認証URLを生成する。
func (p *GitHubOAuthProvider) LoginURL(state string) string {
	params := url.Values{
		"client_id":    {p.config.ClientID},
		"redirect_uri": {p.config.RedirectURL},
		"scope":        {"read:user user:email"},
		"state":        {state},
	}
	return p.config.AuthURL + "?" + params.Encode()
}

type githubTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Error       string `json:"error"`
	ErrorDesc   string `json:"error_description"`
}

type githubUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// ExchangeCode は認可コードをアクセストークンに交換し、ユーザー情報を取得する。
// 公開プロフィールにメールアドレスがない場合は検証済みのプライマリアドレスを使用する。
// 公開アドレスの検証状態はメール一覧から判定する。
func (p *GitHubOAuthProvider) ExchangeCode(ctx context.Context, code string) (*ProviderProfile, error) {
	accessToken, err := p.exchangeToken(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	user, err := p.fetchUser(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}

	emails, err := p.fetchEmails(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch emails: %w", err)
	}

	email, verified := user.Email, false
	if email == "" {
		email, err = primaryEmail(emails)
		if err != nil {
			return nil, err
		}
		verified = true
	} else {
		for _, e := range emails {
			if strings.EqualFold(e.Email, email) {
				verified = e.Verified
				break
			}
		}
	}

	name := user.Name
	if name == "" {
		name = user.Login
	}

	return &ProviderProfile{
		Provider:       p.Name(),
		ProviderUserID: strconv.FormatInt(user.ID, 10),
		Email:          email,
		EmailVerified:  verified,
		Name:           name,
	}, nil
}

func (p *GitHubOAuthProvider) exchangeToken(ctx context.Context, code string) (string, error) {
	data := url.Values{
		"client_id":     {p.config.ClientID},
		"client_secret": {p.config.ClientSecret},
		"code":          {code},
		"redirect_uri":  {p.config.RedirectURL},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	var token githubTokenResponse
	if err := doJSON(p.client, req, &token); err != nil {
		return "", err
	}
	// GitHubはエラー時も200を返す
	if token.Error != "" {
		return "", fmt.Errorf("%s: %s", token.Error, token.ErrorDesc)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("empty access token in response")
	}
	return token.AccessToken, nil
}

func (p *GitHubOAuthProvider) newAPIRequest(ctx context.Context, rawURL, accessToken string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github+json")
	return req, nil
}

func (p *GitHubOAuthProvider) fetchUser(ctx context.Context, accessToken string) (*githubUser, error) {
	req, err := p.newAPIRequest(ctx, p.config.UserURL, accessToken)
	if err != nil {
		return nil, err
	}

	var user githubUser
	if err := doJSON(p.client, req, &user); err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, fmt.Errorf("empty id in user response")
	}
	return &user, nil
}

func (p *GitHubOAuthProvider) fetchEmails(ctx context.Context, accessToken string) ([]githubEmail, error) {
	req, err := p.newAPIRequest(ctx, p.config.EmailsURL, accessToken)
	if err != nil {
		return nil, err
	}

	var emails []githubEmail
	if err := doJSON(p.client, req, &emails); err != nil {
		return nil, err
	}
	return emails, nil
}

func primaryEmail(emails []githubEmail) (string, error) {
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, nil
		}
	}
	return "", fmt.Errorf("no verified primary email")
}

var _ OAuthProvider = (*GitHubOAuthProvider)(nil)
