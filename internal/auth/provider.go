package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/hitoshi/rentals/internal/security"
)

// providerTimeout は外部IdPへのHTTPリクエストのタイムアウト。
const providerTimeout = 10 * time.Second

// ProviderProfile は外部IdPから取得したユーザー情報を表す。
type ProviderProfile struct {
	Provider       string // "google", "github" 等
	ProviderUserID string
	Email          string
	EmailVerified  bool // IdPがEmailの所有を確認済みか
	Name           string
}

// OAuthProvider は外部IdPによる認証のインターフェース。
type OAuthProvider interface {
	// Name はプロバイダー名を返す。URLパスとidentitiesテーブルのproviderに使用する。
	Name() string
	// LoginURL は認証画面のURLを生成する。
	LoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*ProviderProfile, error)
}

// ProviderRegistry は名前でプロバイダーを引く。
type ProviderRegistry struct {
	providers map[string]OAuthProvider
}

// NewProviderRegistry はProviderRegistryを生成する。nilのプロバイダーは無視する。
func NewProviderRegistry(providers ...OAuthProvider) *ProviderRegistry {
	r := &ProviderRegistry{providers: make(map[string]OAuthProvider)}
	for _, p := range providers {
		if p != nil {
			r.providers[p.Name()] = p
		}
	}
	return r
}

// Lookup は指定名のプロバイダーを返す。
func (r *ProviderRegistry) Lookup(name string) (OAuthProvider, bool) {
	if r == nil {
		return nil, false
	}
	p, ok := r.providers[strings.ToLower(name)]
	return p, ok
}

// Names は登録済みのプロバイダー名を昇順で返す。
func (r *ProviderRegistry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func defaultProviderClient(client *http.Client) *http.Client {
	if client != nil {
		return client
	}
	return security.NewSafeClient(providerTimeout)
}

// doJSON はリクエストを送信し、200応答のJSONをdstにデコードする。
func doJSON(client *http.Client, req *http.Request, dst any) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// NewState はOAuthのstateパラメータに使う推測困難な文字列を生成する。
func NewState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return hex.EncodeToString(b), nil
}
