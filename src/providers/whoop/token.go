package whoop

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
)

const (
	DefaultTokenURL = "https://api.prod.whoop.com/oauth/oauth2/token"
	expiryBuffer    = 60 * time.Second
	defaultLifetime = time.Hour
)

var ErrNoRefreshToken = errors.New("whoop: no refresh token stored")

// TokenStore persists the long-lived refresh token. WHOOP rotates it on
// every refresh, so the new one must be written back.
type TokenStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, refreshToken string) error
}

// MemoryTokenStore keeps the refresh token in process memory.
type MemoryTokenStore struct {
	mu    sync.Mutex
	token string
}

func NewMemoryTokenStore(token string) *MemoryTokenStore {
	return &MemoryTokenStore{token: token}
}

func (s *MemoryTokenStore) Load(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

func (s *MemoryTokenStore) Save(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

// RedisTokenStore keeps the refresh token under a single key. Seed is used
// when the key does not exist yet.
type RedisTokenStore struct {
	Client *redis.Client
	Key    string
	Seed   string
}

func (s *RedisTokenStore) Load(ctx context.Context) (string, error) {
	val, err := s.Client.Get(ctx, s.Key).Result()
	if errors.Is(err, redis.Nil) {
		return s.Seed, nil
	}
	return val, err
}

func (s *RedisTokenStore) Save(ctx context.Context, token string) error {
	return s.Client.Set(ctx, s.Key, token, 0).Err()
}

// TokenManager exchanges the stored refresh token for access tokens and
// caches each access token until shortly before it expires.
type TokenManager struct {
	config *oauth2.Config
	store  TokenStore
	http   *http.Client
	now    func() time.Time

	mu     sync.Mutex
	cached *oauth2.Token
}

type TokenConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	TokenURL     string
	// HTTPClient is used for the token exchange. Nil uses http.DefaultClient.
	HTTPClient *http.Client
}

func NewTokenManager(cfg TokenConfig, store TokenStore) *TokenManager {
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	return &TokenManager{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		store: store,
		http:  cfg.HTTPClient,
		now:   time.Now,
	}
}

// AccessToken returns a valid access token, refreshing it when needed.
func (m *TokenManager) AccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cached != nil && m.now().Before(m.cached.Expiry.Add(-expiryBuffer)) {
		return m.cached.AccessToken, nil
	}

	refresh, err := m.store.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("whoop: load refresh token: %w", err)
	}
	if refresh == "" {
		return "", ErrNoRefreshToken
	}

	if m.http != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, m.http)
	}
	tok, err := m.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refresh}).Token()
	if err != nil {
		return "", fmt.Errorf("whoop: refresh access token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("whoop: no access token received")
	}
	if tok.Expiry.IsZero() {
		tok.Expiry = m.now().Add(defaultLifetime)
	}
	if tok.RefreshToken != "" && tok.RefreshToken != refresh {
		if err := m.store.Save(ctx, tok.RefreshToken); err != nil {
			return "", fmt.Errorf("whoop: save rotated refresh token: %w", err)
		}
	}
	m.cached = tok
	return tok.AccessToken, nil
}
