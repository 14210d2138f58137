package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the signature algorithm.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

// Token-use claim values. A refresh token presented where an access token
// is expected (or vice versa) fails verification.
const (
	UseAccess  = "access"
	UseRefresh = "refresh"
)

var (
	// ErrInvalid covers malformed tokens, bad signatures, wrong
	// issuer/audience, and token-use mismatches.
	ErrInvalid = errors.New("invalid token")
	// ErrExpired is returned for structurally valid tokens past their
	// expiry.
	ErrExpired = errors.New("token expired")
)

// Config holds signing material and expirations. RefreshTTL is fixed
// regardless of rememberMe; only the access expiry stretches.
type Config struct {
	AccessTTL           time.Duration
	RememberMeAccessTTL time.Duration
	RefreshTTL          time.Duration
	SigningMethod       SigningMethod
	PrivateKey          []byte
	PublicKey           []byte
	Issuer              string
	Audience            string
	Leeway              time.Duration
}

// Claims is the payload carried by both token kinds.
type Claims struct {
	IdentityID string   `json:"iid"`
	SessionID  string   `json:"sid"`
	IsAdmin    bool     `json:"adm,omitempty"`
	Grants     []string `json:"grants,omitempty"`
	TokenUse   string   `json:"use"`
	jwt.RegisteredClaims
}

// Pair bundles the two tokens handed to a caller after login or refresh.
type Pair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// Manager signs and verifies token pairs. Immutable after construction.
type Manager struct {
	config Config
}

// NewManager validates cfg and returns a [Manager]. Issuer and audience
// are required so tokens minted by a different deployment never verify.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.RememberMeAccessTTL <= 0 {
		cfg.RememberMeAccessTTL = cfg.AccessTTL
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.Issuer == "" || cfg.Audience == "" {
		return nil, errors.New("issuer and audience are required")
	}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < 32 {
			return nil, errors.New("hs256 requires a key of at least 32 bytes")
		}
	case MethodEd25519:
		if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
			return nil, err
		}
		if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return &Manager{config: cfg}, nil
}

// IssuePair signs a fresh access+refresh pair for the identity/session.
func (m *Manager) IssuePair(identityID, sessionID string, isAdmin bool, grants []string, rememberMe bool) (Pair, error) {
	accessTTL := m.config.AccessTTL
	if rememberMe {
		accessTTL = m.config.RememberMeAccessTTL
	}

	access, err := m.sign(identityID, sessionID, isAdmin, grants, UseAccess, accessTTL)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := m.sign(identityID, sessionID, isAdmin, nil, UseRefresh, m.config.RefreshTTL)
	if err != nil {
		return Pair{}, err
	}

	return Pair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    accessTTL,
	}, nil
}

// ParseAccess verifies an access token and returns its claims.
func (m *Manager) ParseAccess(tokenStr string) (*Claims, error) {
	return m.parse(tokenStr, UseAccess)
}

// ParseRefresh verifies a refresh token and returns its claims.
func (m *Manager) ParseRefresh(tokenStr string) (*Claims, error) {
	return m.parse(tokenStr, UseRefresh)
}

func (m *Manager) sign(identityID, sessionID string, isAdmin bool, grants []string, use string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		IdentityID: identityID,
		SessionID:  sessionID,
		IsAdmin:    isAdmin,
		Grants:     grants,
		TokenUse:   use,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identityID,
			Issuer:    m.config.Issuer,
			Audience:  jwt.ClaimStrings{m.config.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	tok := jwt.NewWithClaims(m.method(), claims)

	key, err := m.signKey()
	if err != nil {
		return "", err
	}
	return tok.SignedString(key)
}

func (m *Manager) parse(tokenStr, expectedUse string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method().Alg()}),
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithAudience(m.config.Audience),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}

	parser := jwt.NewParser(options...)
	tok, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != m.method().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.verifyKey()
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, ErrInvalid
	}
	if claims.TokenUse != expectedUse {
		return nil, fmt.Errorf("%w: wrong token use", ErrInvalid)
	}
	if claims.IdentityID == "" || claims.SessionID == "" {
		return nil, fmt.Errorf("%w: missing identity or session", ErrInvalid)
	}

	return claims, nil
}

func (m *Manager) method() jwt.SigningMethod {
	switch m.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (m *Manager) signKey() (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodHS256:
		return m.config.PrivateKey, nil
	default:
		return parseEdPrivateKey(m.config.PrivateKey)
	}
}

func (m *Manager) verifyKey() (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodHS256:
		return m.config.PrivateKey, nil
	default:
		return parseEdPublicKey(m.config.PublicKey)
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
