package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenInvalid = errors.New("token is invalid")
	ErrTokenExpired = errors.New("token has expired")
)

// TokenType Token 类型
type TokenType string

const (
	AccessToken  TokenType = "access"
	RefreshToken TokenType = "refresh"
)

// Platform 登录端
type Platform string

const (
	PlatformUnknown Platform = "unknown"
	PlatformWeb     Platform = "web"
	PlatformMobile  Platform = "mobile"
	PlatformDesktop Platform = "desktop"
)

// ParsePlatform 解析登录端，未知取值归为 unknown
func ParsePlatform(s string) Platform {
	switch p := Platform(s); p {
	case PlatformWeb, PlatformMobile, PlatformDesktop:
		return p
	default:
		return PlatformUnknown
	}
}

// Claims 会话声明，同一会话的 access/refresh 共享 SessionID
type Claims struct {
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	Platform  Platform  `json:"platform"`
	TokenType TokenType `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenPair 登录或刷新后下发的 Token 对，ExpiresAt 为 access 过期的 Unix 秒
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
}

// Service 签发与校验会话 Token
type Service struct {
	key    []byte
	issuer string
	ttl    map[TokenType]time.Duration
	parser *jwt.Parser
}

// NewService 创建 JWT 服务，issuer 取应用名
func NewService(secretKey, issuer string, accessExpire, refreshExpire time.Duration) *Service {
	return &Service{
		key:    []byte(secretKey),
		issuer: issuer,
		ttl: map[TokenType]time.Duration{
			AccessToken:  accessExpire,
			RefreshToken: refreshExpire,
		},
		parser: jwt.NewParser(
			jwt.WithIssuer(issuer),
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		),
	}
}

// GenerateTokenPair 为会话签发 access 与 refresh
func (s *Service) GenerateTokenPair(userID, sessionID string, platform Platform) (*TokenPair, error) {
	base := Claims{UserID: userID, SessionID: sessionID, Platform: platform}
	now := time.Now()

	access, accessExp, err := s.sign(base, AccessToken, now)
	if err != nil {
		return nil, err
	}
	refresh, _, err := s.sign(base, RefreshToken, now)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresAt: accessExp.Unix()}, nil
}

func (s *Service) sign(c Claims, typ TokenType, now time.Time) (string, time.Time, error) {
	exp := now.Add(s.ttl[typ])
	c.TokenType = typ
	c.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   c.UserID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &c).SignedString(s.key)
	return signed, exp, err
}

// ValidateAccessToken 校验 Access Token
func (s *Service) ValidateAccessToken(tokenString string) (*Claims, error) {
	return s.verify(tokenString, AccessToken)
}

// ValidateRefreshToken 校验 Refresh Token
func (s *Service) ValidateRefreshToken(tokenString string) (*Claims, error) {
	return s.verify(tokenString, RefreshToken)
}

// AccessExpire Access Token 有效期，用作会话在 Redis 中的 TTL
func (s *Service) AccessExpire() time.Duration {
	return s.ttl[AccessToken]
}

func (s *Service) verify(tokenString string, want TokenType) (*Claims, error) {
	claims := &Claims{}
	_, err := s.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	case err != nil:
		return nil, ErrTokenInvalid
	case claims.TokenType != want || claims.UserID == "":
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
