package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"sudooom.im.chatroom/internal/model"
	"sudooom.im.chatroom/internal/repository"
	appErrors "sudooom.im.chatroom/pkg/errors"
	"sudooom.im.chatroom/pkg/jwt"
)

// TokenStore 会话存储
type TokenStore interface {
	SaveToken(ctx context.Context, info *repository.SessionInfo, accessToken string, expiration time.Duration) error
	GetSession(ctx context.Context, accessToken string) (*repository.SessionInfo, error)
	DeleteToken(ctx context.Context, userID, platform, accessToken string) error
}

// RegisterRequest 注册请求
type RegisterRequest struct {
	Email       string `json:"email" binding:"required,email,max=254"`
	Password    string `json:"password" binding:"required,min=6,max=72"`
	DisplayName string `json:"displayName" binding:"required,min=1,max=50"`
}

// RegisterResponse 注册响应
type RegisterResponse struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// LoginRequest 登录请求
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Platform string `json:"platform"`
}

// LoginResponse 登录响应
type LoginResponse struct {
	UserID       string `json:"userId"`
	Username     string `json:"username"`
	SessionID    string `json:"sessionId"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresAt    int64  `json:"expiresAt"`
}

// Session 已认证的会话
type Session struct {
	UserID    string
	SessionID string
	Platform  jwt.Platform
	StartedAt time.Time
	Token     string
}

// AuthService 认证服务
type AuthService struct {
	users      UserStore
	tokens     TokenStore
	jwtService *jwt.Service
	ids        IDGenerator
	opts       Options
	logger     *slog.Logger
}

// NewAuthService 创建认证服务
func NewAuthService(users UserStore, tokens TokenStore, jwtService *jwt.Service, ids IDGenerator, opts Options) *AuthService {
	return &AuthService{
		users:      users,
		tokens:     tokens,
		jwtService: jwtService,
		ids:        ids,
		opts:       opts,
		logger:     slog.Default().With("service", "auth"),
	}
}

// Register 用户注册
// 用户名默认取显示名，先查询再插入，唯一索引兜底并发注册
func (s *AuthService) Register(ctx context.Context, req *RegisterRequest) (*RegisterResponse, error) {
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	username := strings.TrimSpace(req.DisplayName)
	email := strings.TrimSpace(req.Email)
	if username == "" || email == "" || req.Password == "" {
		return nil, appErrors.ErrInvalidParams
	}

	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		return nil, appErrors.ErrUsernameExists
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, mapStoreError(err)
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, appErrors.ErrEmailExists
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, mapStoreError(err)
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.ErrServerError.Wrap(err)
	}

	user := &model.User{
		ID:           s.ids.NextID(),
		Username:     username,
		DisplayName:  username,
		Email:        email,
		PasswordHash: string(passwordHash),
		Friends:      []string{},
		Groups:       []string{},
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, mapStoreError(err)
	}

	s.logger.Info("User registered", "userId", user.ID, "username", user.Username)
	return &RegisterResponse{UserID: user.ID, Username: user.Username}, nil
}

// Login 用户登录
func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(req.Email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, appErrors.ErrInvalidCredentials
		}
		return nil, mapStoreError(err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.ErrInvalidCredentials
	}

	return s.issue(ctx, user, uuid.NewString(), jwt.ParsePlatform(req.Platform))
}

// RefreshToken 刷新 Token，沿用原会话 ID
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*LoginResponse, error) {
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	claims, err := s.jwtService.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, tokenError(err)
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, appErrors.ErrTokenInvalid
		}
		return nil, mapStoreError(err)
	}

	return s.issue(ctx, user, claims.SessionID, claims.Platform)
}

// issue 生成 Token 对并登记会话
func (s *AuthService) issue(ctx context.Context, user *model.User, sessionID string, platform jwt.Platform) (*LoginResponse, error) {
	pair, err := s.jwtService.GenerateTokenPair(user.ID, sessionID, platform)
	if err != nil {
		return nil, appErrors.ErrServerError.Wrap(err)
	}

	info := &repository.SessionInfo{
		UserID:    user.ID,
		SessionID: sessionID,
		Platform:  string(platform),
		StartedAt: time.Now(),
	}
	if err := s.tokens.SaveToken(ctx, info, pair.AccessToken, s.jwtService.AccessExpire()); err != nil {
		return nil, appErrors.ErrUnavailable.Wrap(err)
	}

	s.logger.Info("Session issued", "userId", user.ID, "sessionId", sessionID, "platform", platform)
	return &LoginResponse{
		UserID:       user.ID,
		Username:     user.Username,
		SessionID:    sessionID,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt,
	}, nil
}

// Authenticate 校验 Access Token 并确认会话未被注销
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*Session, error) {
	claims, err := s.jwtService.ValidateAccessToken(accessToken)
	if err != nil {
		return nil, tokenError(err)
	}

	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	info, err := s.tokens.GetSession(ctx, accessToken)
	if err != nil {
		return nil, appErrors.ErrUnavailable.Wrap(err)
	}
	if info == nil || info.UserID != claims.UserID {
		return nil, appErrors.ErrTokenInvalid
	}

	return &Session{
		UserID:    claims.UserID,
		SessionID: claims.SessionID,
		Platform:  claims.Platform,
		StartedAt: info.StartedAt,
		Token:     accessToken,
	}, nil
}

// Logout 注销会话
func (s *AuthService) Logout(ctx context.Context, session *Session) error {
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	if err := s.tokens.DeleteToken(ctx, session.UserID, string(session.Platform), session.Token); err != nil {
		return appErrors.ErrUnavailable.Wrap(err)
	}
	s.logger.Info("Session closed", "userId", session.UserID, "sessionId", session.SessionID)
	return nil
}

func tokenError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return appErrors.ErrTokenExpired
	}
	return appErrors.ErrTokenInvalid
}
