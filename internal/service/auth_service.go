package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/vesper/internal/config"
	"github.com/mbeoliero/vesper/internal/entity"
	"github.com/mbeoliero/vesper/internal/repository"
	"github.com/mbeoliero/vesper/pkg/errcode"
	"github.com/mbeoliero/vesper/pkg/jwt"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

// AuthService handles registration, login and token validation. One active
// session per user and platform: logging in again on the same platform
// replaces the earlier token.
type AuthService struct {
	userRepo   *repository.UserRepo
	cfg        *config.Config
	tokenStore *jwt.TokenStore
}

// NewAuthService creates a new AuthService
func NewAuthService(userRepo *repository.UserRepo, cfg *config.Config, rdb *redis.Client) *AuthService {
	return &AuthService{
		userRepo:   userRepo,
		cfg:        cfg,
		tokenStore: jwt.NewTokenStore(rdb, cfg.JWT.ExpireHours),
	}
}

// RegisterRequest represents user registration request. PublicKey is the
// base64 X25519 public half the client publishes to the key directory.
type RegisterRequest struct {
	UserId    string `json:"user_id"`
	Nickname  string `json:"nickname"`
	Password  string `json:"password"`
	Avatar    string `json:"avatar,omitempty"`
	PublicKey string `json:"public_key,omitempty"`
}

// LoginRequest represents user login request
type LoginRequest struct {
	UserId     string `json:"user_id"`
	Password   string `json:"password"`
	PlatformId int    `json:"platform_id"`
}

// LoginResponse represents user login response
type LoginResponse struct {
	Token    string           `json:"token"`
	UserInfo *entity.UserInfo `json:"user_info"`
}

// Register creates a user with a bcrypt-hashed password. A missing user id
// is filled with a generated one.
func (s *AuthService) Register(ctx context.Context, req *RegisterRequest) (*entity.UserInfo, error) {
	userId := req.UserId
	if userId == "" {
		userId = uuid.New().String()
	}

	exists, err := s.userRepo.Exists(ctx, userId)
	if err != nil {
		log.CtxError(ctx, "check user exists failed: %v", err)
		return nil, errcode.ErrInternalServer
	}
	if exists {
		return nil, errcode.ErrUserExists
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.CtxError(ctx, "hash password failed: %v", err)
		return nil, errcode.ErrInternalServer
	}

	user := &entity.User{
		Id:        userId,
		Nickname:  req.Nickname,
		Password:  string(hashedPassword),
		Avatar:    req.Avatar,
		PublicKey: req.PublicKey,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		log.CtxError(ctx, "create user failed: %v", err)
		return nil, errcode.ErrInternalServer
	}

	log.CtxInfo(ctx, "user registered: user_id=%s", userId)
	return user.ToUserInfo(), nil
}

// Login verifies the password, issues a token and installs it as the
// platform's active session.
func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	user, err := s.userRepo.GetById(ctx, req.UserId)
	if err != nil {
		log.CtxDebug(ctx, "user not found: user_id=%s, error=%v", req.UserId, err)
		return nil, errcode.ErrUserNotFound
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, errcode.ErrPasswordWrong
	}

	token, err := jwt.GenerateToken(user.Id, req.PlatformId, s.cfg.JWT.Secret, s.cfg.JWT.ExpireHours)
	if err != nil {
		log.CtxError(ctx, "generate token failed: %v", err)
		return nil, errcode.ErrInternalServer
	}

	replaced, err := s.tokenStore.Active(ctx, user.Id, req.PlatformId)
	if err != nil {
		log.CtxWarn(ctx, "read active token failed: %v", err)
	}
	if err := s.tokenStore.Save(ctx, user.Id, req.PlatformId, token); err != nil {
		log.CtxError(ctx, "save token failed: %v", err)
		return nil, errcode.ErrInternalServer
	}
	if replaced != "" && replaced != token {
		log.CtxInfo(ctx, "replaced active session: user_id=%s, platform_id=%d", user.Id, req.PlatformId)
	}

	log.CtxInfo(ctx, "user logged in: user_id=%s, platform_id=%d", user.Id, req.PlatformId)
	return &LoginResponse{
		Token:    token,
		UserInfo: user.ToUserInfo(),
	}, nil
}

// ValidateToken verifies the signature and checks the token is still the
// platform's active session. When Redis is unreachable the signature check
// alone decides, so auth degrades instead of failing closed.
func (s *AuthService) ValidateToken(ctx context.Context, token string) (*jwt.Claims, error) {
	claims, err := jwt.ParseToken(token, s.cfg.JWT.Secret)
	if err != nil {
		return nil, err
	}

	active, err := s.tokenStore.Matches(ctx, claims.UserId, claims.PlatformId, token)
	if err != nil {
		log.CtxWarn(ctx, "check active token failed: %v", err)
		return claims, nil
	}
	if !active {
		return nil, errcode.ErrTokenInvalid
	}
	return claims, nil
}

// Logout revokes the platform's active session
func (s *AuthService) Logout(ctx context.Context, userId string, platformId int, token string) error {
	active, err := s.tokenStore.Matches(ctx, userId, platformId, token)
	if err != nil {
		log.CtxError(ctx, "check active token failed: %v", err)
		return errcode.ErrInternalServer
	}
	if !active {
		return nil
	}

	if err := s.tokenStore.Revoke(ctx, userId, platformId); err != nil {
		log.CtxError(ctx, "revoke token failed: %v", err)
		return errcode.ErrInternalServer
	}
	log.CtxInfo(ctx, "user logged out: user_id=%s, platform_id=%d", userId, platformId)
	return nil
}
