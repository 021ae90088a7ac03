// Package services contains the catalog's business logic. Every exported
// operation checks the caller's permissions first, runs its database work
// through the repository manager and hands released artifacts to the
// retention coordinator after commit.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/keycatalog/internal/common"
	"github.com/dmitrijs2005/keycatalog/internal/server/auth"
	"github.com/dmitrijs2005/keycatalog/internal/server/config"
	"github.com/dmitrijs2005/keycatalog/internal/server/models"
	"github.com/dmitrijs2005/keycatalog/internal/server/repositories/repomanager"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest password Register accepts.
const MinPasswordLength = 6

// dummyHash is compared against when the nickname is unknown, so that a
// failed login takes the same time either way.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("keycatalog"), bcrypt.DefaultCost)

// UserService handles registration, login and token verification.
type UserService struct {
	db                          *sql.DB
	repomanager                 repomanager.RepositoryManager
	jwtSecret                   []byte
	accessTokenValidityDuration time.Duration
}

// NewUserService constructs a UserService using repositories and server config.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *UserService {
	return &UserService{
		db:                          db,
		repomanager:                 m,
		jwtSecret:                   []byte(cfg.SecretKey),
		accessTokenValidityDuration: cfg.AccessTokenValidityDuration,
	}
}

// HashPassword returns the bcrypt hash stored for a password.
func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", fmt.Errorf("%w: password must have at least %d characters", common.ErrorValidation, MinPasswordLength)
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// NormalizeNickname trims and lower-cases a nickname.
func NormalizeNickname(nickname string) (string, error) {
	n := strings.ToLower(strings.TrimSpace(nickname))
	if n == "" {
		return "", fmt.Errorf("%w: nickname is required", common.ErrorValidation)
	}
	return n, nil
}

// CreateUser stores a new user without any permission check. It backs
// Register and the administration tool that bootstraps the first account.
func (s *UserService) CreateUser(ctx context.Context, nickname, password string, role auth.Permissions) (*models.User, error) {
	nick, err := NormalizeNickname(nickname)
	if err != nil {
		return nil, err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	u, err := s.repomanager.Users(s.db).Create(ctx, &models.User{Nickname: nick, PasswordHash: hash, Role: uint32(role)})
	if err != nil {
		return nil, fmt.Errorf("error creating user: %w", err)
	}
	return u, nil
}

// Register creates a user with the named roles, or the default role when
// none are given, and returns it together with an access token.
func (s *UserService) Register(ctx context.Context, nickname, password string, roles []string) (*models.User, string, error) {
	if err := auth.Requires(ctx, auth.Granters...); err != nil {
		return nil, "", err
	}
	role := auth.DefaultRole
	if len(roles) > 0 {
		var err error
		if role, err = auth.ParsePermissions(roles); err != nil {
			return nil, "", err
		}
	}

	u, err := s.CreateUser(ctx, nickname, password, role)
	if err != nil {
		return nil, "", err
	}
	token, err := s.generateAccessToken(u)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

// Login verifies the password and returns a new access token. Unknown users
// and wrong passwords are both common.ErrorUnauthorized.
func (s *UserService) Login(ctx context.Context, nickname, password string) (string, error) {
	nick, err := NormalizeNickname(nickname)
	if err != nil {
		return "", common.ErrorUnauthorized
	}

	user, err := s.repomanager.Users(s.db).GetByNickname(ctx, nick)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return "", common.ErrorUnauthorized
		}
		return "", common.ErrorInternal
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", common.ErrorUnauthorized
	}
	return s.generateAccessToken(user)
}

// Authenticate verifies a token and reloads its user. A token whose role or
// nickname no longer match the stored user is rejected.
func (s *UserService) Authenticate(ctx context.Context, token string) (auth.Principal, error) {
	p, err := auth.ParseToken(token, s.jwtSecret)
	if err != nil {
		return auth.Principal{}, err
	}

	user, err := s.repomanager.Users(s.db).GetByID(ctx, p.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return auth.Principal{}, common.ErrInvalidToken
		}
		return auth.Principal{}, fmt.Errorf("error loading user: %w", err)
	}
	if user.Nickname != p.Nickname || auth.Permissions(user.Role) != p.Role {
		return auth.Principal{}, common.ErrInvalidToken
	}
	return p, nil
}

// Me returns the calling user.
func (s *UserService) Me(ctx context.Context) (*models.User, error) {
	if err := auth.Requires(ctx, auth.AnyRole...); err != nil {
		return nil, err
	}
	p, _ := auth.PrincipalFromContext(ctx)
	return s.repomanager.Users(s.db).GetByID(ctx, p.UserID)
}

// List returns every user.
func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	if err := auth.Requires(ctx, auth.AnyRole...); err != nil {
		return nil, err
	}
	return s.repomanager.Users(s.db).List(ctx)
}

// --- helpers below ---

func (s *UserService) generateAccessToken(u *models.User) (string, error) {
	p := auth.Principal{UserID: u.ID, Nickname: u.Nickname, Role: auth.Permissions(u.Role)}
	token, err := auth.GenerateToken(p, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return "", common.ErrorInternal
	}
	return token, nil
}
