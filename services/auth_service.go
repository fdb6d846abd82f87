package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/markwoz/kart-league/models"
	"github.com/markwoz/kart-league/repositories"
)

const (
	minPasswordLength = 8
	tokenLifetime     = 24 * time.Hour
)

type Claims struct {
	PlayerID int         `json:"player_id"`
	Role     models.Role `json:"role"`
	jwt.RegisteredClaims
}

type AuthService interface {
	Register(ctx context.Context, nickname, email, password string) (*models.Player, error)
	Login(ctx context.Context, email, password string) (string, *models.Player, error)
	ParseToken(tokenString string) (*Claims, error)
}

type authService struct {
	playerRepo repositories.PlayerRepository
	jwtSecret  []byte
}

func NewAuthService(playerRepo repositories.PlayerRepository, jwtSecret string) AuthService {
	return &authService{playerRepo: playerRepo, jwtSecret: []byte(jwtSecret)}
}

func (s *authService) Register(ctx context.Context, nickname, email, password string) (*models.Player, error) {
	nickname = strings.TrimSpace(nickname)
	email = strings.ToLower(strings.TrimSpace(email))
	if nickname == "" {
		return nil, ErrNicknameRequired
	}
	if len(password) < minPasswordLength {
		return nil, ErrPasswordTooShort
	}
	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: invalid email", ErrValidationFailed)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	player := &models.Player{
		Nickname:     nickname,
		Email:        email,
		PasswordHash: string(hash),
		Role:         models.RolePlayer,
	}
	if err := s.playerRepo.Create(ctx, player); err != nil {
		if errors.Is(err, repositories.ErrPlayerEmailConflict) {
			return nil, ErrAuthEmailTaken
		}
		if errors.Is(err, repositories.ErrPlayerNicknameConflict) {
			return nil, fmt.Errorf("%w: nickname is taken", ErrValidationFailed)
		}
		return nil, fmt.Errorf("failed to create player: %w", err)
	}
	return player, nil
}

func (s *authService) Login(ctx context.Context, email, password string) (string, *models.Player, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	player, err := s.playerRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repositories.ErrPlayerNotFound) {
			return "", nil, ErrAuthInvalidCredentials
		}
		return "", nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(player.PasswordHash), []byte(password)) != nil {
		return "", nil, ErrAuthInvalidCredentials
	}

	now := time.Now()
	claims := Claims{
		PlayerID: player.ID,
		Role:     player.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", player.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenLifetime)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, player, nil
}

func (s *authService) ParseToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrAuthInvalidCredentials
	}
	return claims, nil
}
