package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backend-fleettrack/internal/apperr"
	"backend-fleettrack/internal/db"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"
)

const tokenTTL = 12 * time.Hour

type Service struct {
	secret []byte
	db     db.Querier
}

type Claims struct {
	DriverID string `json:"driver_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func NewService(secret string, q db.Querier) *Service {
	return &Service{secret: []byte(secret), db: q}
}

// Login checks the stored bcrypt hash and issues a bearer token carrying
// the driver id and role.
func (s *Service) Login(ctx context.Context, driverID, password string) (TokenResponse, error) {
	if driverID == "" || password == "" {
		return TokenResponse{}, fmt.Errorf("%w: driver_id and password required", apperr.ErrInvalidInput)
	}

	var hash, role string
	err := s.db.QueryRow(ctx, `
		SELECT password_hash, role FROM drivers WHERE id=$1
	`, driverID).Scan(&hash, &role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TokenResponse{}, fmt.Errorf("%w: driver %s", apperr.ErrNotFound, driverID)
		}
		return TokenResponse{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return TokenResponse{}, errors.New("invalid credentials")
	}

	token, err := s.signToken(driverID, role)
	if err != nil {
		return TokenResponse{}, err
	}
	return TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(tokenTTL.Seconds()),
	}, nil
}

func (s *Service) signToken(driverID, role string) (string, error) {
	claims := Claims{
		DriverID: driverID,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}
