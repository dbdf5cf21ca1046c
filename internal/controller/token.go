package controller

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"rapidphoto/internal/database"
	"rapidphoto/internal/model"
)

// Role constants
const (
	RoleAdmin   = "ADMIN"   // Can manage tokens and trigger operational endpoints
	RoleService = "SERVICE" // Can create and drive upload jobs
)

// TokenController defines the contract for token operations
type TokenController interface {
	// GenerateToken creates a new token with the specified parameters
	GenerateToken(context.Context, string, string, *time.Time) (string, *model.APIToken, error)

	// VerifyToken checks if a token is valid and returns its details
	VerifyToken(context.Context, string) (*model.APIToken, error)

	// ListTokens retrieves all tokens from the database
	ListTokens(context.Context) ([]model.APIToken, error)

	// RevokeToken disables a token by ID
	RevokeToken(context.Context, string) error

	// GetTokenByID retrieves a token by its ID
	GetTokenByID(context.Context, string) (*model.APIToken, error)

	// GenerateInitialAdminToken creates the first admin token in the system
	GenerateInitialAdminToken(context.Context, string) (string, error)
}

type tokenController struct {
	db database.TokenDatabase
}

// NewToken creates a new token controller
func NewToken(db database.TokenDatabase) TokenController {
	return &tokenController{
		db: db,
	}
}

func hashToken(tokenString string) string {
	hasher := sha256.New()
	hasher.Write([]byte(tokenString))
	return hex.EncodeToString(hasher.Sum(nil))
}

// GenerateToken creates a new secure token
func (s *tokenController) GenerateToken(ctx context.Context, name string, role string, expiresAt *time.Time) (string, *model.APIToken, error) {
	if role != RoleAdmin && role != RoleService {
		return "", nil, model.NewValidationError(fmt.Sprintf("unknown role: %s", role))
	}
	if strings.TrimSpace(name) == "" {
		return "", nil, model.NewValidationError("token name is required")
	}

	// Try up to 3 times in case of a hash collision on the unique index
	for attempts := 0; attempts < 3; attempts++ {
		rawToken := make([]byte, 32)
		if _, err := rand.Read(rawToken); err != nil {
			return "", nil, fmt.Errorf("failed to generate random token: %w", err)
		}

		tokenString := hex.EncodeToString(rawToken)

		now := time.Now()
		token := &model.APIToken{
			ID:        primitive.NewObjectID(),
			TokenHash: hashToken(tokenString),
			Name:      name,
			Role:      role,
			CreatedAt: now,
			LastUsed:  now,
			Revoked:   false,
		}

		if expiresAt != nil {
			token.ExpiresAt = *expiresAt
		}

		if err := s.db.CreateToken(ctx, token); err != nil {
			if database.IsDuplicateToken(err) {
				log.Warn().Msg("Token hash collision detected, retrying generation")
				continue
			}
			return "", nil, err
		}

		return tokenString, token, nil
	}

	return "", nil, fmt.Errorf("failed to generate a unique token after multiple attempts")
}

// VerifyToken verifies if a token is valid
func (s *tokenController) VerifyToken(ctx context.Context, tokenString string) (*model.APIToken, error) {
	return s.db.VerifyToken(ctx, hashToken(tokenString))
}

// ListTokens lists all tokens
func (s *tokenController) ListTokens(ctx context.Context) ([]model.APIToken, error) {
	return s.db.ListTokens(ctx)
}

// RevokeToken revokes a token by ID
func (s *tokenController) RevokeToken(ctx context.Context, tokenID string) error {
	id, err := primitive.ObjectIDFromHex(tokenID)
	if err != nil {
		return model.NewValidationError("invalid token id")
	}

	return s.db.RevokeToken(ctx, id)
}

// GetTokenByID gets a token by ID
func (s *tokenController) GetTokenByID(ctx context.Context, tokenID string) (*model.APIToken, error) {
	id, err := primitive.ObjectIDFromHex(tokenID)
	if err != nil {
		return nil, model.NewValidationError("invalid token id")
	}

	return s.db.GetTokenByID(ctx, id)
}

// GenerateInitialAdminToken creates the first admin token in the system.
// Used during system initialization only.
func (s *tokenController) GenerateInitialAdminToken(ctx context.Context, appName string) (string, error) {
	expiresAt := time.Now().AddDate(1, 0, 0)

	tokenString, token, err := s.GenerateToken(ctx, fmt.Sprintf("%s - Admin Token", appName), RoleAdmin, &expiresAt)
	if err != nil {
		return "", fmt.Errorf("failed to generate initial admin token: %w", err)
	}

	log.Info().
		Str("tokenID", token.ID.Hex()).
		Str("name", token.Name).
		Time("expiresAt", token.ExpiresAt).
		Msg("Initial admin token created")

	return tokenString, nil
}
