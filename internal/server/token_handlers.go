package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rapidphoto/internal/controller"
	"rapidphoto/internal/model"
)

// TokenNameRequest represents the request for creating a token with a custom name
type TokenNameRequest struct {
	Name string `json:"name" binding:"required"`
	Role string `json:"role"`
}

// TokenResponse represents the response for token operations
type TokenResponse struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Role      string     `json:"role"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	LastUsed  time.Time  `json:"lastUsed"`
	Revoked   bool       `json:"revoked"`
}

// TokenWithStringResponse includes the actual token string for creation operations
type TokenWithStringResponse struct {
	Token string        `json:"token"`
	Info  TokenResponse `json:"info"`
}

func toTokenResponse(token *model.APIToken) TokenResponse {
	var expiresAt *time.Time
	if !token.ExpiresAt.IsZero() {
		expiresAt = &token.ExpiresAt
	}

	return TokenResponse{
		ID:        token.ID.Hex(),
		Name:      token.Name,
		Role:      token.Role,
		CreatedAt: token.CreatedAt,
		ExpiresAt: expiresAt,
		LastUsed:  token.LastUsed,
		Revoked:   token.Revoked,
	}
}

// CreateTokenHandler creates a new token with the provided name
func (s *Server) CreateTokenHandler(c *gin.Context) {
	var req TokenNameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	role := req.Role
	if role == "" {
		role = controller.RoleService
	}

	tokenString, token, err := s.tc.GenerateToken(c.Request.Context(), req.Name, role, nil)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, TokenWithStringResponse{
		Token: tokenString,
		Info:  toTokenResponse(token),
	})
}

// ListTokensHandler returns a list of all tokens
func (s *Server) ListTokensHandler(c *gin.Context) {
	tokens, err := s.tc.ListTokens(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list tokens: " + err.Error()})
		return
	}

	response := make([]TokenResponse, 0, len(tokens))
	for i := range tokens {
		response = append(response, toTokenResponse(&tokens[i]))
	}

	c.JSON(http.StatusOK, response)
}

// GetTokenHandler returns a specific token by ID
func (s *Server) GetTokenHandler(c *gin.Context) {
	token, err := s.tc.GetTokenByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, toTokenResponse(token))
}

// RevokeTokenHandler revokes a token
func (s *Server) RevokeTokenHandler(c *gin.Context) {
	err := s.tc.RevokeToken(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Token revoked successfully"})
}
