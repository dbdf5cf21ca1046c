package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// APIToken represents a service authentication token
type APIToken struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	TokenHash string             `bson:"token_hash" json:"-"`  // Hashed token value stored in DB
	Name      string             `bson:"name" json:"name"`     // Name/description of the token
	Role      string             `bson:"role" json:"role"`     // Either ADMIN or SERVICE
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	ExpiresAt time.Time          `bson:"expires_at,omitempty" json:"expires_at,omitempty"` // Optional expiration
	LastUsed  time.Time          `bson:"last_used,omitempty" json:"last_used,omitempty"`
	Revoked   bool               `bson:"revoked" json:"revoked"` // Whether the token has been revoked
}

// PhotoSpec describes one photo in a batch creation request
type PhotoSpec struct {
	Filename    string `json:"filename"`
	FileSize    int64  `json:"fileSize"`
	ContentType string `json:"contentType"`
}
