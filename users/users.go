package users

import (
	"fmt"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// RoleType represents a user's role within the marketplace
type RoleType string

const (
	RoleStudent RoleType = "student" // Can browse and enroll in courses
	RoleCreator RoleType = "creator" // Can publish and manage courses
	RoleAdmin   RoleType = "admin"   // Can manage users and moderate content
)

// User is the identity-provider-owned principal. This subsystem only ever
// reads it; creation and credential management belong to the provider.
type User struct {
	ID           string    `json:"id,omitempty"`          // Unique identifier for the user
	Email        string    `json:"email,omitempty"`       // User's email address
	Name         string    `json:"name,omitempty"`        // Display name
	PasswordHash string    `json:"-"`                     // Hashed password - never serialize
	Role         RoleType  `json:"role,omitempty"`        // student, creator or admin
	DateJoined   time.Time `json:"date_joined,omitempty"` // When the user registered
	LastLogin    time.Time `json:"last_login,omitempty"`  // Last successful login
	Blocked      bool      `json:"blocked,omitempty"`     // Blocked users cannot log in
}

// ValidRole reports whether r is one of the closed set of marketplace roles.
func ValidRole(r RoleType) bool {
	switch r {
	case RoleStudent, RoleCreator, RoleAdmin:
		return true
	}
	return false
}

// ValidatePasswordStrength checks if a password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}
	return nil
}

// HashPassword hashes a plaintext password with bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("HashPassword: %w", err)
	}
	return string(hash), nil
}

// CheckPasswordHash compares a plaintext password against a bcrypt hash.
func CheckPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
