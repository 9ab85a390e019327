package middleware

import (
	"bidflow/internal/models"
	"bidflow/utils"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	UserIDKey = "user_id"
	identity  = "identity"
)

var (
	ErrMissingToken = errors.New("missing authorization header")
	ErrBadHeader    = errors.New("invalid authorization header format")
	ErrInvalidToken = errors.New("invalid token")
)

// Resolver maps an opaque bearer token to the caller it was issued for
type Resolver interface {
	Resolve(token string) (models.User, error)
}

// JWTResolver verifies HS256 tokens. The user id is the "sub" claim and the
// role the "role" claim, which defaults to buyer.
type JWTResolver struct {
	secret []byte
}

func NewJWTResolver(secret string) *JWTResolver {
	return &JWTResolver{secret: []byte(secret)}
}

func (r *JWTResolver) Resolve(tokenString string) (models.User, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return r.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return models.User{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return models.User{}, ErrInvalidToken
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return models.User{}, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}

	user := models.User{UserID: sub, Role: models.RoleBuyer}
	if name, ok := claims["name"].(string); ok {
		user.Username = name
	}
	if role, ok := claims["role"].(string); ok && role != "" {
		switch models.Role(role) {
		case models.RoleBuyer, models.RoleSeller, models.RoleAdmin:
			user.Role = models.Role(role)
		default:
			return models.User{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, role)
		}
	}
	return user, nil
}

// Issue signs a token for user that expires after ttl
func (r *JWTResolver) Issue(user models.User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  user.UserID,
		"role": string(user.Role),
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	if user.Username != "" {
		claims["name"] = user.Username
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
}

// RequireAuth rejects requests without a valid bearer token
func RequireAuth(resolver Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c)
		if err != nil {
			utils.JSONError(c, http.StatusUnauthorized, err, "Authentication required")
			c.Abort()
			return
		}
		if !authenticate(c, resolver, token) {
			return
		}
		c.Next()
	}
}

// OptionalAuth resolves the caller when a token is sent and lets anonymous
// requests through. A token that is sent but invalid is still rejected.
func OptionalAuth(resolver Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c)
		if errors.Is(err, ErrMissingToken) {
			c.Next()
			return
		}
		if err != nil {
			utils.JSONError(c, http.StatusUnauthorized, err, "Authentication failed")
			c.Abort()
			return
		}
		if !authenticate(c, resolver, token) {
			return
		}
		c.Next()
	}
}

// RequireRole must run after RequireAuth
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := IdentityFrom(c)
		if !ok {
			utils.JSONError(c, http.StatusUnauthorized, ErrMissingToken, "Authentication required")
			c.Abort()
			return
		}
		for _, role := range roles {
			if user.Role == role {
				c.Next()
				return
			}
		}
		utils.JSONError(c, http.StatusForbidden, fmt.Errorf("role %s is not allowed", user.Role), "Insufficient permissions")
		c.Abort()
	}
}

// IdentityFrom returns the caller resolved by RequireAuth or OptionalAuth
func IdentityFrom(c *gin.Context) (models.User, bool) {
	v, ok := c.Get(identity)
	if !ok {
		return models.User{}, false
	}
	user, ok := v.(models.User)
	return user, ok
}

func authenticate(c *gin.Context, resolver Resolver, token string) bool {
	user, err := resolver.Resolve(token)
	if err != nil {
		utils.JSONError(c, http.StatusUnauthorized, err, "Authentication failed")
		c.Abort()
		return false
	}
	c.Set(identity, user)
	c.Set(UserIDKey, user.UserID)
	return true
}

func bearerToken(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", ErrMissingToken
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
		return "", ErrBadHeader
	}
	return strings.TrimSpace(parts[1]), nil
}
