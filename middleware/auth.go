package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/LovationAdmin/aldia-api/utils"
)

const userIDKey = "user_id"

// Claims are the fields aldia-api reads from tokens issued by the auth
// service. The subject is the owner id.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

var ErrMissingToken = errors.New("missing bearer token")

// TokenVerifier checks HS256 tokens signed with the shared secret.
type TokenVerifier struct {
	secret []byte
}

func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

// Verify parses tokenString and returns its claims when the signature and
// expiry are valid and a subject is present.
func (v *TokenVerifier) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// bearerToken reads the Authorization header, falling back to the token query
// parameter used by browser websocket clients.
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return c.Query("token")
}

// AuthMiddleware rejects requests without a valid token and stores the owner
// id for GetUserID.
func AuthMiddleware(verifier *TokenVerifier, logger *zap.Logger) gin.HandlerFunc {
	logger = logger.Named("auth")
	return func(c *gin.Context) {
		claims, err := verifier.Verify(bearerToken(c))
		if err != nil {
			logger.Debug("Rejected request", zap.String("path", c.Request.URL.Path), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Set(userIDKey, claims.Subject)
		logger.Debug("Authenticated", utils.OwnerField(claims.Subject))
		c.Next()
	}
}

// GetUserID returns the authenticated owner id, or "" outside AuthMiddleware.
func GetUserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}
