// ============================================================================
// SAFE LOGGING - hides personal data in production logs
// ============================================================================

package utils

import (
	"os"
	"regexp"

	"go.uber.org/zap"
)

// IsProduction turns masking on. main sets it from the loaded config; the
// environment is only the default.
var IsProduction = os.Getenv("GIN_MODE") == "release" ||
	os.Getenv("ENVIRONMENT") == "production"

var (
	emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	uuidRegex  = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
)

// MaskString hides emails and shortens UUIDs inside free text.
func MaskString(input string) string {
	if !IsProduction {
		return input
	}
	result := emailRegex.ReplaceAllString(input, "***@***.***")
	return uuidRegex.ReplaceAllStringFunc(result, func(id string) string {
		return id[:8] + "..."
	})
}

// MaskID keeps the first 8 characters of an id.
func MaskID(id string) string {
	if !IsProduction {
		return id
	}
	if len(id) <= 8 {
		return "***"
	}
	return id[:8] + "..."
}

// MaskAccount keeps only the last 4 characters of a utility account number.
func MaskAccount(account string) string {
	if !IsProduction {
		return account
	}
	return RedactAccount(account)
}

// RedactAccount masks an account number regardless of environment, for text
// that leaves the service.
func RedactAccount(account string) string {
	if len(account) <= 4 {
		return "****"
	}
	return "****" + account[len(account)-4:]
}

func MaskEmail(email string) string {
	if !IsProduction {
		return email
	}
	return "***@***.***"
}

// ============================================================================
// ZAP FIELDS
// ============================================================================

func AccountField(account string) zap.Field {
	return zap.String("account", MaskAccount(account))
}

func OwnerField(ownerID string) zap.Field {
	return zap.String("owner_id", MaskID(ownerID))
}

func EmailField(email string) zap.Field {
	return zap.String("email", MaskEmail(email))
}
