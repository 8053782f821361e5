// Package shared
package shared

import (
	"fmt"
	"net/http"
	"os"
	"strings"
)

// SafeEnv returns the value of env, or an error naming it when unset.
func SafeEnv(env string) (string, error) {
	res, present := os.LookupEnv(env)
	if !present {
		return "", fmt.Errorf("missing environment variable %s", env)
	}
	return res, nil
}

// ExtractAPIKey reads a bearer token of APIKeyLength from the Authorization header.
func ExtractAPIKey(header http.Header) (string, error) {
	auth := header.Get("Authorization")
	if auth == "" {
		return "", ErrMissingAuth
	}
	scheme, apiKey, ok := strings.Cut(auth, " ")
	switch {
	case !ok || !strings.EqualFold(scheme, "bearer") || strings.Contains(apiKey, " "):
		return "", ErrInvalidFormat
	case len(apiKey) != APIKeyLength:
		return "", ErrInvalidKeyLen
	}
	return apiKey, nil
}
