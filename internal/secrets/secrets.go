// Package secrets resolves credentials referenced from the configuration.
// A value may be a literal, contain ${VAR} or ${VAR:-default} references, or
// be replaced by the contents of a file such as a container secret mount.
// Secret values are never logged.
package secrets

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tphakala/voicetrigger/internal/errors"
	"github.com/tphakala/voicetrigger/internal/logger"
)

// maxSecretFileSize limits secret file reads. Secrets are tokens and
// passwords, not documents.
const maxSecretFileSize = 64 * 1024

var (
	serviceLogger logger.Logger
	loggerOnce    sync.Once
)

// GetLogger returns the package logger.
func GetLogger() logger.Logger {
	loggerOnce.Do(func() {
		serviceLogger = logger.Global().Module("secrets")
	})
	return serviceLogger
}

// ExpandString replaces ${VAR} and ${VAR:-default} references with
// environment values. A reference without a fallback to an unset variable is
// an error.
func ExpandString(s string) (string, error) {
	if s == "" {
		return "", nil
	}

	var missing []string
	expanded := os.Expand(s, func(key string) string {
		name, fallback, hasFallback := strings.Cut(key, ":-")
		if value := os.Getenv(name); value != "" {
			return value
		}
		if hasFallback {
			return fallback
		}
		missing = append(missing, name)
		return ""
	})

	if len(missing) > 0 {
		return "", errors.Newf("missing required environment variable(s): %s", strings.Join(missing, ", ")).
			Component("secrets").
			Category(errors.CategoryConfiguration).
			Context("variables", strings.Join(missing, ",")).
			Build()
	}
	return expanded, nil
}

// ReadFile reads a secret from path. Trailing newlines are trimmed. Files
// readable by group or others are accepted with a warning.
func ReadFile(path string) (string, error) {
	if path == "" {
		return "", errors.Newf("secret file path is empty").
			Component("secrets").
			Category(errors.CategoryValidation).
			Build()
	}

	clean := filepath.Clean(path)
	info, err := os.Stat(clean)
	if err != nil {
		return "", errors.New(err).
			Component("secrets").
			Category(errors.CategoryFileIO).
			FileContext(clean, 0).
			Build()
	}
	if !info.Mode().IsRegular() {
		return "", errors.Newf("secret path is not a regular file: %s", clean).
			Component("secrets").
			Category(errors.CategoryValidation).
			FileContext(clean, 0).
			Build()
	}
	if info.Size() > maxSecretFileSize {
		return "", errors.Newf("secret file larger than %d bytes: %s", maxSecretFileSize, clean).
			Component("secrets").
			Category(errors.CategoryValidation).
			FileContext(clean, info.Size()).
			Build()
	}

	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		GetLogger().Warn("secret file is readable by group or others",
			logger.String("path", clean),
			logger.String("mode", perm.String()))
	}

	data, err := os.ReadFile(clean) //nolint:gosec // path comes from the operator's config
	if err != nil {
		return "", errors.New(err).
			Component("secrets").
			Category(errors.CategoryFileIO).
			FileContext(clean, info.Size()).
			Build()
	}

	secret := strings.TrimRight(string(data), "\r\n")
	if secret == "" {
		return "", errors.Newf("secret file is empty: %s", clean).
			Component("secrets").
			Category(errors.CategoryValidation).
			FileContext(clean, info.Size()).
			Build()
	}
	return secret, nil
}

// Resolve returns the secret from filePath when set, otherwise value with
// environment references expanded.
func Resolve(filePath, value string) (string, error) {
	if filePath != "" {
		return ReadFile(filePath)
	}
	return ExpandString(value)
}
