// Package prefs persists operator preferences next to the history.
package prefs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/oicur0t/forwardog/internal/storage"
	"go.uber.org/zap"
)

// ThemeKey names the persisted theme record
const ThemeKey = "forwardog_theme"

// Theme is the selected presentation theme
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// ParseTheme accepts "light" or "dark"
func ParseTheme(s string) (Theme, error) {
	switch t := Theme(strings.ToLower(strings.TrimSpace(s))); t {
	case ThemeLight, ThemeDark:
		return t, nil
	}
	return "", fmt.Errorf("unknown theme %q (want light or dark)", s)
}

// LoadTheme returns the stored theme, or fallback when nothing valid is stored
func LoadTheme(ctx context.Context, kv storage.KV, fallback Theme, logger *zap.Logger) Theme {
	data, err := kv.Get(ctx, ThemeKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			logger.Warn("Failed to read theme", zap.Error(err))
		}
		return fallback
	}

	theme, err := ParseTheme(string(data))
	if err != nil {
		logger.Warn("Stored theme is invalid", zap.String("theme", string(data)))
		return fallback
	}
	return theme
}

// SaveTheme persists the selected theme
func SaveTheme(ctx context.Context, kv storage.KV, theme Theme) error {
	if _, err := ParseTheme(string(theme)); err != nil {
		return err
	}
	if err := kv.Set(ctx, ThemeKey, []byte(theme)); err != nil {
		return fmt.Errorf("failed to save theme: %w", err)
	}
	return nil
}
