package domain

import (
	"context"
	"errors"
)

type Service interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error

	Theme(ctx context.Context) (Theme, error)
	// SetTheme stores the theme and bumps the version.
	SetTheme(ctx context.Context, name string) (Theme, error)
}

var (
	ErrNotFound   = errors.New("setting_not_found")
	ErrInvalidKey = errors.New("invalid_setting_key")
)
