package domain

import "time"

// Setting is one key/value configuration row. Values are stored as plain
// strings; callers interpret them.
type Setting struct {
	Key       string    `gorm:"primaryKey;type:text" json:"key"`
	Value     string    `gorm:"type:text;not null" json:"value"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Setting) TableName() string { return "settings" }

const (
	KeyTheme        = "theme"
	KeyThemeVersion = "theme_version"

	DefaultTheme = "standard"
)

// Theme is what the kiosk frontend polls. Version increments on every theme
// change so clients know when to reload.
type Theme struct {
	Name    string `json:"name"`
	Version int64  `json:"version"`
}
