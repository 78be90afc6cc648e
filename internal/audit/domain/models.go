package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// AccessLog records one admin action: logins (successful or not), logouts
// and destructive operations in the admin area.
type AccessLog struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Username  string       `gorm:"type:text;not null;index" json:"username"`
	Action    string       `gorm:"type:text;not null" json:"action"`
	Path      string       `gorm:"type:text" json:"path,omitempty"`
	IP        string       `gorm:"type:text" json:"ip,omitempty"`
	UserAgent string       `gorm:"type:text" json:"user_agent,omitempty"`
	Success   bool         `gorm:"not null" json:"success"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
}

func (AccessLog) TableName() string { return "admin_access_logs" }

const (
	ActionLogin  = "login"
	ActionLogout = "logout"
	ActionDelete = "delete"
	ActionRepair = "cashbook_repair"
	ActionExport = "export"
)
