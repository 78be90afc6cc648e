package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Role struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Name      string       `gorm:"type:text;not null;uniqueIndex" json:"name"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Role) TableName() string { return "roles" }

// GuestRoleName is the reserved role for anonymous kiosk consumption. It is
// seeded at startup and cannot be deleted.
const GuestRoleName = "Guests"

type User struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	FirstName string       `gorm:"type:text;not null;uniqueIndex:ux_users_name,priority:1" json:"first_name"`
	LastName  string       `gorm:"type:text;not null;uniqueIndex:ux_users_name,priority:2" json:"last_name"`
	// ITSLID is the external school-platform identifier, when known. It is
	// the preferred key for PIN archival across delete/re-create cycles.
	ITSLID *string      `gorm:"type:text;uniqueIndex" json:"itsl_id,omitempty"`
	RoleID snowflake.ID `gorm:"not null;index" json:"role_id"`
	Role   *Role        `gorm:"foreignKey:RoleID" json:"role,omitempty"`
	// PinHash is a bcrypt hash; empty means no PIN is set and the user
	// cannot confirm kiosk actions.
	PinHash   string    `gorm:"type:text" json:"-"`
	Active    bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (User) TableName() string { return "users" }

func (u *User) DisplayName() string {
	return u.FirstName + " " + u.LastName
}

// PinBackup survives user deletion so a re-created user gets their PIN back.
// Identifier is "itsl:<id>" when the user has an ITSL id, otherwise
// "name:<first>::<last>".
type PinBackup struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	Identifier string       `gorm:"type:text;not null;uniqueIndex" json:"identifier"`
	PinHash    string       `gorm:"type:text;not null" json:"-"`
	UpdatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (PinBackup) TableName() string { return "pin_backups" }

// Ref identifies who consumed something: a registered user or the anonymous
// guest account. The zero value is the guest.
type Ref struct {
	userID snowflake.ID
}

func RealUser(id snowflake.ID) Ref { return Ref{userID: id} }
func Guest() Ref                   { return Ref{} }

func (r Ref) IsGuest() bool        { return r.userID == 0 }
func (r Ref) UserID() snowflake.ID { return r.userID }
