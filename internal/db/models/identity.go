package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Identity is a record of the built-in identity authority. It plays the part
// of the external provider's user store: password hash and role claim live
// here, never on the profile.
type Identity struct {
	bun.BaseModel `bun:"table:identities,alias:i"`

	ID           string     `bun:"id,pk,type:uuid"`
	Email        string     `bun:"email,notnull,unique"`
	DisplayName  string     `bun:"display_name,notnull"`
	PhotoURL     string     `bun:"photo_url,notnull,default:''"`
	PasswordHash string     `bun:"password_hash,notnull"`
	RoleClaim    *string    `bun:"role_claim"`
	CreatedAt    time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt    time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
	DisabledAt   *time.Time `bun:"disabled_at"`
}
