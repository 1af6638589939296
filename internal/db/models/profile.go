package models

import (
	"strings"
	"time"

	"github.com/uptrace/bun"

	"github.com/medreach/identitybridge/internal/auth"
)

// Address is embedded into the profiles table with an address_ column prefix.
type Address struct {
	Street     string `bun:"street" json:"street,omitempty"`
	City       string `bun:"city" json:"city,omitempty"`
	State      string `bun:"state" json:"state,omitempty"`
	Country    string `bun:"country" json:"country,omitempty"`
	PostalCode string `bun:"postal_code" json:"postalCode,omitempty"`
}

// Profile is the application-owned record reconciled with an external identity.
// ExternalID and Email are each unique; Email is stored trimmed and lowercase.
type Profile struct {
	bun.BaseModel `bun:"table:profiles,alias:p"`

	ID          string    `bun:"id,pk,type:uuid"`
	ExternalID  string    `bun:"external_id,notnull,unique"`
	Email       string    `bun:"email,notnull,unique"`
	DisplayName string    `bun:"display_name,notnull"`
	PhotoURL    string    `bun:"photo_url,notnull,default:''"`
	Role        auth.Role `bun:"role,notnull,default:'beneficiary'"`
	PhoneNumber string    `bun:"phone_number,notnull,default:''"`
	Address     Address   `bun:"embed:address_"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt   time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// Normalize applies the storage rules for email and display name.
func (p *Profile) Normalize() {
	p.Email = NormalizeEmail(p.Email)
	p.DisplayName = strings.TrimSpace(p.DisplayName)
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// PublicProfile is the client-visible projection of a Profile. It never
// carries the internal record id.
type PublicProfile struct {
	ExternalID  string    `json:"externalId"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	PhotoURL    string    `json:"photoURL"`
	Role        auth.Role `json:"role"`
	PhoneNumber string    `json:"phoneNumber"`
	Address     Address   `json:"address"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Public returns the client-visible fields.
func (p *Profile) Public() PublicProfile {
	return PublicProfile{
		ExternalID:  p.ExternalID,
		Email:       p.Email,
		DisplayName: p.DisplayName,
		PhotoURL:    p.PhotoURL,
		Role:        p.Role,
		PhoneNumber: p.PhoneNumber,
		Address:     p.Address,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}
