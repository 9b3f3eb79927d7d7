package models

import "time"

// User roles. "leader" and "captain" grant clan-scoped management rights;
// "organizer" and "admin" grant moderation capability.
const (
	RolePlayer    = "player"
	RoleCaptain   = "captain"
	RoleLeader    = "leader"
	RoleOrganizer = "organizer"
	RoleAdmin     = "admin"
)

// Account statuses. Banned users cannot join clans or enroll in tournaments.
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
	StatusBanned    = "banned"
)

// RosterUser is the local mirror of an identity-provider account.
// Created on first authentication, kept fresh by the profile sync worker.
// Rows are never hard-deleted: deletion is anonymization of email/display name.
type RosterUser struct {
	ID        string  `json:"id" gorm:"primaryKey"` // external id issued by the identity provider
	Username  string  `json:"username" gorm:"index;not null"`
	Email     string  `json:"email,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
	Role      string  `json:"role" gorm:"type:varchar(16);default:'player'"`
	Status    string  `json:"status" gorm:"type:varchar(16);default:'active'"`

	// A user belongs to at most one clan at any time. nil = unaffiliated.
	ClanID *string `json:"clan_id,omitempty" gorm:"index"`

	Anonymized bool       `json:"anonymized" gorm:"default:false"`
	LastSeen   *time.Time `json:"last_seen,omitempty"`

	Timestamps
}

// ValidRole reports whether r is one of the assignable roles.
func ValidRole(r string) bool {
	switch r {
	case RolePlayer, RoleCaptain, RoleLeader, RoleOrganizer, RoleAdmin:
		return true
	}
	return false
}

// IsModerator reports whether the role grants moderation capability.
func IsModerator(role string) bool {
	return role == RoleAdmin || role == RoleOrganizer
}
