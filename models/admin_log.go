package models

import "time"

// Moderation log target types.
const (
	TargetUser       = "user"
	TargetClan       = "clan"
	TargetTournament = "tournament"
	TargetMatch      = "match"
)

// Moderation actions.
const (
	ActionBanUser          = "ban_user"
	ActionUnbanUser        = "unban_user"
	ActionAssignRole       = "assign_role"
	ActionOverrideMatch    = "override_match"
	ActionRemoveTournament = "remove_tournament"
	ActionRemoveClan       = "remove_clan"
)

// AdminLog is one immutable audit entry. Entries are only ever appended,
// after the mutation they describe has succeeded.
type AdminLog struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	Action     string    `json:"action" gorm:"not null;index"`
	TargetType string    `json:"target_type" gorm:"type:varchar(16);not null"`
	TargetID   string    `json:"target_id" gorm:"index"`
	TargetName string    `json:"target_name"`
	AdminID    string    `json:"admin_id" gorm:"not null;index"`
	AdminName  string    `json:"admin_name"`
	Reason     string    `json:"reason"`
	Details    string    `json:"details,omitempty" gorm:"type:text"` // structured payload, JSON
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime;index"`
}
