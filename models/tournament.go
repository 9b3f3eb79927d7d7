package models

import "time"

// Tournament statuses form a strict forward progression. Only the admin
// force-delete path ignores the ordering.
const (
	TournamentDraft        = "draft"
	TournamentRegistration = "registration"
	TournamentUpcoming     = "upcoming"
	TournamentActive       = "active"
	TournamentCompleted    = "completed"
)

// StatusRank gives the position of a status in the forward progression.
// Unknown statuses rank -1.
func StatusRank(status string) int {
	switch status {
	case TournamentDraft:
		return 0
	case TournamentRegistration:
		return 1
	case TournamentUpcoming:
		return 2
	case TournamentActive:
		return 3
	case TournamentCompleted:
		return 4
	}
	return -1
}

// Participant kinds: a tournament enrolls either individual users or clans.
const (
	ParticipantTypeUser = "user"
	ParticipantTypeClan = "clan"
)

// Bracket formats. Only single-elimination seeding is generated; the format
// is stored so double-elim tournaments can be modeled by organizers.
const (
	FormatSingleElim = "single_elim"
	FormatDoubleElim = "double_elim"
)

// Tournament is a capped, time-windowed enrollment of participants.
// The participant list lives on the row and is frozen once status reaches active.
type Tournament struct {
	ID          string `json:"id" gorm:"primaryKey"`
	Name        string `json:"name" gorm:"not null"`
	Slug        string `json:"slug" gorm:"index"`
	Description string `json:"description"`
	Rules       string `json:"rules"`
	BannerURL   string `json:"banner_url"`

	CreatorID       string `json:"creator_id" gorm:"not null;index"`
	ParticipantType string `json:"participant_type" gorm:"type:varchar(8);default:'user'"`
	Format          string `json:"format" gorm:"type:varchar(16);default:'single_elim'"`

	Status          string     `json:"status" gorm:"type:varchar(16);default:'registration';index"`
	ParticipantIDs  StringList `json:"participant_ids" gorm:"type:text"`
	MaxParticipants int        `json:"max_participants" gorm:"not null"`

	StartDate            time.Time  `json:"start_date" gorm:"not null"`
	RegistrationDeadline *time.Time `json:"registration_deadline,omitempty"`

	Version int64 `json:"version" gorm:"default:1"`

	Timestamps

	// Calculated fields (not stored in DB)
	ParticipantCount int               `json:"participant_count,omitempty" gorm:"-"`
	AvailableSlots   int               `json:"available_slots,omitempty" gorm:"-"`
	Matches          []TournamentMatch `json:"matches,omitempty" gorm:"foreignKey:TournamentID"`
}

// Match statuses.
const (
	MatchPending   = "pending"
	MatchCompleted = "completed"
	MatchBye       = "bye"
)

// TournamentMatch is one bracket pairing, seeded when the tournament goes
// active. A bye match is completed immediately with the lone player as winner.
type TournamentMatch struct {
	ID           string `json:"id" gorm:"primaryKey"`
	TournamentID string `json:"tournament_id" gorm:"not null;index"`
	Round        int    `json:"round" gorm:"default:1"`
	Slot         int    `json:"slot" gorm:"default:0"` // position within the round, stable order

	Player1ID string `json:"player1_id"`
	Player2ID string `json:"player2_id,omitempty"` // empty on a bye
	WinnerID  string `json:"winner_id,omitempty"`
	Status    string `json:"status" gorm:"type:varchar(16);default:'pending'"`

	Timestamps
}
