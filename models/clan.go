package models

// Clan membership bounds. MaxMembers is configurable per clan within this range.
const (
	ClanMinMembers = 2
	ClanMaxMembers = 100
)

// Clan holds the full roster on the row itself so membership changes are a
// single conditional write. Invariants enforced by the clan service:
//   - len(MemberIDs) <= MaxMembers
//   - LeaderID ∈ MemberIDs and LeaderID ∈ CaptainIDs
//   - CaptainIDs ⊆ MemberIDs
type Clan struct {
	ID          string `json:"id" gorm:"primaryKey"`
	Name        string `json:"name" gorm:"not null"`
	Slug        string `json:"slug" gorm:"index"`
	Tag         string `json:"tag" gorm:"uniqueIndex;not null"` // 2-6 uppercase alphanumerics
	Description string `json:"description"`
	EmblemURL   string `json:"emblem_url"`

	LeaderID   string     `json:"leader_id" gorm:"not null"`
	MemberIDs  StringList `json:"member_ids" gorm:"type:text"`  // ordered, unique
	CaptainIDs StringList `json:"captain_ids" gorm:"type:text"` // subset of MemberIDs
	MaxMembers int        `json:"max_members" gorm:"default:50"`

	Level  int   `json:"level" gorm:"default:1"`
	Wins   int64 `json:"wins" gorm:"default:0"`
	Losses int64 `json:"losses" gorm:"default:0"`

	// Version is the optimistic-concurrency stamp: every roster write is
	// conditional on the version it read.
	Version int64 `json:"version" gorm:"default:1"`

	Timestamps

	// Calculated fields (not stored in DB)
	MemberCount    int `json:"member_count,omitempty" gorm:"-"`
	AvailableSlots int `json:"available_slots,omitempty" gorm:"-"`
}
