// workers/reconcile_worker.go
package workers

import (
	"context"
	"log"
	"time"

	"clan-roster-system/models"

	"gorm.io/gorm"
)

// RosterReconciler repairs the recoverable inconsistencies the clan service
// deliberately leaves behind: the clan-side write is authoritative, so a user
// row can briefly disagree with the roster after a failed follow-up write.
type RosterReconciler struct {
	DB *gorm.DB
}

func NewRosterReconciler(db *gorm.DB) *RosterReconciler {
	return &RosterReconciler{DB: db}
}

// PollRoster runs the reconcile sweep on a fixed interval until ctx is done.
func PollRoster(ctx context.Context, r *RosterReconciler, pollInterval time.Duration) {
	log.Println("Starting roster reconciliation polling...")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Roster reconciliation stopped.")
			return
		case <-ticker.C:
			repaired, err := r.ReconcileOnce(ctx)
			if err != nil {
				log.Printf("[RECONCILE] sweep failed: %v", err)
				continue
			}
			if repaired > 0 {
				log.Printf("[RECONCILE] repaired %d user↔clan reference(s)", repaired)
			}
		}
	}
}

// ReconcileOnce makes one pass over user↔clan references and returns the
// number of repairs. Two directions:
//   - user.clan_id points at a clan that does not list them → clear it
//     (the dangling reference left by RemoveMember)
//   - a clan lists a member whose user row has no clan_id → restore it
func (r *RosterReconciler) ReconcileOnce(ctx context.Context) (int, error) {
	var clans []models.Clan
	if err := r.DB.WithContext(ctx).Find(&clans).Error; err != nil {
		return 0, err
	}
	memberOf := make(map[string]string) // userID → clanID
	for _, c := range clans {
		for _, m := range c.MemberIDs {
			memberOf[m] = c.ID
		}
	}

	repaired := 0

	var affiliated []models.RosterUser
	if err := r.DB.WithContext(ctx).Where("clan_id IS NOT NULL").Find(&affiliated).Error; err != nil {
		return repaired, err
	}
	for _, u := range affiliated {
		actual, ok := memberOf[u.ID]
		if ok && actual == *u.ClanID {
			continue
		}
		var update interface{}
		if ok {
			update = actual
		} // else nil clears the reference
		if err := r.DB.WithContext(ctx).Model(&models.RosterUser{}).
			Where("id = ?", u.ID).Update("clan_id", update).Error; err != nil {
			log.Printf("[RECONCILE] failed to repair user %s: %v", u.ID, err)
			continue
		}
		repaired++
	}

	// restore references for members whose user row lost its clan_id
	for userID, clanID := range memberOf {
		var user models.RosterUser
		if err := r.DB.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
			continue // mirror may lag behind the roster
		}
		if user.ClanID != nil {
			continue // handled above if it pointed elsewhere
		}
		if err := r.DB.WithContext(ctx).Model(&models.RosterUser{}).
			Where("id = ?", userID).Update("clan_id", clanID).Error; err != nil {
			log.Printf("[RECONCILE] failed to restore clan ref for user %s: %v", userID, err)
			continue
		}
		repaired++
	}

	return repaired, nil
}
