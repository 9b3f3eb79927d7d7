package services

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strconv"
	"time"

	"clan-roster-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AdminService performs moderation: every mutating operation verifies the
// caller's role, applies the change, then appends exactly one audit entry.
// A log write that fails after a successful mutation is non-fatal and only
// reported to local diagnostics.
type AdminService struct {
	DB          *gorm.DB
	Users       UserDirectory
	Tournaments *TournamentService
}

func NewAdminService(db *gorm.DB, tournaments *TournamentService) *AdminService {
	return &AdminService{DB: db, Users: &gormUserDirectory{db: db}, Tournaments: tournaments}
}

// requireModerator resolves the acting admin and rejects callers without
// moderation capability.
func (s *AdminService) requireModerator(ctx context.Context, adminID string) (*models.RosterUser, error) {
	if adminID == "" {
		return nil, errAccessDenied("admin identity is required")
	}
	admin, err := s.Users.GetUser(ctx, adminID)
	if err != nil {
		return nil, err
	}
	if !models.IsModerator(admin.Role) {
		return nil, errAccessDenied("admin or organizer role required")
	}
	return admin, nil
}

// Log appends one immutable audit entry. Written only after the mutation it
// describes has succeeded.
func (s *AdminService) Log(ctx context.Context, admin *models.RosterUser, action, targetType, targetID, targetName, reason string, details map[string]interface{}) error {
	entry := models.AdminLog{
		ID:         uuid.NewString(),
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		TargetName: targetName,
		AdminID:    admin.ID,
		AdminName:  admin.Username,
		Reason:     reason,
	}
	if details != nil {
		b, err := json.Marshal(details)
		if err == nil {
			entry.Details = string(b)
		}
	}
	if err := s.DB.WithContext(ctx).Create(&entry).Error; err != nil {
		return err
	}
	return nil
}

func (s *AdminService) logOrWarn(ctx context.Context, admin *models.RosterUser, action, targetType, targetID, targetName, reason string, details map[string]interface{}) {
	if err := s.Log(ctx, admin, action, targetType, targetID, targetName, reason, details); err != nil {
		log.Printf("[ADMIN] audit write failed for %s on %s/%s: %v", action, targetType, targetID, err)
	}
}

// BanUser sets a user's status to banned. Existing clan membership survives;
// the ban only blocks new joins and enrollments.
func (s *AdminService) BanUser(ctx context.Context, adminID, userID, reason string) (*models.RosterUser, error) {
	admin, err := s.requireModerator(ctx, adminID)
	if err != nil {
		return nil, err
	}
	user, err := s.Users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Status == models.StatusBanned {
		return nil, errConflict(CodeAlreadyBanned, "user is already banned")
	}
	if err := s.DB.WithContext(ctx).Model(user).Update("status", models.StatusBanned).Error; err != nil {
		return nil, errUpstream(CodeStoreError, "failed to ban user")
	}
	user.Status = models.StatusBanned
	s.logOrWarn(ctx, admin, models.ActionBanUser, models.TargetUser, user.ID, user.Username, reason, nil)
	return user, nil
}

func (s *AdminService) UnbanUser(ctx context.Context, adminID, userID, reason string) (*models.RosterUser, error) {
	admin, err := s.requireModerator(ctx, adminID)
	if err != nil {
		return nil, err
	}
	user, err := s.Users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Status != models.StatusBanned {
		return nil, errState(CodeNotBanned, "user is not banned")
	}
	if err := s.DB.WithContext(ctx).Model(user).Update("status", models.StatusActive).Error; err != nil {
		return nil, errUpstream(CodeStoreError, "failed to unban user")
	}
	user.Status = models.StatusActive
	s.logOrWarn(ctx, admin, models.ActionUnbanUser, models.TargetUser, user.ID, user.Username, reason, nil)
	return user, nil
}

func (s *AdminService) AssignRole(ctx context.Context, adminID, userID, role, reason string) (*models.RosterUser, error) {
	admin, err := s.requireModerator(ctx, adminID)
	if err != nil {
		return nil, err
	}
	if !models.ValidRole(role) {
		return nil, errInvalidInput(CodeInvalidRole, "unknown role")
	}
	user, err := s.Users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	previous := user.Role
	if err := s.DB.WithContext(ctx).Model(user).Update("role", role).Error; err != nil {
		return nil, errUpstream(CodeStoreError, "failed to assign role")
	}
	user.Role = role
	s.logOrWarn(ctx, admin, models.ActionAssignRole, models.TargetUser, user.ID, user.Username, reason,
		map[string]interface{}{"from": previous, "to": role})
	return user, nil
}

// OverrideMatch forces a match result. The winner must be one of the two
// players; byes already carry their winner.
func (s *AdminService) OverrideMatch(ctx context.Context, adminID, matchID, winnerID, reason string) (*models.TournamentMatch, error) {
	admin, err := s.requireModerator(ctx, adminID)
	if err != nil {
		return nil, err
	}
	var match models.TournamentMatch
	if err := s.DB.WithContext(ctx).First(&match, "id = ?", matchID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errNotFound(CodeMatchNotFound, "match not found")
		}
		return nil, errUpstream(CodeStoreError, "failed to fetch match")
	}
	if winnerID != match.Player1ID && winnerID != match.Player2ID {
		return nil, errInvalidInput(CodeInvalidWinner, "winner must be one of the match players")
	}
	previous := match.WinnerID
	updates := map[string]interface{}{
		"winner_id": winnerID,
		"status":    models.MatchCompleted,
	}
	if err := s.DB.WithContext(ctx).Model(&match).Updates(updates).Error; err != nil {
		return nil, errUpstream(CodeStoreError, "failed to override match")
	}
	match.WinnerID = winnerID
	match.Status = models.MatchCompleted
	s.logOrWarn(ctx, admin, models.ActionOverrideMatch, models.TargetMatch, match.ID, "", reason,
		map[string]interface{}{"tournament_id": match.TournamentID, "previous_winner": previous, "winner": winnerID})
	return &match, nil
}

// RemoveTournament force-deletes a tournament regardless of status, cascading
// its matches.
func (s *AdminService) RemoveTournament(ctx context.Context, adminID, tournamentID, reason string) error {
	admin, err := s.requireModerator(ctx, adminID)
	if err != nil {
		return err
	}
	t, err := s.Tournaments.GetTournament(ctx, tournamentID)
	if err != nil {
		return err
	}
	if err := s.Tournaments.DeleteTournament(ctx, tournamentID, true); err != nil {
		return err
	}
	s.logOrWarn(ctx, admin, models.ActionRemoveTournament, models.TargetTournament, t.ID, t.Name, reason,
		map[string]interface{}{"status": t.Status, "participants": len(t.ParticipantIDs)})
	return nil
}

// LogFilter selects audit entries: optional date range, free-text match
// against target/admin/reason/action, newest first.
type LogFilter struct {
	From   *time.Time
	To     *time.Time
	Search string
	Limit  int
	Offset int
}

func (s *AdminService) QueryLogs(ctx context.Context, filter LogFilter) ([]models.AdminLog, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	db := s.DB.WithContext(ctx).Model(&models.AdminLog{})
	if filter.From != nil {
		db = db.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		db = db.Where("created_at <= ?", *filter.To)
	}
	if filter.Search != "" {
		term := "%" + filter.Search + "%"
		db = db.Where(
			"target_name LIKE ? OR admin_name LIKE ? OR reason LIKE ? OR action LIKE ?",
			term, term, term, term,
		)
	}
	var entries []models.AdminLog
	if err := db.Order("created_at DESC").Limit(filter.Limit).Offset(filter.Offset).Find(&entries).Error; err != nil {
		return nil, errUpstream(CodeStoreError, "failed to query logs")
	}
	return entries, nil
}

// AdminStats is the moderation dashboard summary.
type AdminStats struct {
	TotalUsers        int64            `json:"total_users"`
	BannedUsers       int64            `json:"banned_users"`
	TotalClans        int64            `json:"total_clans"`
	TotalTournaments  int64            `json:"total_tournaments"`
	TournamentsByStat map[string]int64 `json:"tournaments_by_status"`
	TotalMatches      int64            `json:"total_matches"`
	LogEntries        int64            `json:"log_entries"`
}

func (s *AdminService) GetAdminStats(ctx context.Context) (*AdminStats, error) {
	stats := &AdminStats{TournamentsByStat: map[string]int64{}}
	db := s.DB.WithContext(ctx)
	db.Model(&models.RosterUser{}).Count(&stats.TotalUsers)
	db.Model(&models.RosterUser{}).Where("status = ?", models.StatusBanned).Count(&stats.BannedUsers)
	db.Model(&models.Clan{}).Count(&stats.TotalClans)
	db.Model(&models.Tournament{}).Count(&stats.TotalTournaments)
	db.Model(&models.TournamentMatch{}).Count(&stats.TotalMatches)
	db.Model(&models.AdminLog{}).Count(&stats.LogEntries)

	type statusCount struct {
		Status string
		Count  int64
	}
	var rows []statusCount
	if err := db.Model(&models.Tournament{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&rows).Error; err == nil {
		for _, r := range rows {
			stats.TournamentsByStat[r.Status] = r.Count
		}
	}
	return stats, nil
}

// --- Fiber endpoints ---

func adminIDFromCtx(c *fiber.Ctx) string {
	id, _ := c.Locals("user_id").(string)
	return id
}

// parseReason reads the optional {"reason": ...} body. The reason is optional
// on every moderation endpoint, so a missing body is an empty reason, not a
// parse error.
func parseReason(c *fiber.Ctx) (string, error) {
	if len(c.Body()) == 0 {
		return "", nil
	}
	type Req struct {
		Reason string `json:"reason"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return "", errInvalidInput(CodeMissingField, "invalid JSON")
	}
	return req.Reason, nil
}

func (s *AdminService) BanUserEndpoint(c *fiber.Ctx) error {
	reason, perr := parseReason(c)
	if perr != nil {
		return respondError(c, perr)
	}
	user, err := s.BanUser(c.Context(), adminIDFromCtx(c), c.Params("user_id"), reason)
	if err != nil {
		return respondError(c, err)
	}
	return respondData(c, fiber.StatusOK, user)
}

func (s *AdminService) UnbanUserEndpoint(c *fiber.Ctx) error {
	reason, perr := parseReason(c)
	if perr != nil {
		return respondError(c, perr)
	}
	user, err := s.UnbanUser(c.Context(), adminIDFromCtx(c), c.Params("user_id"), reason)
	if err != nil {
		return respondError(c, err)
	}
	return respondData(c, fiber.StatusOK, user)
}

func (s *AdminService) AssignRoleEndpoint(c *fiber.Ctx) error {
	type Req struct {
		Role   string `json:"role"`
		Reason string `json:"reason"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, errInvalidInput(CodeMissingField, "invalid JSON"))
	}
	user, err := s.AssignRole(c.Context(), adminIDFromCtx(c), c.Params("user_id"), req.Role, req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return respondData(c, fiber.StatusOK, user)
}

func (s *AdminService) OverrideMatchEndpoint(c *fiber.Ctx) error {
	type Req struct {
		WinnerID string `json:"winner_id"`
		Reason   string `json:"reason"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, errInvalidInput(CodeMissingField, "invalid JSON"))
	}
	match, err := s.OverrideMatch(c.Context(), adminIDFromCtx(c), c.Params("match_id"), req.WinnerID, req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return respondData(c, fiber.StatusOK, match)
}

func (s *AdminService) RemoveTournamentEndpoint(c *fiber.Ctx) error {
	reason, perr := parseReason(c)
	if perr != nil {
		return respondError(c, perr)
	}
	if err := s.RemoveTournament(c.Context(), adminIDFromCtx(c), c.Params("id"), reason); err != nil {
		return respondError(c, err)
	}
	return respondData(c, fiber.StatusOK, fiber.Map{"message": "tournament removed"})
}

func (s *AdminService) GetAdminStatsEndpoint(c *fiber.Ctx) error {
	stats, err := s.GetAdminStats(c.Context())
	if err != nil {
		return respondError(c, err)
	}
	return respondData(c, fiber.StatusOK, stats)
}

func (s *AdminService) GetAdminLogsEndpoint(c *fiber.Ctx) error {
	filter := LogFilter{Search: c.Query("q")}
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return respondError(c, errInvalidInput(CodeMissingField, "invalid from (use RFC3339)"))
		}
		filter.From = &t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return respondError(c, errInvalidInput(CodeMissingField, "invalid to (use RFC3339)"))
		}
		filter.To = &t
	}
	filter.Limit, _ = strconv.Atoi(c.Query("limit", "50"))
	filter.Offset, _ = strconv.Atoi(c.Query("offset", "0"))
	entries, err := s.QueryLogs(c.Context(), filter)
	if err != nil {
		return respondError(c, err)
	}
	return respondData(c, fiber.StatusOK, entries)
}
