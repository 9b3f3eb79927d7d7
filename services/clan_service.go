package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"regexp"

	"clan-roster-system/models"
	"clan-roster-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

var clanTagPattern = regexp.MustCompile(`^[A-Z0-9]{2,6}$`)

// maxConflictRetries bounds the optimistic-concurrency retry loop. The store
// gives no ordering guarantees across rows, so every roster write is
// conditional on the version it read and retried on conflict.
const maxConflictRetries = 3

// ClanService enforces the clan roster invariants: single clan membership,
// bounded capacity, and leader ∈ members ∩ captains at all times.
type ClanService struct {
	DB    *gorm.DB
	Users UserDirectory
}

func NewClanService(db *gorm.DB) *ClanService {
	return &ClanService{DB: db, Users: &gormUserDirectory{db: db}}
}

func (s *ClanService) fetchClan(ctx context.Context, id string) (*models.Clan, error) {
	var clan models.Clan
	if err := s.DB.WithContext(ctx).First(&clan, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errNotFound(CodeClanNotFound, "clan not found")
		}
		return nil, errUpstream(CodeStoreError, "failed to fetch clan")
	}
	return &clan, nil
}

// casUpdateClan writes the clan row only if nobody else has written it since
// it was read. Returns false (no error) when the version stamp went stale.
func (s *ClanService) casUpdateClan(ctx context.Context, clanID string, readVersion int64, updates map[string]interface{}) (bool, error) {
	updates["version"] = readVersion + 1
	res := s.DB.WithContext(ctx).Model(&models.Clan{}).
		Where("id = ? AND version = ?", clanID, readVersion).
		Updates(updates)
	if res.Error != nil {
		return false, errUpstream(CodeStoreError, "failed to write clan")
	}
	return res.RowsAffected > 0, nil
}

// compensateClanCreate deletes a freshly created clan after the leader-side
// write failed. No orphaned clan may remain.
func (s *ClanService) compensateClanCreate(ctx context.Context, clanID string) error {
	if err := s.DB.WithContext(ctx).Delete(&models.Clan{}, "id = ?", clanID).Error; err != nil {
		return err
	}
	return nil
}

// restoreClanRoster rewrites the roster fields back to their pre-call values
// after a dependent user-side write failed. Conditional on the version the
// failed operation produced, so an interleaved writer is never clobbered.
func (s *ClanService) restoreClanRoster(ctx context.Context, prior *models.Clan, writtenVersion int64) error {
	ok, err := s.casUpdateClan(ctx, prior.ID, writtenVersion, map[string]interface{}{
		"member_ids":  prior.MemberIDs,
		"captain_ids": prior.CaptainIDs,
		"leader_id":   prior.LeaderID,
	})
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("clan %s changed during rollback", prior.ID)
	}
	return nil
}

// CreateClan creates a clan with the leader as sole member and captain, then
// points the leader's user row at it. If the second write fails the clan is
// deleted again.
func (s *ClanService) CreateClan(ctx context.Context, name, tag, leaderID string, maxMembers int, description string) (*models.Clan, error) {
	if name == "" || leaderID == "" {
		return nil, errInvalidInput(CodeMissingField, "name and leader_id are required")
	}
	if !clanTagPattern.MatchString(tag) {
		return nil, errInvalidInput(CodeInvalidTag, "tag must be 2-6 uppercase letters or digits")
	}
	if maxMembers < models.ClanMinMembers || maxMembers > models.ClanMaxMembers {
		return nil, errInvalidInput(CodeInvalidMaxMembers,
			fmt.Sprintf("max_members must be between %d and %d", models.ClanMinMembers, models.ClanMaxMembers))
	}

	var taken int64
	if err := s.DB.WithContext(ctx).Model(&models.Clan{}).Where("tag = ?", tag).Count(&taken).Error; err != nil {
		return nil, errUpstream(CodeStoreError, "failed to check tag")
	}
	if taken > 0 {
		return nil, errConflict(CodeTagTaken, "clan tag is already taken")
	}

	leader, err := s.Users.GetUser(ctx, leaderID)
	if err != nil {
		return nil, err
	}
	if leader.Status == models.StatusBanned {
		return nil, errState(CodeBanned, "banned users cannot create clans")
	}
	if leader.ClanID != nil {
		return nil, errConflict(CodeUserAlreadyInClan, "user already belongs to a clan")
	}

	clan := &models.Clan{
		ID:          uuid.NewString(),
		Name:        name,
		Slug:        slug.Make(name),
		Tag:         tag,
		Description: description,
		LeaderID:    leaderID,
		MemberIDs:   models.StringList{leaderID},
		CaptainIDs:  models.StringList{leaderID},
		MaxMembers:  maxMembers,
		Level:       1,
		Version:     1,
	}
	if err := s.DB.WithContext(ctx).Create(clan).Error; err != nil {
		// unique index on tag backs up the pre-check under races
		return nil, errConflict(CodeTagTaken, "clan tag is already taken")
	}

	if err := s.Users.SetUserClan(ctx, leaderID, &clan.ID); err != nil {
		if rbErr := s.compensateClanCreate(ctx, clan.ID); rbErr != nil {
			log.Printf("[CLANS] rollback of clan %s failed after user write error: %v", clan.ID, rbErr)
			return nil, errCompensation(fmt.Sprintf("clan %s created but leader %s not linked and cleanup failed", clan.ID, leaderID))
		}
		return nil, errUpstream(CodeUserUpdateFailed, "failed to link leader to new clan")
	}
	return clan, nil
}

// JoinClan appends the user to the member list and sets the user's clan
// reference. Membership and capacity checks re-run on every CAS retry.
func (s *ClanService) JoinClan(ctx context.Context, clanID, userID string) (*models.Clan, error) {
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		clan, err := s.fetchClan(ctx, clanID)
		if err != nil {
			return nil, err
		}
		user, err := s.Users.GetUser(ctx, userID)
		if err != nil {
			return nil, err
		}

		if clan.MemberIDs.Contains(userID) {
			return nil, errConflict(CodeAlreadyMember, "user is already a member of this clan")
		}
		if len(clan.MemberIDs) >= clan.MaxMembers {
			return nil, errCapacity(CodeClanFull, "clan is at maximum capacity")
		}
		if user.Status == models.StatusBanned {
			return nil, errState(CodeBanned, "banned users cannot join clans")
		}
		if user.ClanID != nil && *user.ClanID != clanID {
			return nil, errConflict(CodeUserAlreadyInClan, "user already belongs to another clan")
		}

		newMembers := append(clan.MemberIDs.Clone(), userID)
		ok, err := s.casUpdateClan(ctx, clan.ID, clan.Version, map[string]interface{}{
			"member_ids": newMembers,
		})
		if err != nil {
			return nil, err
		}
		if !ok {
			continue // someone else wrote the roster, re-read and re-validate
		}

		if err := s.Users.SetUserClan(ctx, userID, &clan.ID); err != nil {
			if rbErr := s.restoreClanRoster(ctx, clan, clan.Version+1); rbErr != nil {
				log.Printf("[CLANS] roster rollback failed for clan %s: %v", clan.ID, rbErr)
				return nil, errCompensation(fmt.Sprintf("clan %s lists user %s but the user row was not updated", clan.ID, userID))
			}
			return nil, errUpstream(CodeUserUpdateFailed, "failed to set user's clan reference")
		}
		return s.fetchClan(ctx, clanID)
	}
	return nil, errConcurrent("clan roster changed concurrently, retries exhausted")
}

// transferLeadership picks the successor when the leader leaves: the first
// remaining captain in member order, else the first remaining member. The
// tie-break is deterministic and order-preserving.
func transferLeadership(members, captains models.StringList) string {
	for _, m := range members {
		if captains.Contains(m) {
			return m
		}
	}
	if len(members) > 0 {
		return members[0]
	}
	return ""
}

// RemoveMember covers both voluntary leave and forced removal. The clan-side
// write is authoritative: a failure to clear the user's clan reference is
// logged and left for the reconcile sweep rather than rolled back.
func (s *ClanService) RemoveMember(ctx context.Context, clanID, userID string) (*models.Clan, error) {
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		clan, err := s.fetchClan(ctx, clanID)
		if err != nil {
			return nil, err
		}
		if !clan.MemberIDs.Contains(userID) {
			return nil, errConflict(CodeNotMember, "user is not a member of this clan")
		}
		if clan.LeaderID == userID && len(clan.MemberIDs) == 1 {
			return nil, errState(CodeCannotRemoveLastLeader, "cannot remove the leader of a single-member clan")
		}

		newMembers := clan.MemberIDs.Without(userID)
		newCaptains := clan.CaptainIDs.Without(userID)
		newLeader := clan.LeaderID
		if clan.LeaderID == userID {
			newLeader = transferLeadership(newMembers, newCaptains)
			if !newCaptains.Contains(newLeader) {
				newCaptains = append(newCaptains, newLeader)
			}
		}

		ok, err := s.casUpdateClan(ctx, clan.ID, clan.Version, map[string]interface{}{
			"member_ids":  newMembers,
			"captain_ids": newCaptains,
			"leader_id":   newLeader,
		})
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		if err := s.Users.SetUserClan(ctx, userID, nil); err != nil {
			log.Printf("[CLANS] user %s keeps a dangling clan_id after removal from %s: %v", userID, clanID, err)
		}
		return s.fetchClan(ctx, clanID)
	}
	return nil, errConcurrent("clan roster changed concurrently, retries exhausted")
}

// AssignCaptain promotes an existing member.
func (s *ClanService) AssignCaptain(ctx context.Context, clanID, userID string) (*models.Clan, error) {
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		clan, err := s.fetchClan(ctx, clanID)
		if err != nil {
			return nil, err
		}
		if !clan.MemberIDs.Contains(userID) {
			return nil, errConflict(CodeNotMember, "user is not a member of this clan")
		}
		if clan.CaptainIDs.Contains(userID) {
			return nil, errConflict(CodeAlreadyCaptain, "user is already a captain")
		}
		ok, err := s.casUpdateClan(ctx, clan.ID, clan.Version, map[string]interface{}{
			"captain_ids": append(clan.CaptainIDs.Clone(), userID),
		})
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		return s.fetchClan(ctx, clanID)
	}
	return nil, errConcurrent("clan roster changed concurrently, retries exhausted")
}

// RevokeCaptain demotes a captain. The leader's captain status is immutable
// except through leadership transfer.
func (s *ClanService) RevokeCaptain(ctx context.Context, clanID, userID string) (*models.Clan, error) {
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		clan, err := s.fetchClan(ctx, clanID)
		if err != nil {
			return nil, err
		}
		if !clan.CaptainIDs.Contains(userID) {
			return nil, errConflict(CodeNotCaptain, "user is not a captain")
		}
		if clan.LeaderID == userID {
			return nil, errState(CodeCannotRevokeLeader, "the leader's captain status cannot be revoked")
		}
		ok, err := s.casUpdateClan(ctx, clan.ID, clan.Version, map[string]interface{}{
			"captain_ids": clan.CaptainIDs.Without(userID),
		})
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		return s.fetchClan(ctx, clanID)
	}
	return nil, errConcurrent("clan roster changed concurrently, retries exhausted")
}

// ClanPatch carries optional clan profile updates. Nil fields are untouched.
type ClanPatch struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Tag         *string `json:"tag"`
	MaxMembers  *int    `json:"max_members"`
}

// UpdateClan validates and applies a profile patch. The member cap can never
// drop below the current member count.
func (s *ClanService) UpdateClan(ctx context.Context, clanID string, patch ClanPatch) (*models.Clan, error) {
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		clan, err := s.fetchClan(ctx, clanID)
		if err != nil {
			return nil, err
		}

		updates := map[string]interface{}{}
		if patch.Name != nil {
			if *patch.Name == "" {
				return nil, errInvalidInput(CodeMissingField, "name cannot be empty")
			}
			updates["name"] = *patch.Name
			updates["slug"] = slug.Make(*patch.Name)
		}
		if patch.Description != nil {
			updates["description"] = *patch.Description
		}
		if patch.Tag != nil && *patch.Tag != clan.Tag {
			if !clanTagPattern.MatchString(*patch.Tag) {
				return nil, errInvalidInput(CodeInvalidTag, "tag must be 2-6 uppercase letters or digits")
			}
			var taken int64
			if err := s.DB.WithContext(ctx).Model(&models.Clan{}).
				Where("tag = ? AND id <> ?", *patch.Tag, clanID).Count(&taken).Error; err != nil {
				return nil, errUpstream(CodeStoreError, "failed to check tag")
			}
			if taken > 0 {
				return nil, errConflict(CodeTagTaken, "clan tag is already taken")
			}
			updates["tag"] = *patch.Tag
		}
		if patch.MaxMembers != nil {
			if *patch.MaxMembers < models.ClanMinMembers || *patch.MaxMembers > models.ClanMaxMembers {
				return nil, errInvalidInput(CodeInvalidMaxMembers,
					fmt.Sprintf("max_members must be between %d and %d", models.ClanMinMembers, models.ClanMaxMembers))
			}
			if *patch.MaxMembers < len(clan.MemberIDs) {
				return nil, errCapacity(CodeMaxMembersTooLow, "max_members is below the current member count")
			}
			updates["max_members"] = *patch.MaxMembers
		}
		if len(updates) == 0 {
			return clan, nil
		}

		ok, err := s.casUpdateClan(ctx, clan.ID, clan.Version, updates)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		return s.fetchClan(ctx, clanID)
	}
	return nil, errConcurrent("clan changed concurrently, retries exhausted")
}

func (s *ClanService) GetClan(ctx context.Context, clanID string) (*models.Clan, error) {
	clan, err := s.fetchClan(ctx, clanID)
	if err != nil {
		return nil, err
	}
	clan.MemberCount = len(clan.MemberIDs)
	clan.AvailableSlots = clan.MaxMembers - len(clan.MemberIDs)
	return clan, nil
}

// --- Fiber endpoints ---

func (s *ClanService) CreateClanEndpoint(c *fiber.Ctx) error {
	type Req struct {
		Name        string `json:"name"`
		Tag         string `json:"tag"`
		LeaderID    string `json:"leader_id"`
		MaxMembers  int    `json:"max_members"`
		Description string `json:"description"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, errInvalidInput(CodeMissingField, "invalid JSON"))
	}
	if req.MaxMembers == 0 {
		req.MaxMembers = 50
	}
	clan, err := s.CreateClan(c.Context(), req.Name, req.Tag, req.LeaderID, req.MaxMembers, req.Description)
	if err != nil {
		return respondError(c, err)
	}
	return respondData(c, fiber.StatusCreated, clan)
}

func (s *ClanService) GetClanEndpoint(c *fiber.Ctx) error {
	clan, err := s.GetClan(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return respondData(c, fiber.StatusOK, clan)
}

func (s *ClanService) ListClansEndpoint(c *fiber.Ctx) error {
	var clans []models.Clan
	if err := s.DB.Order("created_at DESC").Find(&clans).Error; err != nil {
		return respondError(c, errUpstream(CodeStoreError, "failed to fetch clans"))
	}
	for i := range clans {
		clans[i].MemberCount = len(clans[i].MemberIDs)
		clans[i].AvailableSlots = clans[i].MaxMembers - len(clans[i].MemberIDs)
	}
	return respondData(c, fiber.StatusOK, clans)
}

func (s *ClanService) JoinClanEndpoint(c *fiber.Ctx) error {
	type Req struct {
		UserID string `json:"user_id"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil || req.UserID == "" {
		return respondError(c, errInvalidInput(CodeMissingField, "user_id is required"))
	}
	clan, err := s.JoinClan(c.Context(), c.Params("id"), req.UserID)
	if err != nil {
		return respondError(c, err)
	}
	return respondData(c, fiber.StatusOK, clan)
}

func (s *ClanService) RemoveMemberEndpoint(c *fiber.Ctx) error {
	clan, err := s.RemoveMember(c.Context(), c.Params("id"), c.Params("user_id"))
	if err != nil {
		return respondError(c, err)
	}
	return respondData(c, fiber.StatusOK, clan)
}

func (s *ClanService) AssignCaptainEndpoint(c *fiber.Ctx) error {
	clan, err := s.AssignCaptain(c.Context(), c.Params("id"), c.Params("user_id"))
	if err != nil {
		return respondError(c, err)
	}
	return respondData(c, fiber.StatusOK, clan)
}

func (s *ClanService) RevokeCaptainEndpoint(c *fiber.Ctx) error {
	clan, err := s.RevokeCaptain(c.Context(), c.Params("id"), c.Params("user_id"))
	if err != nil {
		return respondError(c, err)
	}
	return respondData(c, fiber.StatusOK, clan)
}

func (s *ClanService) UpdateClanEndpoint(c *fiber.Ctx) error {
	var patch ClanPatch
	if err := c.BodyParser(&patch); err != nil {
		return respondError(c, errInvalidInput(CodeMissingField, "invalid JSON"))
	}
	clan, err := s.UpdateClan(c.Context(), c.Params("id"), patch)
	if err != nil {
		return respondError(c, err)
	}
	return respondData(c, fiber.StatusOK, clan)
}

// UploadEmblemEndpoint stores a clan emblem image in R2 and saves its URL.
func (s *ClanService) UploadEmblemEndpoint(c *fiber.Ctx) error {
	clanID := c.Params("id")
	file, err := c.FormFile("emblem")
	if err != nil || file.Size == 0 {
		return respondError(c, errInvalidInput(CodeMissingField, "emblem file is required"))
	}
	ext := filepath.Ext(file.Filename)
	if ext == "" {
		ext = ".png"
	}
	key := "clans/emblems/" + uuid.NewString() + ext
	url, err := utils.UploadFileToR2(file, key)
	if err != nil {
		log.Printf("[CLANS] emblem upload failed for clan %s: %v", clanID, err)
		return respondError(c, errUpstream(CodeStoreError, "failed to upload emblem"))
	}
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		clan, ferr := s.fetchClan(c.Context(), clanID)
		if ferr != nil {
			return respondError(c, ferr)
		}
		ok, uerr := s.casUpdateClan(c.Context(), clan.ID, clan.Version, map[string]interface{}{"emblem_url": url})
		if uerr != nil {
			return respondError(c, uerr)
		}
		if ok {
			return respondData(c, fiber.StatusOK, fiber.Map{"emblem_url": url})
		}
	}
	return respondError(c, errConcurrent("clan changed concurrently, retries exhausted"))
}
