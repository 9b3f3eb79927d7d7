package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"clan-roster-system/models"
	"clan-roster-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// TournamentService enforces the enrollment invariants: capacity, the
// registration window, and duplicate enrollment. Status only moves forward.
type TournamentService struct {
	DB    *gorm.DB
	Users UserDirectory

	// now is swappable for deadline/start tests
	now func() time.Time
}

func NewTournamentService(db *gorm.DB) *TournamentService {
	return &TournamentService{DB: db, Users: &gormUserDirectory{db: db}, now: time.Now}
}

func (s *TournamentService) fetchTournament(ctx context.Context, id string) (*models.Tournament, error) {
	var t models.Tournament
	if err := s.DB.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errNotFound(CodeTournamentNotFound, "tournament not found")
		}
		return nil, errUpstream(CodeStoreError, "failed to fetch tournament")
	}
	return &t, nil
}

func (s *TournamentService) casUpdateTournament(ctx context.Context, id string, readVersion int64, updates map[string]interface{}) (bool, error) {
	updates["version"] = readVersion + 1
	res := s.DB.WithContext(ctx).Model(&models.Tournament{}).
		Where("id = ? AND version = ?", id, readVersion).
		Updates(updates)
	if res.Error != nil {
		return false, errUpstream(CodeStoreError, "failed to write tournament")
	}
	return res.RowsAffected > 0, nil
}

// CreateTournamentInput carries the creation arguments.
type CreateTournamentInput struct {
	Name                 string
	Description          string
	Rules                string
	CreatorID            string
	ParticipantType      string
	Format               string
	MaxParticipants      int
	StartDate            time.Time
	RegistrationDeadline *time.Time
	Draft                bool
}

// CreateTournament validates and creates a tournament in draft or
// registration, with an empty participant list.
func (s *TournamentService) CreateTournament(ctx context.Context, in CreateTournamentInput) (*models.Tournament, error) {
	if in.Name == "" || in.CreatorID == "" {
		return nil, errInvalidInput(CodeMissingField, "name and creator_id are required")
	}
	if in.MaxParticipants < 2 {
		return nil, errInvalidInput(CodeInvalidMaxParticipants, "max_participants must be at least 2")
	}
	if !in.StartDate.After(s.now()) {
		return nil, errInvalidInput(CodeInvalidStartDate, "start_date must be in the future")
	}
	if in.RegistrationDeadline != nil && in.RegistrationDeadline.After(in.StartDate) {
		return nil, errInvalidInput(CodeInvalidDeadline, "registration_deadline must not be after start_date")
	}
	if in.ParticipantType == "" {
		in.ParticipantType = models.ParticipantTypeUser
	}
	if in.ParticipantType != models.ParticipantTypeUser && in.ParticipantType != models.ParticipantTypeClan {
		return nil, errInvalidInput(CodeMissingField, "participant_type must be 'user' or 'clan'")
	}
	if in.Format == "" {
		in.Format = models.FormatSingleElim
	}
	if in.Format != models.FormatSingleElim && in.Format != models.FormatDoubleElim {
		return nil, errInvalidInput(CodeMissingField, "format must be 'single_elim' or 'double_elim'")
	}

	status := models.TournamentRegistration
	if in.Draft {
		status = models.TournamentDraft
	}
	t := &models.Tournament{
		ID:                   uuid.NewString(),
		Name:                 in.Name,
		Slug:                 slug.Make(in.Name),
		Description:          in.Description,
		Rules:                in.Rules,
		CreatorID:            in.CreatorID,
		ParticipantType:      in.ParticipantType,
		Format:               in.Format,
		Status:               status,
		ParticipantIDs:       models.StringList{},
		MaxParticipants:      in.MaxParticipants,
		StartDate:            in.StartDate,
		RegistrationDeadline: in.RegistrationDeadline,
		Version:              1,
	}
	if err := s.DB.WithContext(ctx).Create(t).Error; err != nil {
		return nil, errUpstream(CodeStoreError, "failed to create tournament")
	}
	return t, nil
}

// AddParticipant enrolls a user or clan while registration is open.
func (s *TournamentService) AddParticipant(ctx context.Context, tournamentID, participantID string) (*models.Tournament, error) {
	if participantID == "" {
		return nil, errInvalidInput(CodeMissingField, "participant_id is required")
	}
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		t, err := s.fetchTournament(ctx, tournamentID)
		if err != nil {
			return nil, err
		}
		if t.Status != models.TournamentRegistration {
			return nil, errState(CodeRegistrationClosed, "tournament is not accepting registrations")
		}
		if t.RegistrationDeadline != nil && s.now().After(*t.RegistrationDeadline) {
			return nil, errState(CodeRegistrationDeadlinePassed, "registration deadline has passed")
		}
		if t.ParticipantIDs.Contains(participantID) {
			return nil, errConflict(CodeAlreadyParticipating, "already enrolled in this tournament")
		}
		if len(t.ParticipantIDs) >= t.MaxParticipants {
			return nil, errCapacity(CodeTournamentFull, "tournament is full")
		}

		if t.ParticipantType == models.ParticipantTypeUser {
			user, err := s.Users.GetUser(ctx, participantID)
			if err != nil {
				return nil, err
			}
			if user.Status == models.StatusBanned {
				return nil, errState(CodeBanned, "banned users cannot enroll in tournaments")
			}
		} else {
			var count int64
			if err := s.DB.WithContext(ctx).Model(&models.Clan{}).Where("id = ?", participantID).Count(&count).Error; err != nil {
				return nil, errUpstream(CodeStoreError, "failed to check clan")
			}
			if count == 0 {
				return nil, errNotFound(CodeClanNotFound, "clan not found")
			}
		}

		ok, err := s.casUpdateTournament(ctx, t.ID, t.Version, map[string]interface{}{
			"participant_ids": append(t.ParticipantIDs.Clone(), participantID),
		})
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		return s.fetchTournament(ctx, tournamentID)
	}
	return nil, errConcurrent("tournament changed concurrently, retries exhausted")
}

// RemoveParticipant withdraws an entrant. Enrollment freezes once the
// tournament starts.
func (s *TournamentService) RemoveParticipant(ctx context.Context, tournamentID, participantID string) (*models.Tournament, error) {
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		t, err := s.fetchTournament(ctx, tournamentID)
		if err != nil {
			return nil, err
		}
		if t.Status == models.TournamentActive || t.Status == models.TournamentCompleted {
			return nil, errState(CodeTournamentStarted, "participant list is frozen once a tournament starts")
		}
		if !t.ParticipantIDs.Contains(participantID) {
			return nil, errConflict(CodeNotParticipating, "not enrolled in this tournament")
		}
		ok, err := s.casUpdateTournament(ctx, t.ID, t.Version, map[string]interface{}{
			"participant_ids": t.ParticipantIDs.Without(participantID),
		})
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		return s.fetchTournament(ctx, tournamentID)
	}
	return nil, errConcurrent("tournament changed concurrently, retries exhausted")
}

// TournamentPatch carries optional updates. Nil fields are untouched.
type TournamentPatch struct {
	Name                 *string    `json:"name"`
	Description          *string    `json:"description"`
	Rules                *string    `json:"rules"`
	MaxParticipants      *int       `json:"max_participants"`
	StartDate            *time.Time `json:"start_date"`
	RegistrationDeadline *time.Time `json:"registration_deadline"`
}

func (s *TournamentService) UpdateTournament(ctx context.Context, id string, patch TournamentPatch) (*models.Tournament, error) {
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		t, err := s.fetchTournament(ctx, id)
		if err != nil {
			return nil, err
		}

		updates := map[string]interface{}{}
		startDate := t.StartDate
		if patch.StartDate != nil {
			if !patch.StartDate.After(s.now()) {
				return nil, errInvalidInput(CodeInvalidStartDate, "start_date must be in the future")
			}
			startDate = *patch.StartDate
			updates["start_date"] = startDate
		}
		if patch.RegistrationDeadline != nil {
			if patch.RegistrationDeadline.After(startDate) {
				return nil, errInvalidInput(CodeInvalidDeadline, "registration_deadline must not be after start_date")
			}
			updates["registration_deadline"] = patch.RegistrationDeadline
		}
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
		if patch.Rules != nil {
			updates["rules"] = *patch.Rules
		}
		if patch.MaxParticipants != nil {
			if *patch.MaxParticipants < 2 {
				return nil, errInvalidInput(CodeInvalidMaxParticipants, "max_participants must be at least 2")
			}
			if *patch.MaxParticipants < len(t.ParticipantIDs) {
				return nil, errCapacity(CodeMaxParticipantsTooLow, "max_participants is below the current participant count")
			}
			updates["max_participants"] = *patch.MaxParticipants
		}
		if len(updates) == 0 {
			return t, nil
		}

		ok, err := s.casUpdateTournament(ctx, t.ID, t.Version, updates)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		return s.fetchTournament(ctx, id)
	}
	return nil, errConcurrent("tournament changed concurrently, retries exhausted")
}

// DeleteTournament removes a tournament and its matches in one transaction.
// Active tournaments can only be removed with force (the admin override path).
func (s *TournamentService) DeleteTournament(ctx context.Context, id string, force bool) error {
	t, err := s.fetchTournament(ctx, id)
	if err != nil {
		return err
	}
	if t.Status == models.TournamentActive && !force {
		return errState(CodeTournamentActive, "active tournaments cannot be deleted")
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tournament_id = ?", id).Delete(&models.TournamentMatch{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Tournament{}, "id = ?", id).Error
	})
	if err != nil {
		return errUpstream(CodeStoreError, "failed to delete tournament")
	}
	return nil
}

// AdvanceStatus moves the tournament forward along
// draft → registration → upcoming → active → completed. Backward moves are
// rejected; entering active freezes enrollment and seeds the bracket.
func (s *TournamentService) AdvanceStatus(ctx context.Context, id, target string) (*models.Tournament, error) {
	targetRank := models.StatusRank(target)
	if targetRank < 0 {
		return nil, errInvalidInput(CodeInvalidStatusTransition, "unknown status")
	}
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		t, err := s.fetchTournament(ctx, id)
		if err != nil {
			return nil, err
		}
		if targetRank <= models.StatusRank(t.Status) {
			return nil, errState(CodeInvalidStatusTransition,
				fmt.Sprintf("cannot move status backward from %s to %s", t.Status, target))
		}
		if target == models.TournamentActive && len(t.ParticipantIDs) < 2 {
			return nil, errState(CodeNotEnoughParticipants, "at least 2 participants are required to start")
		}

		if target == models.TournamentActive {
			// status flip and bracket seeding land together or not at all:
			// an active tournament must never exist without its round-1 matches
			var stale bool
			err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				res := tx.Model(&models.Tournament{}).
					Where("id = ? AND version = ?", t.ID, t.Version).
					Updates(map[string]interface{}{"status": target, "version": t.Version + 1})
				if res.Error != nil {
					return res.Error
				}
				if res.RowsAffected == 0 {
					stale = true
					return nil
				}
				matches := buildRoundOneMatches(t.ID, t.ParticipantIDs)
				for i := range matches {
					if err := tx.Create(&matches[i]).Error; err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				log.Printf("[TOURNAMENTS] activation failed for %s: %v", t.ID, err)
				return nil, errUpstream(CodeStoreError, "failed to activate tournament")
			}
			if stale {
				continue
			}
			return s.fetchTournament(ctx, id)
		}

		ok, err := s.casUpdateTournament(ctx, t.ID, t.Version, map[string]interface{}{"status": target})
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		return s.fetchTournament(ctx, id)
	}
	return nil, errConcurrent("tournament changed concurrently, retries exhausted")
}

// buildRoundOneMatches generates the round-1 single-elimination pairings in
// stable enrollment order. With an odd participant count the last entrant gets
// a bye and advances immediately.
func buildRoundOneMatches(tournamentID string, participants models.StringList) []models.TournamentMatch {
	var matches []models.TournamentMatch
	slot := 0
	for i := 0; i+1 < len(participants); i += 2 {
		matches = append(matches, models.TournamentMatch{
			ID:           uuid.NewString(),
			TournamentID: tournamentID,
			Round:        1,
			Slot:         slot,
			Player1ID:    participants[i],
			Player2ID:    participants[i+1],
			Status:       models.MatchPending,
		})
		slot++
	}
	if len(participants)%2 == 1 {
		last := participants[len(participants)-1]
		matches = append(matches, models.TournamentMatch{
			ID:           uuid.NewString(),
			TournamentID: tournamentID,
			Round:        1,
			Slot:         slot,
			Player1ID:    last,
			WinnerID:     last,
			Status:       models.MatchBye,
		})
	}
	return matches
}

// SweepStatuses advances tournaments whose time windows have elapsed:
// registration closes at the deadline, and tournaments start (and seed their
// bracket) at start_date. Called by the gocron job every minute.
func (s *TournamentService) SweepStatuses(ctx context.Context, now time.Time) {
	var closing []models.Tournament
	if err := s.DB.WithContext(ctx).
		Where("status = ? AND registration_deadline IS NOT NULL AND registration_deadline <= ?", models.TournamentRegistration, now).
		Find(&closing).Error; err != nil {
		log.Printf("[SCHEDULER] sweep query failed: %v", err)
		return
	}
	for _, t := range closing {
		if _, err := s.AdvanceStatus(ctx, t.ID, models.TournamentUpcoming); err != nil {
			log.Printf("[SCHEDULER] failed to close registration for %s: %v", t.ID, err)
		} else {
			log.Printf("[SCHEDULER] registration closed for tournament %s", t.Name)
		}
	}

	var starting []models.Tournament
	if err := s.DB.WithContext(ctx).
		Where("status IN ? AND start_date <= ?", []string{models.TournamentRegistration, models.TournamentUpcoming}, now).
		Find(&starting).Error; err != nil {
		log.Printf("[SCHEDULER] sweep query failed: %v", err)
		return
	}
	for _, t := range starting {
		if _, err := s.AdvanceStatus(ctx, t.ID, models.TournamentActive); err != nil {
			// under-enrolled tournaments stay put and are logged, not failed
			log.Printf("[SCHEDULER] cannot start tournament %s: %v", t.ID, err)
			continue
		}
		log.Printf("[SCHEDULER] tournament %s is now active", t.Name)
	}
}

func (s *TournamentService) GetTournament(ctx context.Context, id string) (*models.Tournament, error) {
	t, err := s.fetchTournament(ctx, id)
	if err != nil {
		return nil, err
	}
	t.ParticipantCount = len(t.ParticipantIDs)
	t.AvailableSlots = t.MaxParticipants - len(t.ParticipantIDs)
	s.DB.WithContext(ctx).Where("tournament_id = ?", id).
		Order("round ASC, slot ASC").
		Find(&t.Matches)
	return t, nil
}

// --- Fiber endpoints ---

func (s *TournamentService) CreateTournamentEndpoint(c *fiber.Ctx) error {
	type Req struct {
		Name                 string     `json:"name"`
		Description          string     `json:"description"`
		Rules                string     `json:"rules"`
		ParticipantType      string     `json:"participant_type"`
		Format               string     `json:"format"`
		MaxParticipants      int        `json:"max_participants"`
		StartDate            time.Time  `json:"start_date"`
		RegistrationDeadline *time.Time `json:"registration_deadline"`
		Draft                bool       `json:"draft"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, errInvalidInput(CodeMissingField, "invalid JSON"))
	}
	creatorID, _ := c.Locals("user_id").(string)
	t, err := s.CreateTournament(c.Context(), CreateTournamentInput{
		Name:                 req.Name,
		Description:          req.Description,
		Rules:                req.Rules,
		CreatorID:            creatorID,
		ParticipantType:      req.ParticipantType,
		Format:               req.Format,
		MaxParticipants:      req.MaxParticipants,
		StartDate:            req.StartDate,
		RegistrationDeadline: req.RegistrationDeadline,
		Draft:                req.Draft,
	})
	if err != nil {
		return respondError(c, err)
	}
	return respondData(c, fiber.StatusCreated, t)
}

func (s *TournamentService) ListTournamentsEndpoint(c *fiber.Ctx) error {
	var tournaments []models.Tournament
	db := s.DB.Order("start_date ASC")
	if status := c.Query("status"); status != "" {
		db = db.Where("status = ?", status)
	}
	if err := db.Find(&tournaments).Error; err != nil {
		return respondError(c, errUpstream(CodeStoreError, "failed to fetch tournaments"))
	}
	for i := range tournaments {
		tournaments[i].ParticipantCount = len(tournaments[i].ParticipantIDs)
		tournaments[i].AvailableSlots = tournaments[i].MaxParticipants - len(tournaments[i].ParticipantIDs)
	}
	return respondData(c, fiber.StatusOK, tournaments)
}

func (s *TournamentService) GetTournamentEndpoint(c *fiber.Ctx) error {
	t, err := s.GetTournament(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return respondData(c, fiber.StatusOK, t)
}

func (s *TournamentService) AddParticipantEndpoint(c *fiber.Ctx) error {
	type Req struct {
		ParticipantID string `json:"participant_id"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, errInvalidInput(CodeMissingField, "invalid JSON"))
	}
	t, err := s.AddParticipant(c.Context(), c.Params("id"), req.ParticipantID)
	if err != nil {
		return respondError(c, err)
	}
	return respondData(c, fiber.StatusOK, t)
}

func (s *TournamentService) RemoveParticipantEndpoint(c *fiber.Ctx) error {
	t, err := s.RemoveParticipant(c.Context(), c.Params("id"), c.Params("participant_id"))
	if err != nil {
		return respondError(c, err)
	}
	return respondData(c, fiber.StatusOK, t)
}

func (s *TournamentService) UpdateTournamentEndpoint(c *fiber.Ctx) error {
	var patch TournamentPatch
	if err := c.BodyParser(&patch); err != nil {
		return respondError(c, errInvalidInput(CodeMissingField, "invalid JSON"))
	}
	t, err := s.UpdateTournament(c.Context(), c.Params("id"), patch)
	if err != nil {
		return respondError(c, err)
	}
	return respondData(c, fiber.StatusOK, t)
}

func (s *TournamentService) DeleteTournamentEndpoint(c *fiber.Ctx) error {
	if err := s.DeleteTournament(c.Context(), c.Params("id"), false); err != nil {
		return respondError(c, err)
	}
	return respondData(c, fiber.StatusOK, fiber.Map{"message": "tournament deleted"})
}

func (s *TournamentService) AdvanceStatusEndpoint(c *fiber.Ctx) error {
	type Req struct {
		Status string `json:"status"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, errInvalidInput(CodeMissingField, "invalid JSON"))
	}
	t, err := s.AdvanceStatus(c.Context(), c.Params("id"), req.Status)
	if err != nil {
		return respondError(c, err)
	}
	return respondData(c, fiber.StatusOK, t)
}

func (s *TournamentService) ListMatchesEndpoint(c *fiber.Ctx) error {
	var matches []models.TournamentMatch
	if err := s.DB.Where("tournament_id = ?", c.Params("id")).
		Order("round ASC, slot ASC").
		Find(&matches).Error; err != nil {
		return respondError(c, errUpstream(CodeStoreError, "failed to fetch matches"))
	}
	return respondData(c, fiber.StatusOK, matches)
}

// UploadBannerEndpoint stores a tournament banner image in R2.
func (s *TournamentService) UploadBannerEndpoint(c *fiber.Ctx) error {
	tournamentID := c.Params("id")
	file, err := c.FormFile("banner")
	if err != nil || file.Size == 0 {
		return respondError(c, errInvalidInput(CodeMissingField, "banner file is required"))
	}
	ext := filepath.Ext(file.Filename)
	if ext == "" {
		ext = ".jpg"
	}
	key := "tournaments/banners/" + uuid.NewString() + ext
	url, err := utils.UploadFileToR2(file, key)
	if err != nil {
		log.Printf("[TOURNAMENTS] banner upload failed for %s: %v", tournamentID, err)
		return respondError(c, errUpstream(CodeStoreError, "failed to upload banner"))
	}
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		t, ferr := s.fetchTournament(c.Context(), tournamentID)
		if ferr != nil {
			return respondError(c, ferr)
		}
		ok, uerr := s.casUpdateTournament(c.Context(), t.ID, t.Version, map[string]interface{}{"banner_url": url})
		if uerr != nil {
			return respondError(c, uerr)
		}
		if ok {
			return respondData(c, fiber.StatusOK, fiber.Map{"banner_url": url})
		}
	}
	return respondError(c, errConcurrent("tournament changed concurrently, retries exhausted"))
}
