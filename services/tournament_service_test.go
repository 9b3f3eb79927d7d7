package services

import (
	"context"
	"testing"
	"time"

	"clan-roster-system/models"

	"gorm.io/gorm"
)

func newTestTournamentService(db *gorm.DB, now time.Time) *TournamentService {
	service := NewTournamentService(db)
	service.now = func() time.Time { return now }
	return service
}

func createTestTournament(t *testing.T, service *TournamentService, maxParticipants int, deadline *time.Time) *models.Tournament {
	t.Helper()
	tournament, err := service.CreateTournament(context.Background(), CreateTournamentInput{
		Name:                 "Summer Cup",
		CreatorID:            "organizer-1",
		MaxParticipants:      maxParticipants,
		StartDate:            service.now().Add(48 * time.Hour),
		RegistrationDeadline: deadline,
	})
	if err != nil {
		t.Fatalf("Failed to create tournament: %v", err)
	}
	return tournament
}

func TestCreateTournament_Validation(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	service := newTestTournamentService(db, now)

	_, err := service.CreateTournament(context.Background(), CreateTournamentInput{
		Name: "Cup", CreatorID: "o", MaxParticipants: 1, StartDate: now.Add(time.Hour),
	})
	assertCode(t, err, CodeInvalidMaxParticipants)

	_, err = service.CreateTournament(context.Background(), CreateTournamentInput{
		Name: "Cup", CreatorID: "o", MaxParticipants: 8, StartDate: now.Add(-time.Hour),
	})
	assertCode(t, err, CodeInvalidStartDate)

	start := now.Add(24 * time.Hour)
	late := start.Add(time.Hour)
	_, err = service.CreateTournament(context.Background(), CreateTournamentInput{
		Name: "Cup", CreatorID: "o", MaxParticipants: 8, StartDate: start, RegistrationDeadline: &late,
	})
	assertCode(t, err, CodeInvalidDeadline)
}

func TestCreateTournament_Defaults(t *testing.T) {
	db := setupTestDB(t)
	service := newTestTournamentService(db, time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))

	tournament := createTestTournament(t, service, 8, nil)
	if tournament.Status != models.TournamentRegistration {
		t.Errorf("Expected status registration, got %s", tournament.Status)
	}
	if tournament.ParticipantType != models.ParticipantTypeUser {
		t.Errorf("Expected participant_type user, got %s", tournament.ParticipantType)
	}
	if tournament.Format != models.FormatSingleElim {
		t.Errorf("Expected format single_elim, got %s", tournament.Format)
	}
	if len(tournament.ParticipantIDs) != 0 {
		t.Errorf("Expected empty participant list, got %v", tournament.ParticipantIDs)
	}
	if tournament.Slug != "summer-cup" {
		t.Errorf("Expected slug summer-cup, got %s", tournament.Slug)
	}
}

func TestCreateTournament_Draft(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	service := newTestTournamentService(db, now)

	tournament, err := service.CreateTournament(context.Background(), CreateTournamentInput{
		Name: "Cup", CreatorID: "o", MaxParticipants: 8, StartDate: now.Add(time.Hour), Draft: true,
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if tournament.Status != models.TournamentDraft {
		t.Errorf("Expected status draft, got %s", tournament.Status)
	}

	// drafts do not accept enrollment
	createTestUser(t, db, "player-1")
	_, err = service.AddParticipant(context.Background(), tournament.ID, "player-1")
	assertCode(t, err, CodeRegistrationClosed)
}

func TestAddParticipant_Success(t *testing.T) {
	db := setupTestDB(t)
	createTestUser(t, db, "player-1")
	service := newTestTournamentService(db, time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))

	tournament := createTestTournament(t, service, 8, nil)
	updated, err := service.AddParticipant(context.Background(), tournament.ID, "player-1")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(updated.ParticipantIDs) != 1 || updated.ParticipantIDs[0] != "player-1" {
		t.Errorf("Expected participant_ids [player-1], got %v", updated.ParticipantIDs)
	}
}

func TestAddParticipant_DuplicateEnrollment(t *testing.T) {
	db := setupTestDB(t)
	createTestUser(t, db, "player-1")
	service := newTestTournamentService(db, time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))

	tournament := createTestTournament(t, service, 8, nil)
	if _, err := service.AddParticipant(context.Background(), tournament.ID, "player-1"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	_, err := service.AddParticipant(context.Background(), tournament.ID, "player-1")
	assertCode(t, err, CodeAlreadyParticipating)
}

func TestAddParticipant_FullLeavesStateUnchanged(t *testing.T) {
	db := setupTestDB(t)
	createTestUser(t, db, "player-1")
	createTestUser(t, db, "player-2")
	createTestUser(t, db, "late")
	service := newTestTournamentService(db, time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))

	tournament := createTestTournament(t, service, 2, nil)
	service.AddParticipant(context.Background(), tournament.ID, "player-1")
	service.AddParticipant(context.Background(), tournament.ID, "player-2")

	_, err := service.AddParticipant(context.Background(), tournament.ID, "late")
	assertCode(t, err, CodeTournamentFull)

	fresh, _ := service.GetTournament(context.Background(), tournament.ID)
	if len(fresh.ParticipantIDs) != 2 {
		t.Errorf("Expected enrollment unchanged at 2, got %v", fresh.ParticipantIDs)
	}
}

func TestAddParticipant_DeadlinePassed(t *testing.T) {
	db := setupTestDB(t)
	createTestUser(t, db, "player-1")
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	service := newTestTournamentService(db, now)

	deadline := now.Add(time.Hour)
	tournament := createTestTournament(t, service, 8, &deadline)

	// the clock moves past the deadline while status is still registration
	service.now = func() time.Time { return deadline.Add(time.Minute) }
	_, err := service.AddParticipant(context.Background(), tournament.ID, "player-1")
	assertCode(t, err, CodeRegistrationDeadlinePassed)
}

func TestAddParticipant_BannedUser(t *testing.T) {
	db := setupTestDB(t)
	banned := createTestUser(t, db, "banned")
	db.Model(banned).Update("status", models.StatusBanned)
	service := newTestTournamentService(db, time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))

	tournament := createTestTournament(t, service, 8, nil)
	_, err := service.AddParticipant(context.Background(), tournament.ID, "banned")
	assertCode(t, err, CodeBanned)
}

func TestAddParticipant_ClanEntrant(t *testing.T) {
	db := setupTestDB(t)
	createTestUser(t, db, "leader-1")
	clanService := NewClanService(db)
	clan, _ := clanService.CreateClan(context.Background(), "Alpha", "AA", "leader-1", 10, "")

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	service := newTestTournamentService(db, now)
	tournament, err := service.CreateTournament(context.Background(), CreateTournamentInput{
		Name: "Clan Wars", CreatorID: "o", ParticipantType: models.ParticipantTypeClan,
		MaxParticipants: 8, StartDate: now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if _, err := service.AddParticipant(context.Background(), tournament.ID, clan.ID); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	_, err = service.AddParticipant(context.Background(), tournament.ID, "no-such-clan")
	assertCode(t, err, CodeClanNotFound)
}

func TestRemoveParticipant(t *testing.T) {
	db := setupTestDB(t)
	createTestUser(t, db, "player-1")
	service := newTestTournamentService(db, time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))

	tournament := createTestTournament(t, service, 8, nil)
	service.AddParticipant(context.Background(), tournament.ID, "player-1")

	_, err := service.RemoveParticipant(context.Background(), tournament.ID, "ghost")
	assertCode(t, err, CodeNotParticipating)

	updated, err := service.RemoveParticipant(context.Background(), tournament.ID, "player-1")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(updated.ParticipantIDs) != 0 {
		t.Errorf("Expected empty participant list, got %v", updated.ParticipantIDs)
	}
}

func TestRemoveParticipant_FrozenAfterStart(t *testing.T) {
	db := setupTestDB(t)
	createTestUser(t, db, "player-1")
	createTestUser(t, db, "player-2")
	service := newTestTournamentService(db, time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))

	tournament := createTestTournament(t, service, 8, nil)
	service.AddParticipant(context.Background(), tournament.ID, "player-1")
	service.AddParticipant(context.Background(), tournament.ID, "player-2")
	if _, err := service.AdvanceStatus(context.Background(), tournament.ID, models.TournamentActive); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	_, err := service.RemoveParticipant(context.Background(), tournament.ID, "player-1")
	assertCode(t, err, CodeTournamentStarted)
}

func TestUpdateTournament_MaxParticipantsBelowEnrollment(t *testing.T) {
	db := setupTestDB(t)
	createTestUser(t, db, "player-1")
	createTestUser(t, db, "player-2")
	createTestUser(t, db, "player-3")
	service := newTestTournamentService(db, time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))

	tournament := createTestTournament(t, service, 8, nil)
	for _, id := range []string{"player-1", "player-2", "player-3"} {
		service.AddParticipant(context.Background(), tournament.ID, id)
	}

	two := 2
	_, err := service.UpdateTournament(context.Background(), tournament.ID, TournamentPatch{MaxParticipants: &two})
	assertCode(t, err, CodeMaxParticipantsTooLow)
}

func TestAdvanceStatus_ForwardOnly(t *testing.T) {
	db := setupTestDB(t)
	createTestUser(t, db, "player-1")
	createTestUser(t, db, "player-2")
	service := newTestTournamentService(db, time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))

	tournament := createTestTournament(t, service, 8, nil)
	service.AddParticipant(context.Background(), tournament.ID, "player-1")
	service.AddParticipant(context.Background(), tournament.ID, "player-2")

	if _, err := service.AdvanceStatus(context.Background(), tournament.ID, models.TournamentActive); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	_, err := service.AdvanceStatus(context.Background(), tournament.ID, models.TournamentRegistration)
	assertCode(t, err, CodeInvalidStatusTransition)

	_, err = service.AdvanceStatus(context.Background(), tournament.ID, "sideways")
	assertCode(t, err, CodeInvalidStatusTransition)
}

func TestAdvanceStatus_RequiresTwoParticipants(t *testing.T) {
	db := setupTestDB(t)
	createTestUser(t, db, "player-1")
	service := newTestTournamentService(db, time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))

	tournament := createTestTournament(t, service, 8, nil)
	service.AddParticipant(context.Background(), tournament.ID, "player-1")

	_, err := service.AdvanceStatus(context.Background(), tournament.ID, models.TournamentActive)
	assertCode(t, err, CodeNotEnoughParticipants)
}

func TestAdvanceStatus_SeedsBracketInEnrollmentOrder(t *testing.T) {
	db := setupTestDB(t)
	for _, id := range []string{"p1", "p2", "p3", "p4"} {
		createTestUser(t, db, id)
	}
	service := newTestTournamentService(db, time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))

	tournament := createTestTournament(t, service, 8, nil)
	for _, id := range []string{"p1", "p2", "p3", "p4"} {
		service.AddParticipant(context.Background(), tournament.ID, id)
	}

	updated, err := service.AdvanceStatus(context.Background(), tournament.ID, models.TournamentActive)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if updated.Status != models.TournamentActive {
		t.Errorf("Expected status active, got %s", updated.Status)
	}

	full, _ := service.GetTournament(context.Background(), tournament.ID)
	if len(full.Matches) != 2 {
		t.Fatalf("Expected 2 round-1 matches, got %d", len(full.Matches))
	}
	if full.Matches[0].Player1ID != "p1" || full.Matches[0].Player2ID != "p2" {
		t.Errorf("Expected first match p1 vs p2, got %s vs %s", full.Matches[0].Player1ID, full.Matches[0].Player2ID)
	}
	if full.Matches[1].Player1ID != "p3" || full.Matches[1].Player2ID != "p4" {
		t.Errorf("Expected second match p3 vs p4, got %s vs %s", full.Matches[1].Player1ID, full.Matches[1].Player2ID)
	}
}

func TestAdvanceStatus_OddCountGetsBye(t *testing.T) {
	db := setupTestDB(t)
	for _, id := range []string{"p1", "p2", "p3"} {
		createTestUser(t, db, id)
	}
	service := newTestTournamentService(db, time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))

	tournament := createTestTournament(t, service, 8, nil)
	for _, id := range []string{"p1", "p2", "p3"} {
		service.AddParticipant(context.Background(), tournament.ID, id)
	}
	service.AdvanceStatus(context.Background(), tournament.ID, models.TournamentActive)

	full, _ := service.GetTournament(context.Background(), tournament.ID)
	if len(full.Matches) != 2 {
		t.Fatalf("Expected 2 matches, got %d", len(full.Matches))
	}
	bye := full.Matches[1]
	if bye.Status != models.MatchBye {
		t.Errorf("Expected bye status, got %s", bye.Status)
	}
	if bye.Player1ID != "p3" || bye.WinnerID != "p3" {
		t.Errorf("Expected p3 to advance on a bye, got player %s winner %s", bye.Player1ID, bye.WinnerID)
	}
}

func TestAdvanceStatus_ActivationIsAtomic(t *testing.T) {
	db := setupTestDB(t)
	createTestUser(t, db, "p1")
	createTestUser(t, db, "p2")
	service := newTestTournamentService(db, time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))

	tournament := createTestTournament(t, service, 8, nil)
	service.AddParticipant(context.Background(), tournament.ID, "p1")
	service.AddParticipant(context.Background(), tournament.ID, "p2")

	// seeding cannot land, so the status flip must roll back with it
	if err := db.Migrator().DropTable(&models.TournamentMatch{}); err != nil {
		t.Fatalf("Failed to drop match table: %v", err)
	}

	_, err := service.AdvanceStatus(context.Background(), tournament.ID, models.TournamentActive)
	if err == nil {
		t.Fatal("Expected activation to fail without a match table")
	}

	fresh, _ := service.GetTournament(context.Background(), tournament.ID)
	if fresh.Status != models.TournamentRegistration {
		t.Errorf("Expected status rolled back to registration, got %s", fresh.Status)
	}
}

func TestDeleteTournament_ActiveRequiresForce(t *testing.T) {
	db := setupTestDB(t)
	createTestUser(t, db, "p1")
	createTestUser(t, db, "p2")
	service := newTestTournamentService(db, time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))

	tournament := createTestTournament(t, service, 8, nil)
	service.AddParticipant(context.Background(), tournament.ID, "p1")
	service.AddParticipant(context.Background(), tournament.ID, "p2")
	service.AdvanceStatus(context.Background(), tournament.ID, models.TournamentActive)

	err := service.DeleteTournament(context.Background(), tournament.ID, false)
	assertCode(t, err, CodeTournamentActive)

	if err := service.DeleteTournament(context.Background(), tournament.ID, true); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	var matches int64
	db.Model(&models.TournamentMatch{}).Where("tournament_id = ?", tournament.ID).Count(&matches)
	if matches != 0 {
		t.Errorf("Expected matches cascaded, found %d", matches)
	}
	_, err = service.GetTournament(context.Background(), tournament.ID)
	assertCode(t, err, CodeTournamentNotFound)
}

func TestSweepStatuses(t *testing.T) {
	db := setupTestDB(t)
	createTestUser(t, db, "p1")
	createTestUser(t, db, "p2")
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	service := newTestTournamentService(db, now)

	// deadline elapses before start: registration closes
	deadline := now.Add(time.Hour)
	closing := createTestTournament(t, service, 8, &deadline)

	// start elapses with enough entrants: goes active and seeds
	starting := createTestTournament(t, service, 8, nil)
	service.AddParticipant(context.Background(), starting.ID, "p1")
	service.AddParticipant(context.Background(), starting.ID, "p2")
	db.Model(&models.Tournament{}).Where("id = ?", starting.ID).Update("start_date", now.Add(time.Hour))

	// start elapses under-enrolled: stays put
	short := createTestTournament(t, service, 8, nil)
	db.Model(&models.Tournament{}).Where("id = ?", short.ID).Update("start_date", now.Add(time.Hour))

	service.SweepStatuses(context.Background(), now.Add(2*time.Hour))

	closed, _ := service.GetTournament(context.Background(), closing.ID)
	if closed.Status != models.TournamentUpcoming {
		t.Errorf("Expected registration closed to upcoming, got %s", closed.Status)
	}

	started, _ := service.GetTournament(context.Background(), starting.ID)
	if started.Status != models.TournamentActive {
		t.Errorf("Expected started tournament active, got %s", started.Status)
	}
	if len(started.Matches) != 1 {
		t.Errorf("Expected 1 seeded match, got %d", len(started.Matches))
	}

	stuck, _ := service.GetTournament(context.Background(), short.ID)
	if stuck.Status != models.TournamentRegistration {
		t.Errorf("Expected under-enrolled tournament to stay in registration, got %s", stuck.Status)
	}
}
