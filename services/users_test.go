package services

import (
	"context"
	"strings"
	"testing"

	"clan-roster-system/models"
)

func TestEnsureUser_CreatesThenRefreshes(t *testing.T) {
	db := setupTestDB(t)
	service := NewUserService(db)

	user, err := service.EnsureUser(context.Background(), "ext-1", "original", "o@example.com")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if user.Role != models.RolePlayer || user.Status != models.StatusActive {
		t.Errorf("Expected fresh player/active defaults, got %s/%s", user.Role, user.Status)
	}

	if _, err := service.EnsureUser(context.Background(), "ext-1", "renamed", "o@example.com"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	var count int64
	db.Model(&models.RosterUser{}).Count(&count)
	if count != 1 {
		t.Errorf("Expected 1 user row, got %d", count)
	}
	var fresh models.RosterUser
	db.First(&fresh, "id = ?", "ext-1")
	if fresh.Username != "renamed" {
		t.Errorf("Expected username refreshed, got %s", fresh.Username)
	}
	if fresh.LastSeen == nil {
		t.Error("Expected last_seen stamped")
	}
}

func TestAnonymizeUser(t *testing.T) {
	db := setupTestDB(t)
	avatar := "https://cdn.example.com/a.png"
	user := &models.RosterUser{
		ID: "ext-12345678-abc", Username: "visible", Email: "v@example.com",
		AvatarURL: &avatar, Status: models.StatusActive,
	}
	db.Create(user)
	service := NewUserService(db)

	anon, err := service.AnonymizeUser(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !strings.HasPrefix(anon.Username, "deleted-") {
		t.Errorf("Expected scrubbed username, got %s", anon.Username)
	}
	if anon.Email != "" || anon.AvatarURL != nil {
		t.Errorf("Expected email and avatar scrubbed, got %q %v", anon.Email, anon.AvatarURL)
	}
	if !anon.Anonymized {
		t.Error("Expected anonymized flag set")
	}

	// a later sync must not resurrect the display name
	if _, err := service.EnsureUser(context.Background(), user.ID, "visible", "v@example.com"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	var fresh models.RosterUser
	db.First(&fresh, "id = ?", user.ID)
	if !strings.HasPrefix(fresh.Username, "deleted-") {
		t.Errorf("Expected anonymized username preserved, got %s", fresh.Username)
	}
}
