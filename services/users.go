package services

import (
	"context"
	"errors"
	"log"
	"strconv"
	"strings"
	"time"

	"clan-roster-system/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// UserDirectory is the user-side slice of the roster store. The clan and
// tournament services go through it for every cross-row write so the
// compensating-rollback paths can be exercised against a fake in tests.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (*models.RosterUser, error)
	SetUserClan(ctx context.Context, userID string, clanID *string) error
}

type gormUserDirectory struct {
	db *gorm.DB
}

func (d *gormUserDirectory) GetUser(ctx context.Context, id string) (*models.RosterUser, error) {
	var user models.RosterUser
	if err := d.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errNotFound(CodeUserNotFound, "user not found")
		}
		return nil, errUpstream(CodeStoreError, "failed to fetch user")
	}
	return &user, nil
}

func (d *gormUserDirectory) SetUserClan(ctx context.Context, userID string, clanID *string) error {
	res := d.db.WithContext(ctx).Model(&models.RosterUser{}).
		Where("id = ?", userID).
		Update("clan_id", clanID)
	if res.Error != nil {
		return errUpstream(CodeStoreError, "failed to update user clan reference")
	}
	if res.RowsAffected == 0 {
		return errNotFound(CodeUserNotFound, "user not found")
	}
	return nil
}

type UserService struct {
	DB *gorm.DB
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{DB: db}
}

// EnsureUser creates the local user row on first authentication. Subsequent
// calls refresh username/last-seen and return the existing row.
func (s *UserService) EnsureUser(ctx context.Context, id, username, email string) (*models.RosterUser, error) {
	if id == "" || username == "" {
		return nil, errInvalidInput(CodeMissingField, "id and username are required")
	}
	var user models.RosterUser
	err := s.DB.WithContext(ctx).First(&user, "id = ?", id).Error
	if err == nil {
		now := time.Now()
		updates := map[string]interface{}{"last_seen": &now}
		if !user.Anonymized && username != user.Username {
			updates["username"] = username
		}
		if err := s.DB.WithContext(ctx).Model(&user).Updates(updates).Error; err != nil {
			log.Printf("[USERS] failed to refresh user %s: %v", id, err)
		}
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errUpstream(CodeStoreError, "failed to fetch user")
	}
	user = models.RosterUser{
		ID:       id,
		Username: username,
		Email:    email,
		Role:     models.RolePlayer,
		Status:   models.StatusActive,
	}
	if err := s.DB.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, errUpstream(CodeStoreError, "failed to create user")
	}
	return &user, nil
}

func (s *UserService) GetUser(ctx context.Context, id string) (*models.RosterUser, error) {
	return (&gormUserDirectory{db: s.DB}).GetUser(ctx, id)
}

// AnonymizeUser is the deletion path: the row survives for referential
// integrity, but email and display name are scrubbed.
func (s *UserService) AnonymizeUser(ctx context.Context, id string) (*models.RosterUser, error) {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	updates := map[string]interface{}{
		"username":   "deleted-" + short,
		"email":      "",
		"avatar_url": nil,
		"anonymized": true,
	}
	if err := s.DB.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		return nil, errUpstream(CodeStoreError, "failed to anonymize user")
	}
	s.DB.WithContext(ctx).First(user, "id = ?", id)
	return user, nil
}

// --- Fiber endpoints ---

func (s *UserService) EnsureUserEndpoint(c *fiber.Ctx) error {
	type Req struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		Email    string `json:"email"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, errInvalidInput(CodeMissingField, "invalid JSON"))
	}
	user, err := s.EnsureUser(c.Context(), req.ID, req.Username, req.Email)
	if err != nil {
		return respondError(c, err)
	}
	return respondData(c, fiber.StatusOK, user)
}

func (s *UserService) GetUserEndpoint(c *fiber.Ctx) error {
	user, err := s.GetUser(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return respondData(c, fiber.StatusOK, user)
}

// SearchUsersEndpoint searches the local user mirror by username or email.
func (s *UserService) SearchUsersEndpoint(c *fiber.Ctx) error {
	query := c.Query("q", "")
	limit, err := strconv.Atoi(c.Query("limit", "50"))
	if err != nil || limit <= 0 || limit > 100 {
		limit = 50
	}

	var users []models.RosterUser
	db := s.DB.Model(&models.RosterUser{}).Limit(limit)
	if query != "" {
		searchTerm := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
		db = db.Where("LOWER(username) LIKE ? OR LOWER(email) LIKE ?", searchTerm, searchTerm)
	}
	if err := db.Order("username ASC").Find(&users).Error; err != nil {
		return respondError(c, errUpstream(CodeStoreError, "search failed"))
	}

	type UserSummary struct {
		ID        string  `json:"id"`
		Username  string  `json:"username"`
		AvatarURL *string `json:"avatar_url,omitempty"`
		Role      string  `json:"role"`
		Status    string  `json:"status"`
		ClanID    *string `json:"clan_id,omitempty"`
	}
	res := make([]UserSummary, len(users))
	for i, u := range users {
		res[i] = UserSummary{
			ID:        u.ID,
			Username:  u.Username,
			AvatarURL: u.AvatarURL,
			Role:      u.Role,
			Status:    u.Status,
			ClanID:    u.ClanID,
		}
	}
	return respondData(c, fiber.StatusOK, res)
}

func (s *UserService) AnonymizeUserEndpoint(c *fiber.Ctx) error {
	user, err := s.AnonymizeUser(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return respondData(c, fiber.StatusOK, user)
}
