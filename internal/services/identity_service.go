package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"eventhub-backend/internal/models"
	"eventhub-backend/internal/platform/metrics"
	"eventhub-backend/internal/utils"
)

// Identity-provider webhook event types
const (
	EventUserCreated = "user.created"
	EventUserUpdated = "user.updated"
	EventUserDeleted = "user.deleted"
)

// WebhookEvent is the envelope of an identity-provider delivery
type WebhookEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type identityEmail struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
}

type identityPhone struct {
	ID          string `json:"id"`
	PhoneNumber string `json:"phone_number"`
}

// IdentityUser is the provider's user record as delivered in webhooks
type IdentityUser struct {
	ID                    string          `json:"id"`
	FirstName             *string         `json:"first_name"`
	LastName              *string         `json:"last_name"`
	ImageURL              string          `json:"image_url"`
	EmailAddresses        []identityEmail `json:"email_addresses"`
	PrimaryEmailAddressID string          `json:"primary_email_address_id"`
	PhoneNumbers          []identityPhone `json:"phone_numbers"`
	PrimaryPhoneNumberID  string          `json:"primary_phone_number_id"`
	PublicMetadata        struct {
		Role string `json:"role"`
	} `json:"public_metadata"`
}

// PrimaryEmail returns the primary address, or the first one
func (u *IdentityUser) PrimaryEmail() string {
	for _, e := range u.EmailAddresses {
		if e.ID == u.PrimaryEmailAddressID {
			return e.EmailAddress
		}
	}
	if len(u.EmailAddresses) > 0 {
		return u.EmailAddresses[0].EmailAddress
	}
	return ""
}

// PrimaryPhone returns the primary number, or the first one
func (u *IdentityUser) PrimaryPhone() string {
	for _, p := range u.PhoneNumbers {
		if p.ID == u.PrimaryPhoneNumberID {
			return p.PhoneNumber
		}
	}
	if len(u.PhoneNumbers) > 0 {
		return u.PhoneNumbers[0].PhoneNumber
	}
	return ""
}

// IdentityService keeps local users in step with the identity provider
type IdentityService struct {
	db      *sqlx.DB
	log     *zap.Logger
	metrics *metrics.Manager
	events  EventPublisher
}

// NewIdentityService creates a new identity service
func NewIdentityService(db *sqlx.DB, log *zap.Logger, m *metrics.Manager, events EventPublisher) *IdentityService {
	return &IdentityService{db: db, log: log.Named("identity"), metrics: m, events: events}
}

// HandleWebhookEvent applies one verified webhook delivery.
// Unknown event types are acknowledged and ignored.
func (s *IdentityService) HandleWebhookEvent(ctx context.Context, event WebhookEvent) error {
	err := s.applyEvent(ctx, event)
	result := "ok"
	if err != nil {
		result = "error"
	}
	s.metrics.ObserveWebhook(event.Type, result)
	return err
}

func (s *IdentityService) applyEvent(ctx context.Context, event WebhookEvent) error {
	switch event.Type {
	case EventUserCreated, EventUserUpdated:
		var u IdentityUser
		if err := json.Unmarshal(event.Data, &u); err != nil {
			return utils.NewValidationError("data", "malformed user payload")
		}
		if u.ID == "" {
			return utils.NewValidationError("data.id", "is required")
		}
		return s.syncUser(ctx, &u, event.Type == EventUserCreated)

	case EventUserDeleted:
		var payload struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(event.Data, &payload); err != nil || payload.ID == "" {
			return utils.NewValidationError("data.id", "is required")
		}
		return s.DeleteUser(ctx, payload.ID)
	}

	s.log.Debug("ignoring webhook event", zap.String("type", event.Type))
	return nil
}

// syncUser inserts or updates the local record. The role is only taken from
// provider metadata on creation; afterwards it is owned locally.
func (s *IdentityService) syncUser(ctx context.Context, u *IdentityUser, created bool) error {
	now := utils.NowUTC()
	phone := utils.NormalizePhoneNumber(u.PrimaryPhone())
	role := models.UserRoleClient
	if r := models.UserRole(strings.ToUpper(u.PublicMetadata.Role)); created && r.IsValid() {
		role = r
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (id, email, first_name, last_name, phone, phone_country, avatar, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			phone = excluded.phone,
			phone_country = excluded.phone_country,
			avatar = excluded.avatar,
			updated_at = excluded.updated_at
	`, u.ID, utils.NormalizeEmail(u.PrimaryEmail()), utils.DerefString(u.FirstName), utils.DerefString(u.LastName),
		utils.SafeStringPointer(phone), utils.SafeStringPointer(utils.InferPhoneCountry(phone)),
		utils.SafeStringPointer(u.ImageURL), role, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}

	if created && role == models.UserRoleVendor {
		name := strings.TrimSpace(utils.DerefString(u.FirstName) + " " + utils.DerefString(u.LastName))
		if err := ensureVendorProfile(ctx, tx, u.ID, name); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit user sync: %w", err)
	}

	s.log.Info("synced user from identity provider", zap.String("user_id", u.ID), zap.Bool("created", created))
	return nil
}

// DeleteUser removes the local user and everything it owns. Unknown ids are a no-op.
func (s *IdentityService) DeleteUser(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", userID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		s.log.Debug("delete for unknown user ignored", zap.String("user_id", userID))
		return nil
	}

	s.log.Info("deleted user", zap.String("user_id", userID))
	publishEvent(ctx, s.events, s.log, SubjectUserDeleted, map[string]string{"userId": userID})
	return nil
}

// CurrentUser resolves the authenticated user, creating the local record on
// first sight when the webhook has not arrived yet.
func (s *IdentityService) CurrentUser(ctx context.Context, claims *SessionClaims) (*models.User, error) {
	user, err := s.GetUser(ctx, claims.UserID())
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now := utils.NowUTC()
	phone := utils.NormalizePhoneNumber(claims.Phone)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, first_name, last_name, phone, phone_country, avatar, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, claims.UserID(), utils.NormalizeEmail(claims.Email), claims.FirstName, claims.LastName,
		utils.SafeStringPointer(phone), utils.SafeStringPointer(utils.InferPhoneCountry(phone)),
		utils.SafeStringPointer(claims.ImageURL), models.UserRoleClient, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create user from session: %w", err)
	}

	s.log.Info("created user from session claims", zap.String("user_id", claims.UserID()))
	return s.GetUser(ctx, claims.UserID())
}

// GetUser loads a user with its vendor profile, if any
func (s *IdentityService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, "SELECT * FROM users WHERE id = ?", userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	profile, err := s.GetVendorProfile(ctx, userID)
	switch {
	case err == nil:
		user.VendorProfile = profile
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}
	return &user, nil
}

// GetRole returns the user's current role
func (s *IdentityService) GetRole(ctx context.Context, userID string) (models.UserRole, error) {
	var role models.UserRole
	err := s.db.GetContext(ctx, &role, "SELECT role FROM users WHERE id = ?", userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

// UpdateRole switches the user's role. Becoming a vendor creates the vendor
// profile if it does not exist; switching back keeps it.
func (s *IdentityService) UpdateRole(ctx context.Context, userID string, req models.UpdateRoleRequest) (*models.User, error) {
	if !req.Role.IsValid() {
		return nil, utils.NewValidationError("role", "must be one of: CLIENT VENDOR")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "UPDATE users SET role = ?, updated_at = ? WHERE id = ?", req.Role, utils.NowUTC(), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to update role: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}

	if req.Role == models.UserRoleVendor {
		name := strings.TrimSpace(req.BusinessName)
		if name == "" {
			if err := tx.GetContext(ctx, &name,
				"SELECT TRIM(first_name || ' ' || last_name) FROM users WHERE id = ?", userID); err != nil {
				return nil, fmt.Errorf("failed to load user name: %w", err)
			}
		}
		if err := ensureVendorProfile(ctx, tx, userID, name); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit role update: %w", err)
	}

	s.log.Info("updated user role", zap.String("user_id", userID), zap.String("role", string(req.Role)))
	return s.GetUser(ctx, userID)
}

// UpdatePreferences stores client browsing preferences
func (s *IdentityService) UpdatePreferences(ctx context.Context, userID string, req models.UpdatePreferencesRequest) (*models.User, error) {
	var verrs utils.ValidationErrors
	if req.BudgetMin.Valid {
		if ve := utils.ValidateAmount("budgetMin", req.BudgetMin.Decimal, true); ve != nil {
			verrs = append(verrs, *ve)
		}
	}
	if req.BudgetMax.Valid {
		if ve := utils.ValidateAmount("budgetMax", req.BudgetMax.Decimal, true); ve != nil {
			verrs = append(verrs, *ve)
		}
	}
	if req.BudgetMin.Valid && req.BudgetMax.Valid && req.BudgetMin.Decimal.GreaterThan(req.BudgetMax.Decimal) {
		verrs.Add("budgetMax", "must not be less than budgetMin")
	}
	if err := verrs.Err(); err != nil {
		return nil, err
	}

	categories := models.StringList(utils.RemoveDuplicates(req.PreferredCategories))
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET preferred_location = ?, preferred_categories = ?, budget_min = ?, budget_max = ?, updated_at = ?
		WHERE id = ?
	`, req.PreferredLocation, categories, req.BudgetMin, req.BudgetMax, utils.NowUTC(), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to update preferences: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.GetUser(ctx, userID)
}

// GetVendorProfile returns the vendor profile owned by userID
func (s *IdentityService) GetVendorProfile(ctx context.Context, userID string) (*models.VendorProfile, error) {
	var profile models.VendorProfile
	err := s.db.GetContext(ctx, &profile, "SELECT * FROM vendor_profiles WHERE user_id = ?", userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vendor profile: %w", err)
	}
	return &profile, nil
}

// UpdateVendorProfile applies the non-nil fields of req
func (s *IdentityService) UpdateVendorProfile(ctx context.Context, userID string, req models.VendorProfileUpdate) (*models.VendorProfile, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE vendor_profiles SET
			business_name = COALESCE(?, business_name),
			description = COALESCE(?, description),
			location = COALESCE(?, location),
			phone = COALESCE(?, phone),
			updated_at = ?
		WHERE user_id = ?
	`, req.BusinessName, req.Description, req.Location, req.Phone, utils.NowUTC(), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to update vendor profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.GetVendorProfile(ctx, userID)
}

// ensureVendorProfile creates the vendor profile for userID if it is missing
func ensureVendorProfile(ctx context.Context, tx *sqlx.Tx, userID, businessName string) error {
	if businessName == "" {
		businessName = "Vendor"
	}
	now := utils.NowUTC()
	_, err := tx.ExecContext(ctx, `
		INSERT INTO vendor_profiles (id, user_id, business_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO NOTHING
	`, newID(), userID, businessName, now, now)
	if err != nil {
		return fmt.Errorf("failed to create vendor profile: %w", err)
	}
	return nil
}

// vendorProfileID returns the id of the vendor profile owned by userID
func vendorProfileID(ctx context.Context, q sqlx.QueryerContext, userID string) (string, error) {
	var id string
	err := sqlx.GetContext(ctx, q, &id, "SELECT id FROM vendor_profiles WHERE user_id = ?", userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrForbidden
	}
	if err != nil {
		return "", fmt.Errorf("failed to get vendor profile: %w", err)
	}
	return id, nil
}
