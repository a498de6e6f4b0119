package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"eventhub-backend/internal/models"
	"eventhub-backend/internal/utils"
)

const (
	defaultPageSize  = 20
	maxListingImages = 20
)

var allowedImageTypes = []string{"image/jpeg", "image/png", "image/webp"}

const listingSelect = `
	SELECT l.*, vp.user_id AS vendor_user_id, vp.business_name AS vendor_name
	FROM service_listings l
	JOIN vendor_profiles vp ON vp.id = l.vendor_id`

// CatalogService manages vendor-owned service listings
type CatalogService struct {
	db          *sqlx.DB
	log         *zap.Logger
	media       MediaStore
	maxFileSize int64
}

// NewCatalogService creates a catalog service. media may be nil when uploads are disabled.
func NewCatalogService(db *sqlx.DB, log *zap.Logger, media MediaStore, maxFileSize int64) *CatalogService {
	return &CatalogService{db: db, log: log.Named("catalog"), media: media, maxFileSize: maxFileSize}
}

func validateListingInput(in *models.ListingInput) error {
	var verrs utils.ValidationErrors
	if ve := utils.ValidateAmount("price", in.Price, false); ve != nil {
		verrs = append(verrs, *ve)
	}
	if in.PriceMin.Valid {
		if ve := utils.ValidateAmount("priceMin", in.PriceMin.Decimal, true); ve != nil {
			verrs = append(verrs, *ve)
		}
	}
	if in.PriceMax.Valid {
		if ve := utils.ValidateAmount("priceMax", in.PriceMax.Decimal, true); ve != nil {
			verrs = append(verrs, *ve)
		}
	}
	if in.PriceMin.Valid && in.PriceMax.Valid && in.PriceMin.Decimal.GreaterThan(in.PriceMax.Decimal) {
		verrs.Add("priceMax", "must not be less than priceMin")
	}
	if in.MinCapacity != nil && in.MaxCapacity != nil && *in.MinCapacity > *in.MaxCapacity {
		verrs.Add("maxCapacity", "must not be less than minCapacity")
	}
	if len(in.Images) > maxListingImages {
		verrs.Add("images", fmt.Sprintf("must have at most %d items", maxListingImages))
	}
	return verrs.Err()
}

// CreateListing publishes a new listing for the vendor identified by userID
func (s *CatalogService) CreateListing(ctx context.Context, userID string, in models.ListingInput) (*models.ServiceListing, error) {
	if err := validateListingInput(&in); err != nil {
		return nil, err
	}

	var vendorID string
	err := s.db.GetContext(ctx, &vendorID, `
		SELECT vp.id FROM vendor_profiles vp
		JOIN users u ON u.id = vp.user_id
		WHERE vp.user_id = ? AND u.role = ?
	`, userID, models.UserRoleVendor)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrForbidden
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vendor profile: %w", err)
	}

	isActive := true
	if in.IsActive != nil {
		isActive = *in.IsActive
	}

	id := newID()
	now := utils.NowUTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO service_listings (
			id, vendor_id, name, description, category, price, price_min, price_max,
			location, min_capacity, max_capacity, images, is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, vendorID, strings.TrimSpace(in.Name), in.Description, strings.TrimSpace(in.Category),
		utils.RoundMoney(in.Price), in.PriceMin, in.PriceMax, in.Location, in.MinCapacity, in.MaxCapacity,
		models.StringList(in.Images), isActive, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create listing: %w", err)
	}

	s.log.Info("listing created", zap.String("listing_id", id), zap.String("vendor_id", vendorID))
	return s.GetListing(ctx, id)
}

// GetListing returns a listing by id, active or not
func (s *CatalogService) GetListing(ctx context.Context, id string) (*models.ServiceListing, error) {
	return getListing(ctx, s.db, id)
}

func getListing(ctx context.Context, q sqlx.QueryerContext, id string) (*models.ServiceListing, error) {
	var listing models.ServiceListing
	err := sqlx.GetContext(ctx, q, &listing, listingSelect+" WHERE l.id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	return &listing, nil
}

// ownedListing loads a listing and checks userID owns it
func (s *CatalogService) ownedListing(ctx context.Context, userID, id string) (*models.ServiceListing, error) {
	listing, err := s.GetListing(ctx, id)
	if err != nil {
		return nil, err
	}
	if listing.VendorUserID != userID {
		return nil, ErrForbidden
	}
	return listing, nil
}

// UpdateListing replaces the listing's fields. Nil images or isActive keep the current value.
func (s *CatalogService) UpdateListing(ctx context.Context, userID, id string, in models.ListingInput) (*models.ServiceListing, error) {
	current, err := s.ownedListing(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := validateListingInput(&in); err != nil {
		return nil, err
	}

	images := current.Images
	if in.Images != nil {
		images = in.Images
	}
	isActive := current.IsActive
	if in.IsActive != nil {
		isActive = *in.IsActive
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE service_listings SET
			name = ?, description = ?, category = ?, price = ?, price_min = ?, price_max = ?,
			location = ?, min_capacity = ?, max_capacity = ?, images = ?, is_active = ?, updated_at = ?
		WHERE id = ?
	`, strings.TrimSpace(in.Name), in.Description, strings.TrimSpace(in.Category), utils.RoundMoney(in.Price),
		in.PriceMin, in.PriceMax, in.Location, in.MinCapacity, in.MaxCapacity, images, isActive, utils.NowUTC(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update listing: %w", err)
	}

	return s.GetListing(ctx, id)
}

// DeleteListing removes a listing. Booking items keep their snapshot with the
// listing reference cleared; cart lines are left dangling.
func (s *CatalogService) DeleteListing(ctx context.Context, userID, id string) error {
	if _, err := s.ownedListing(ctx, userID, id); err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "UPDATE booking_items SET service_id = NULL WHERE service_id = ?", id); err != nil {
		return fmt.Errorf("failed to detach booking items: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM service_listings WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete listing: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit listing delete: %w", err)
	}

	s.log.Info("listing deleted", zap.String("listing_id", id))
	return nil
}

// ListListings browses active listings
func (s *CatalogService) ListListings(ctx context.Context, filter models.ListingFilter) ([]models.ServiceListing, int, error) {
	where := []string{"l.is_active = 1"}
	var args []interface{}

	if filter.Category != "" {
		where = append(where, "l.category = ?")
		args = append(args, filter.Category)
	}
	if filter.Location != "" {
		where = append(where, "l.location LIKE ?")
		args = append(args, "%"+filter.Location+"%")
	}
	if filter.Search != "" {
		where = append(where, "(l.name LIKE ? OR l.description LIKE ?)")
		term := "%" + filter.Search + "%"
		args = append(args, term, term)
	}
	if filter.MinPrice != nil {
		where = append(where, "CAST(l.price AS REAL) >= ?")
		args = append(args, filter.MinPrice.InexactFloat64())
	}
	if filter.MaxPrice != nil {
		where = append(where, "CAST(l.price AS REAL) <= ?")
		args = append(args, filter.MaxPrice.InexactFloat64())
	}
	if filter.Guests > 0 {
		where = append(where, "(l.min_capacity IS NULL OR l.min_capacity <= ?) AND (l.max_capacity IS NULL OR l.max_capacity >= ?)")
		args = append(args, filter.Guests, filter.Guests)
	}
	whereClause := " WHERE " + strings.Join(where, " AND ")

	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM service_listings l"+whereClause, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count listings: %w", err)
	}

	orderBy := " ORDER BY l.created_at DESC"
	switch filter.SortBy {
	case "price_asc":
		orderBy = " ORDER BY CAST(l.price AS REAL) ASC, l.created_at DESC"
	case "price_desc":
		orderBy = " ORDER BY CAST(l.price AS REAL) DESC, l.created_at DESC"
	case "name":
		orderBy = " ORDER BY l.name COLLATE NOCASE ASC"
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}

	listings := []models.ServiceListing{}
	query := listingSelect + whereClause + orderBy + " LIMIT ? OFFSET ?"
	if err := s.db.SelectContext(ctx, &listings, query, append(args, limit, filter.Offset)...); err != nil {
		return nil, 0, fmt.Errorf("failed to list listings: %w", err)
	}
	return listings, total, nil
}

// ListVendorListings returns all listings of the vendor, including inactive ones
func (s *CatalogService) ListVendorListings(ctx context.Context, userID string) ([]models.ServiceListing, error) {
	listings := []models.ServiceListing{}
	err := s.db.SelectContext(ctx, &listings, listingSelect+" WHERE vp.user_id = ? ORDER BY l.created_at DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list vendor listings: %w", err)
	}
	return listings, nil
}

// CategoryCounts returns the number of active listings per category
func (s *CatalogService) CategoryCounts(ctx context.Context) ([]models.CategoryCount, error) {
	counts := []models.CategoryCount{}
	err := s.db.SelectContext(ctx, &counts, `
		SELECT category, COUNT(*) AS count FROM service_listings
		WHERE is_active = 1
		GROUP BY category
		ORDER BY count DESC, category ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count categories: %w", err)
	}
	return counts, nil
}

// UploadListingMedia stores an image and appends its URL to the listing
func (s *CatalogService) UploadListingMedia(ctx context.Context, userID, id, fileName, contentType string, data []byte) (*models.ServiceListing, error) {
	if s.media == nil {
		return nil, ErrMediaDisabled
	}
	listing, err := s.ownedListing(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	var verrs utils.ValidationErrors
	if !utils.Contains(allowedImageTypes, contentType) {
		verrs.Add("file", "must be a JPEG, PNG or WebP image")
	}
	if s.maxFileSize > 0 && int64(len(data)) > s.maxFileSize {
		verrs.Add("file", fmt.Sprintf("must be at most %d bytes", s.maxFileSize))
	}
	if len(listing.Images) >= maxListingImages {
		verrs.Add("images", fmt.Sprintf("must have at most %d items", maxListingImages))
	}
	if err := verrs.Err(); err != nil {
		return nil, err
	}

	url, err := s.media.Upload(ctx, fileName, contentType, data)
	if err != nil {
		return nil, fmt.Errorf("failed to upload media: %w", err)
	}

	images := append(listing.Images, url)
	if _, err := s.db.ExecContext(ctx, "UPDATE service_listings SET images = ?, updated_at = ? WHERE id = ?",
		images, utils.NowUTC(), id); err != nil {
		return nil, fmt.Errorf("failed to save media url: %w", err)
	}

	s.log.Info("listing media uploaded", zap.String("listing_id", id), zap.String("url", url))
	return s.GetListing(ctx, id)
}
