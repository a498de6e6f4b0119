package services

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"eventhub-backend/internal/models"
	"eventhub-backend/internal/platform/metrics"
	"eventhub-backend/internal/utils"
)

// FavoriteService manages each user's saved listings
type FavoriteService struct {
	db      *sqlx.DB
	log     *zap.Logger
	metrics *metrics.Manager
}

// NewFavoriteService creates a new favorite service
func NewFavoriteService(db *sqlx.DB, log *zap.Logger, m *metrics.Manager) *FavoriteService {
	return &FavoriteService{db: db, log: log.Named("favorites"), metrics: m}
}

// ToggleFavorite removes the favorite if present, otherwise adds it.
// Losing an insert race to a concurrent toggle still reports "added":
// the pair is in the state the caller asked for.
func (s *FavoriteService) ToggleFavorite(ctx context.Context, userID, serviceID string) (*models.ToggleFavoriteResult, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM favorites WHERE user_id = ? AND service_id = ?", userID, serviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to remove favorite: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.metrics.ObserveFavoriteToggle(string(models.FavoriteRemoved))
		return &models.ToggleFavoriteResult{Action: models.FavoriteRemoved, IsFavorite: false}, nil
	}

	var exists bool
	if err := s.db.GetContext(ctx, &exists, "SELECT EXISTS(SELECT 1 FROM service_listings WHERE id = ?)", serviceID); err != nil {
		return nil, fmt.Errorf("failed to check listing: %w", err)
	}
	if !exists {
		return nil, ErrNotFound
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO favorites (id, user_id, service_id, created_at) VALUES (?, ?, ?, ?)",
		newID(), userID, serviceID, utils.NowUTC())
	if err != nil && !isUniqueViolation(err) {
		return nil, fmt.Errorf("failed to add favorite: %w", err)
	}

	s.metrics.ObserveFavoriteToggle(string(models.FavoriteAdded))
	return &models.ToggleFavoriteResult{Action: models.FavoriteAdded, IsFavorite: true}, nil
}

// IsFavorite reports whether the user saved the listing
func (s *FavoriteService) IsFavorite(ctx context.Context, userID, serviceID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM favorites WHERE user_id = ? AND service_id = ?)", userID, serviceID)
	if err != nil {
		return false, fmt.Errorf("failed to check favorite: %w", err)
	}
	return exists, nil
}

// ListFavorites returns the user's favorites, newest first, with their listings
func (s *FavoriteService) ListFavorites(ctx context.Context, userID string) ([]models.Favorite, error) {
	favorites := []models.Favorite{}
	if err := s.db.SelectContext(ctx, &favorites,
		"SELECT * FROM favorites WHERE user_id = ? ORDER BY created_at DESC", userID); err != nil {
		return nil, fmt.Errorf("failed to list favorites: %w", err)
	}
	if len(favorites) == 0 {
		return favorites, nil
	}

	ids := make([]string, len(favorites))
	for i, f := range favorites {
		ids[i] = f.ServiceID
	}
	listings, err := listingsByID(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range favorites {
		if l, ok := listings[favorites[i].ServiceID]; ok {
			favorites[i].Service = l
		}
	}
	return favorites, nil
}

// CountFavorites returns how many listings the user saved
func (s *FavoriteService) CountFavorites(ctx context.Context, userID string) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM favorites WHERE user_id = ?", userID); err != nil {
		return 0, fmt.Errorf("failed to count favorites: %w", err)
	}
	return count, nil
}

// listingsByID loads the listings that still exist among ids
func listingsByID(ctx context.Context, q sqlx.QueryerContext, ids []string) (map[string]*models.ServiceListing, error) {
	out := make(map[string]*models.ServiceListing, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(listingSelect+" WHERE l.id IN (?)", utils.RemoveDuplicates(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to build listing query: %w", err)
	}

	var listings []models.ServiceListing
	if err := sqlx.SelectContext(ctx, q, &listings, query, args...); err != nil {
		return nil, fmt.Errorf("failed to load listings: %w", err)
	}
	for i := range listings {
		out[listings[i].ID] = &listings[i]
	}
	return out, nil
}
