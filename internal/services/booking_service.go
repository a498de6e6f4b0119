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
	"eventhub-backend/internal/platform/metrics"
	"eventhub-backend/internal/utils"
)

// BookingService turns carts into bookings and tracks their status
type BookingService struct {
	db      *sqlx.DB
	log     *zap.Logger
	metrics *metrics.Manager
	events  EventPublisher
	pricing Pricing
}

// NewBookingService creates a new booking service
func NewBookingService(db *sqlx.DB, log *zap.Logger, m *metrics.Manager, events EventPublisher, pricing Pricing) *BookingService {
	return &BookingService{db: db, log: log.Named("bookings"), metrics: m, events: events, pricing: pricing}
}

// Checkout converts the user's cart into a booking with one item per cart
// line whose listing still exists, plus one pending transaction. The cart is
// emptied in the same database transaction.
func (s *BookingService) Checkout(ctx context.Context, userID string, req models.CheckoutRequest) (*models.Booking, error) {
	booking, err := s.checkout(ctx, userID, req)
	switch {
	case err == nil:
		s.metrics.ObserveCheckout("success")
	case errors.Is(err, ErrEmptyCart):
		s.metrics.ObserveCheckout("empty_cart")
	case errors.Is(err, ErrConflict):
		s.metrics.ObserveCheckout("conflict")
	default:
		s.metrics.ObserveCheckout("error")
	}
	if err != nil {
		return nil, err
	}

	vendorIDs := make([]string, 0, len(booking.Items))
	for _, item := range booking.Items {
		vendorIDs = append(vendorIDs, item.VendorID)
	}
	publishEvent(ctx, s.events, s.log, SubjectBookingCreated, BookingEvent{
		BookingID: booking.ID,
		UserID:    userID,
		Status:    string(booking.Status),
		Total:     booking.Total.StringFixed(2),
		VendorIDs: utils.RemoveDuplicates(vendorIDs),
		At:        booking.CreatedAt,
	})
	s.log.Info("checkout completed",
		zap.String("booking_id", booking.ID),
		zap.String("user_id", userID),
		zap.Int("items", len(booking.Items)),
		zap.String("total", booking.Total.StringFixed(2)))
	return booking, nil
}

func (s *BookingService) checkout(ctx context.Context, userID string, req models.CheckoutRequest) (*models.Booking, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// a cart that is missing or belongs to someone else has nothing to book
	var cart models.Cart
	err = tx.GetContext(ctx, &cart, "SELECT * FROM carts WHERE id = ? AND user_id = ?", req.CartID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEmptyCart
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	items, err := loadCartItems(ctx, tx, cart.ID)
	if err != nil {
		return nil, err
	}
	valid := make([]models.CartItem, 0, len(items))
	for _, item := range items {
		if item.Resolved() {
			valid = append(valid, item)
		}
	}
	if len(valid) == 0 {
		return nil, ErrEmptyCart
	}

	var user models.User
	if err := tx.GetContext(ctx, &user, "SELECT * FROM users WHERE id = ?", userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	totals := s.pricing.CartTotals(valid)
	now := utils.NowUTC()

	booking := models.Booking{
		ID:            newID(),
		UserID:        userID,
		EventType:     strings.TrimSpace(req.EventType),
		EventDate:     req.EventDate.Ptr(),
		EventLocation: utils.SafeStringPointer(strings.TrimSpace(req.EventLocation)),
		GuestCount:    req.GuestCount,
		Notes:         utils.SafeStringPointer(strings.TrimSpace(req.Notes)),
		ContactName:   firstNonEmpty(req.ContactName, user.GetFullName()),
		ContactEmail:  firstNonEmpty(req.ContactEmail, user.Email),
		ContactPhone:  utils.SafeStringPointer(firstNonEmpty(req.ContactPhone, utils.DerefString(user.Phone))),
		Subtotal:      totals.Subtotal,
		PlatformFee:   totals.PlatformFee,
		Total:         totals.Total,
		Status:        models.BookingStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO bookings (
			id, user_id, event_type, event_date, event_location, guest_count, notes,
			contact_name, contact_email, contact_phone, subtotal, platform_fee, total,
			status, created_at, updated_at
		) VALUES (
			:id, :user_id, :event_type, :event_date, :event_location, :guest_count, :notes,
			:contact_name, :contact_email, :contact_phone, :subtotal, :platform_fee, :total,
			:status, :created_at, :updated_at
		)
	`, &booking)
	if err != nil {
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	for _, ci := range valid {
		serviceID := ci.ServiceID
		item := models.BookingItem{
			ID:           newID(),
			BookingID:    booking.ID,
			ServiceID:    &serviceID,
			ServiceName:  ci.Service.Name,
			VendorID:     ci.Service.VendorID,
			VendorName:   ci.Service.VendorName,
			Category:     ci.Service.Category,
			UnitPrice:    ci.UnitPrice,
			Quantity:     ci.Quantity,
			LineTotal:    utils.RoundMoney(ci.LineTotal()),
			SelectedDate: ci.SelectedDate,
			Status:       models.BookingItemStatusPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO booking_items (
				id, booking_id, service_id, service_name, vendor_id, vendor_name, category,
				unit_price, quantity, line_total, selected_date, status, created_at, updated_at
			) VALUES (
				:id, :booking_id, :service_id, :service_name, :vendor_id, :vendor_name, :category,
				:unit_price, :quantity, :line_total, :selected_date, :status, :created_at, :updated_at
			)
		`, &item)
		if err != nil {
			return nil, fmt.Errorf("failed to create booking item: %w", err)
		}
		booking.Items = append(booking.Items, item)
	}

	txn := models.Transaction{
		ID:            newID(),
		BookingID:     booking.ID,
		Amount:        totals.Total,
		PlatformFee:   totals.PlatformFee,
		VendorPayout:  totals.Subtotal,
		PaymentStatus: models.PaymentStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO transactions (id, booking_id, amount, platform_fee, vendor_payout, payment_status, created_at, updated_at)
		VALUES (:id, :booking_id, :amount, :platform_fee, :vendor_payout, :payment_status, :created_at, :updated_at)
	`, &txn)
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}
	booking.Transaction = &txn

	res, err := tx.ExecContext(ctx, "DELETE FROM cart_items WHERE cart_id = ?", cart.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to clear cart: %w", err)
	}
	// fewer rows than we read means another checkout consumed them first
	if n, _ := res.RowsAffected(); n < int64(len(items)) {
		return nil, ErrConflict
	}
	if _, err := tx.ExecContext(ctx, "UPDATE carts SET updated_at = ? WHERE id = ?", now, cart.ID); err != nil {
		return nil, fmt.Errorf("failed to touch cart: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit checkout: %w", err)
	}
	return &booking, nil
}

// ListBookings returns the client's bookings, newest first, with items and transaction
func (s *BookingService) ListBookings(ctx context.Context, userID string) ([]models.Booking, error) {
	bookings := []models.Booking{}
	if err := s.db.SelectContext(ctx, &bookings,
		"SELECT * FROM bookings WHERE user_id = ? ORDER BY created_at DESC, rowid DESC", userID); err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	if err := attachBookingDetails(ctx, s.db, bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

// GetBooking returns a booking visible to its client or to a vendor with an item in it
func (s *BookingService) GetBooking(ctx context.Context, userID, bookingID string) (*models.Booking, error) {
	var booking models.Booking
	err := s.db.GetContext(ctx, &booking, "SELECT * FROM bookings WHERE id = ?", bookingID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	if booking.UserID != userID {
		var isVendor bool
		err := s.db.GetContext(ctx, &isVendor, `
			SELECT EXISTS(
				SELECT 1 FROM booking_items bi
				JOIN vendor_profiles vp ON vp.id = bi.vendor_id
				WHERE bi.booking_id = ? AND vp.user_id = ?
			)
		`, bookingID, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to check booking access: %w", err)
		}
		if !isVendor {
			return nil, ErrForbidden
		}
	}

	list := []models.Booking{booking}
	if err := attachBookingDetails(ctx, s.db, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

// ListVendorBookingItems returns the booking lines addressed to the vendor
func (s *BookingService) ListVendorBookingItems(ctx context.Context, userID string) ([]models.VendorBookingItem, error) {
	vendorID, err := vendorProfileID(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}

	items := []models.VendorBookingItem{}
	err = s.db.SelectContext(ctx, &items, `
		SELECT bi.*,
			b.event_type, b.event_date, b.event_location, b.guest_count,
			b.contact_name, b.contact_email, b.contact_phone, b.status AS booking_status
		FROM booking_items bi
		JOIN bookings b ON b.id = bi.booking_id
		WHERE bi.vendor_id = ?
		ORDER BY b.created_at DESC, bi.rowid ASC
	`, vendorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list vendor booking items: %w", err)
	}
	return items, nil
}

// CancelBooking lets the client cancel a booking that has not started.
// The booking and all its items become CANCELLED; the transaction is untouched.
func (s *BookingService) CancelBooking(ctx context.Context, userID, bookingID string) (*models.Booking, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var booking models.Booking
	err = tx.GetContext(ctx, &booking, "SELECT * FROM bookings WHERE id = ?", bookingID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	if booking.UserID != userID {
		return nil, ErrForbidden
	}
	if booking.Status != models.BookingStatusPending && booking.Status != models.BookingStatusConfirmed {
		return nil, fmt.Errorf("%w: booking is %s", ErrConflict, booking.Status)
	}

	now := utils.NowUTC()
	if _, err := tx.ExecContext(ctx, "UPDATE bookings SET status = ?, updated_at = ? WHERE id = ?",
		models.BookingStatusCancelled, now, bookingID); err != nil {
		return nil, fmt.Errorf("failed to cancel booking: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE booking_items SET status = ?, updated_at = ? WHERE booking_id = ?",
		models.BookingItemStatusCancelled, now, bookingID); err != nil {
		return nil, fmt.Errorf("failed to cancel booking items: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit cancellation: %w", err)
	}

	s.metrics.ObserveBookingStatus(string(models.BookingStatusCancelled))
	publishEvent(ctx, s.events, s.log, SubjectBookingCancelled, BookingEvent{
		BookingID: bookingID,
		UserID:    userID,
		Status:    string(models.BookingStatusCancelled),
		At:        now,
	})
	s.log.Info("booking cancelled", zap.String("booking_id", bookingID), zap.String("user_id", userID))
	return s.GetBooking(ctx, userID, bookingID)
}

// UpdateBookingItemStatus sets an item's status on behalf of the vendor that
// owns its listing, then re-derives the booking status from all its items.
func (s *BookingService) UpdateBookingItemStatus(ctx context.Context, itemID string, status models.BookingItemStatus, actingUserID string) (*models.ItemStatusResult, error) {
	if !status.IsValid() {
		return nil, utils.NewValidationError("status", "must be one of: PENDING CONFIRMED COMPLETED CANCELLED")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var item models.BookingItem
	err = tx.GetContext(ctx, &item, "SELECT * FROM booking_items WHERE id = ?", itemID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking item: %w", err)
	}

	ownerID, err := bookingItemOwner(ctx, tx, &item)
	if err != nil {
		return nil, err
	}
	if ownerID != actingUserID {
		return nil, ErrForbidden
	}

	now := utils.NowUTC()
	if _, err := tx.ExecContext(ctx, "UPDATE booking_items SET status = ?, updated_at = ? WHERE id = ?", status, now, itemID); err != nil {
		return nil, fmt.Errorf("failed to update booking item: %w", err)
	}
	item.Status = status
	item.UpdatedAt = now

	var current models.BookingStatus
	if err := tx.GetContext(ctx, &current, "SELECT status FROM bookings WHERE id = ?", item.BookingID); err != nil {
		return nil, fmt.Errorf("failed to get booking status: %w", err)
	}
	var siblings []models.BookingItemStatus
	if err := tx.SelectContext(ctx, &siblings, "SELECT status FROM booking_items WHERE booking_id = ?", item.BookingID); err != nil {
		return nil, fmt.Errorf("failed to get booking item statuses: %w", err)
	}

	derived := DeriveBookingStatus(current, siblings)
	if derived != current {
		if _, err := tx.ExecContext(ctx, "UPDATE bookings SET status = ?, updated_at = ? WHERE id = ?", derived, now, item.BookingID); err != nil {
			return nil, fmt.Errorf("failed to update booking status: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit status update: %w", err)
	}

	if derived != current {
		s.metrics.ObserveBookingStatus(string(derived))
		publishEvent(ctx, s.events, s.log, SubjectBookingStatusChanged, BookingEvent{
			BookingID: item.BookingID,
			Status:    string(derived),
			ItemID:    itemID,
			At:        now,
		})
	}
	s.log.Info("booking item status updated",
		zap.String("item_id", itemID),
		zap.String("status", string(status)),
		zap.String("booking_status", string(derived)))

	return &models.ItemStatusResult{Item: item, BookingStatus: derived}, nil
}

// bookingItemOwner returns the user id of the vendor that owns the item's
// listing, or of the vendor recorded on the item when the listing is gone.
func bookingItemOwner(ctx context.Context, tx *sqlx.Tx, item *models.BookingItem) (string, error) {
	var ownerID string
	if item.ServiceID != nil {
		err := tx.GetContext(ctx, &ownerID, `
			SELECT vp.user_id FROM service_listings l
			JOIN vendor_profiles vp ON vp.id = l.vendor_id
			WHERE l.id = ?
		`, *item.ServiceID)
		if err == nil {
			return ownerID, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("failed to get listing owner: %w", err)
		}
	}

	err := tx.GetContext(ctx, &ownerID, "SELECT user_id FROM vendor_profiles WHERE id = ?", item.VendorID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrForbidden
	}
	if err != nil {
		return "", fmt.Errorf("failed to get vendor owner: %w", err)
	}
	return ownerID, nil
}

// attachBookingDetails loads items and transactions for the given bookings in place
func attachBookingDetails(ctx context.Context, q sqlx.QueryerContext, bookings []models.Booking) error {
	if len(bookings) == 0 {
		return nil
	}

	ids := make([]string, len(bookings))
	index := make(map[string]int, len(bookings))
	for i := range bookings {
		ids[i] = bookings[i].ID
		index[bookings[i].ID] = i
		bookings[i].Items = []models.BookingItem{}
	}

	query, args, err := sqlx.In("SELECT * FROM booking_items WHERE booking_id IN (?) ORDER BY created_at ASC, rowid ASC", ids)
	if err != nil {
		return fmt.Errorf("failed to build booking item query: %w", err)
	}
	var items []models.BookingItem
	if err := sqlx.SelectContext(ctx, q, &items, query, args...); err != nil {
		return fmt.Errorf("failed to load booking items: %w", err)
	}
	for _, item := range items {
		b := &bookings[index[item.BookingID]]
		b.Items = append(b.Items, item)
	}

	query, args, err = sqlx.In("SELECT * FROM transactions WHERE booking_id IN (?)", ids)
	if err != nil {
		return fmt.Errorf("failed to build transaction query: %w", err)
	}
	var txns []models.Transaction
	if err := sqlx.SelectContext(ctx, q, &txns, query, args...); err != nil {
		return fmt.Errorf("failed to load transactions: %w", err)
	}
	for i := range txns {
		bookings[index[txns[i].BookingID]].Transaction = &txns[i]
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
