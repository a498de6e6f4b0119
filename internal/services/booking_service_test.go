package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"eventhub-backend/internal/models"
	"eventhub-backend/internal/platform/metrics"
)

type BookingServiceTestSuite struct {
	suite.Suite
	db       *sqlx.DB
	fx       *fixtures
	events   *recordingPublisher
	carts    *CartService
	bookings *BookingService
	ctx      context.Context
}

func (s *BookingServiceTestSuite) SetupTest() {
	s.db = setupTestDB(s.T())
	s.fx = newFixtures(s.T(), s.db)
	s.events = &recordingPublisher{}
	pricing := NewPricing(decimal.RequireFromString("0.05"))
	s.carts = NewCartService(s.db, zap.NewNop(), pricing)
	s.bookings = NewBookingService(s.db, zap.NewNop(), metrics.NewManager("test"), s.events, pricing)
	s.ctx = context.Background()
}

func TestBookingServiceSuite(t *testing.T) {
	suite.Run(t, new(BookingServiceTestSuite))
}

func (s *BookingServiceTestSuite) addToCart(userID, serviceID string, quantity int) {
	_, err := s.carts.AddToCart(s.ctx, userID, models.AddToCartRequest{ServiceID: serviceID, Quantity: quantity})
	s.Require().NoError(err)
}

func (s *BookingServiceTestSuite) cartID(userID string) string {
	view, err := s.carts.GetCart(s.ctx, userID)
	s.Require().NoError(err)
	return view.ID
}

func (s *BookingServiceTestSuite) checkoutRequest(cartID string) models.CheckoutRequest {
	return models.CheckoutRequest{
		CartID:       cartID,
		EventDetails: models.EventDetails{EventType: "Wedding", EventLocation: "Karen"},
	}
}

func (s *BookingServiceTestSuite) count(table string) int {
	var n int
	s.Require().NoError(s.db.Get(&n, "SELECT COUNT(*) FROM "+table))
	return n
}

func (s *BookingServiceTestSuite) TestCheckoutCreatesBookingItemsAndTransaction() {
	s.fx.client("client-1")
	s.fx.vendor("vendor-1", "Acme Catering")
	s.fx.vendor("vendor-2", "Bright Lights")
	food := s.fx.listing("vendor-1", "Buffet", "100")
	lights := s.fx.listing("vendor-2", "Stage Lighting", "50")

	s.addToCart("client-1", food.ID, 2)
	s.addToCart("client-1", lights.ID, 1)

	booking, err := s.bookings.Checkout(s.ctx, "client-1", s.checkoutRequest(s.cartID("client-1")))
	s.Require().NoError(err)

	s.Equal("250.00", booking.Subtotal.StringFixed(2))
	s.Equal("12.50", booking.PlatformFee.StringFixed(2))
	s.Equal("262.50", booking.Total.StringFixed(2))
	s.Equal(models.BookingStatusPending, booking.Status)
	s.Equal("Test client-1", booking.ContactName)
	s.Equal("client-1@example.com", booking.ContactEmail)

	s.Require().Len(booking.Items, 2)
	s.Equal("Buffet", booking.Items[0].ServiceName)
	s.Equal("Acme Catering", booking.Items[0].VendorName)
	s.Equal("200.00", booking.Items[0].LineTotal.StringFixed(2))

	s.Require().NotNil(booking.Transaction)
	s.Equal("262.50", booking.Transaction.Amount.StringFixed(2))
	s.Equal("250.00", booking.Transaction.VendorPayout.StringFixed(2))
	s.Equal(models.PaymentStatusPending, booking.Transaction.PaymentStatus)

	s.Equal(1, s.count("bookings"))
	s.Equal(2, s.count("booking_items"))
	s.Equal(1, s.count("transactions"))
	s.Equal(0, s.count("cart_items"))
	s.Contains(s.events.subjects(), SubjectBookingCreated)
}

func (s *BookingServiceTestSuite) TestCheckoutUsesPriceCapturedAtAdd() {
	s.fx.client("client-1")
	s.fx.vendor("vendor-1", "Acme")
	listing := s.fx.listing("vendor-1", "Buffet", "100")
	s.addToCart("client-1", listing.ID, 1)

	_, err := s.db.Exec("UPDATE service_listings SET price = '999' WHERE id = ?", listing.ID)
	s.Require().NoError(err)

	booking, err := s.bookings.Checkout(s.ctx, "client-1", s.checkoutRequest(s.cartID("client-1")))
	s.Require().NoError(err)
	s.Equal("100.00", booking.Subtotal.StringFixed(2))
}

func (s *BookingServiceTestSuite) TestCheckoutSkipsDanglingItems() {
	s.fx.client("client-1")
	s.fx.vendor("vendor-1", "Acme")
	kept := s.fx.listing("vendor-1", "Buffet", "100")
	gone := s.fx.listing("vendor-1", "Cake", "40")
	s.addToCart("client-1", kept.ID, 1)
	s.addToCart("client-1", gone.ID, 1)
	s.Require().NoError(s.fx.catalog.DeleteListing(s.ctx, "vendor-1", gone.ID))

	booking, err := s.bookings.Checkout(s.ctx, "client-1", s.checkoutRequest(s.cartID("client-1")))
	s.Require().NoError(err)
	s.Len(booking.Items, 1)
	s.Equal("100.00", booking.Subtotal.StringFixed(2))
	// dangling lines are consumed with the rest of the cart
	s.Equal(0, s.count("cart_items"))
}

func (s *BookingServiceTestSuite) TestCheckoutWithOnlyDanglingItemsFails() {
	s.fx.client("client-1")
	s.fx.vendor("vendor-1", "Acme")
	gone := s.fx.listing("vendor-1", "Cake", "40")
	s.addToCart("client-1", gone.ID, 1)
	s.Require().NoError(s.fx.catalog.DeleteListing(s.ctx, "vendor-1", gone.ID))

	_, err := s.bookings.Checkout(s.ctx, "client-1", s.checkoutRequest(s.cartID("client-1")))
	s.ErrorIs(err, ErrEmptyCart)
	s.Equal(0, s.count("bookings"))
	s.Equal(0, s.count("transactions"))
	s.Equal(1, s.count("cart_items"))
}

func (s *BookingServiceTestSuite) TestCheckoutRejectsForeignCart() {
	s.fx.client("client-1")
	s.fx.client("client-2")
	s.fx.vendor("vendor-1", "Acme")
	listing := s.fx.listing("vendor-1", "Buffet", "100")
	s.addToCart("client-1", listing.ID, 1)

	_, err := s.bookings.Checkout(s.ctx, "client-2", s.checkoutRequest(s.cartID("client-1")))
	s.ErrorIs(err, ErrEmptyCart)
	s.Equal(1, s.count("cart_items"))
}

func (s *BookingServiceTestSuite) TestConcurrentCheckoutSucceedsOnce() {
	s.fx.client("client-1")
	s.fx.vendor("vendor-1", "Acme")
	listing := s.fx.listing("vendor-1", "Buffet", "100")
	s.addToCart("client-1", listing.ID, 1)
	cartID := s.cartID("client-1")

	const attempts = 4
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.bookings.Checkout(s.ctx, "client-1", s.checkoutRequest(cartID))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		s.True(errors.Is(err, ErrEmptyCart) || errors.Is(err, ErrConflict), "unexpected error: %v", err)
	}
	s.Equal(1, succeeded)
	s.Equal(1, s.count("bookings"))
}

func (s *BookingServiceTestSuite) bookTwoVendors() *models.Booking {
	s.fx.client("client-1")
	s.fx.vendor("vendor-1", "Acme")
	s.fx.vendor("vendor-2", "Bright")
	a := s.fx.listing("vendor-1", "Buffet", "100")
	b := s.fx.listing("vendor-2", "Lights", "50")
	s.addToCart("client-1", a.ID, 1)
	s.addToCart("client-1", b.ID, 1)
	booking, err := s.bookings.Checkout(s.ctx, "client-1", s.checkoutRequest(s.cartID("client-1")))
	s.Require().NoError(err)
	return booking
}

func (s *BookingServiceTestSuite) TestItemStatusRollsUpToBooking() {
	booking := s.bookTwoVendors()
	first, second := booking.Items[0], booking.Items[1]

	res, err := s.bookings.UpdateBookingItemStatus(s.ctx, first.ID, models.BookingItemStatusConfirmed, "vendor-1")
	s.Require().NoError(err)
	s.Equal(models.BookingStatusConfirmed, res.BookingStatus)

	res, err = s.bookings.UpdateBookingItemStatus(s.ctx, first.ID, models.BookingItemStatusCompleted, "vendor-1")
	s.Require().NoError(err)
	s.Equal(models.BookingStatusConfirmed, res.BookingStatus)

	res, err = s.bookings.UpdateBookingItemStatus(s.ctx, second.ID, models.BookingItemStatusCompleted, "vendor-2")
	s.Require().NoError(err)
	s.Equal(models.BookingStatusCompleted, res.BookingStatus)
	s.Contains(s.events.subjects(), SubjectBookingStatusChanged)

	stored, err := s.bookings.GetBooking(s.ctx, "client-1", booking.ID)
	s.Require().NoError(err)
	s.Equal(models.BookingStatusCompleted, stored.Status)
}

func (s *BookingServiceTestSuite) TestCancelledSiblingConfirmsPendingBooking() {
	booking := s.bookTwoVendors()
	first, second := booking.Items[0], booking.Items[1]

	// a confirmed line on a booking that is still PENDING
	_, err := s.db.Exec("UPDATE booking_items SET status = ? WHERE id = ?", models.BookingItemStatusConfirmed, first.ID)
	s.Require().NoError(err)

	res, err := s.bookings.UpdateBookingItemStatus(s.ctx, second.ID, models.BookingItemStatusCancelled, "vendor-2")
	s.Require().NoError(err)
	s.Equal(models.BookingItemStatusCancelled, res.Item.Status)
	s.Equal(models.BookingStatusConfirmed, res.BookingStatus)

	stored, err := s.bookings.GetBooking(s.ctx, "client-1", booking.ID)
	s.Require().NoError(err)
	s.Equal(models.BookingStatusConfirmed, stored.Status)
}

func (s *BookingServiceTestSuite) TestItemStatusRequiresOwningVendor() {
	booking := s.bookTwoVendors()

	_, err := s.bookings.UpdateBookingItemStatus(s.ctx, booking.Items[0].ID, models.BookingItemStatusConfirmed, "vendor-2")
	s.ErrorIs(err, ErrForbidden)

	_, err = s.bookings.UpdateBookingItemStatus(s.ctx, booking.Items[0].ID, models.BookingItemStatusConfirmed, "client-1")
	s.ErrorIs(err, ErrForbidden)

	_, err = s.bookings.UpdateBookingItemStatus(s.ctx, "missing", models.BookingItemStatusConfirmed, "vendor-1")
	s.ErrorIs(err, ErrNotFound)

	_, err = s.bookings.UpdateBookingItemStatus(s.ctx, booking.Items[0].ID, models.BookingItemStatus("SHIPPED"), "vendor-1")
	s.Error(err)
}

func (s *BookingServiceTestSuite) TestVendorKeepsAccessAfterListingDeleted() {
	booking := s.bookTwoVendors()
	serviceID := *booking.Items[0].ServiceID
	s.Require().NoError(s.fx.catalog.DeleteListing(s.ctx, "vendor-1", serviceID))

	res, err := s.bookings.UpdateBookingItemStatus(s.ctx, booking.Items[0].ID, models.BookingItemStatusConfirmed, "vendor-1")
	s.Require().NoError(err)
	s.Nil(res.Item.ServiceID)
	s.Equal(models.BookingStatusConfirmed, res.BookingStatus)
}

func (s *BookingServiceTestSuite) TestCancelBooking() {
	booking := s.bookTwoVendors()

	_, err := s.bookings.CancelBooking(s.ctx, "vendor-1", booking.ID)
	s.ErrorIs(err, ErrForbidden)

	cancelled, err := s.bookings.CancelBooking(s.ctx, "client-1", booking.ID)
	s.Require().NoError(err)
	s.Equal(models.BookingStatusCancelled, cancelled.Status)
	for _, item := range cancelled.Items {
		s.Equal(models.BookingItemStatusCancelled, item.Status)
	}
	s.Equal(models.PaymentStatusPending, cancelled.Transaction.PaymentStatus)

	_, err = s.bookings.CancelBooking(s.ctx, "client-1", booking.ID)
	s.ErrorIs(err, ErrConflict)
}

func (s *BookingServiceTestSuite) TestBookingVisibility() {
	booking := s.bookTwoVendors()
	s.fx.client("stranger")

	_, err := s.bookings.GetBooking(s.ctx, "vendor-2", booking.ID)
	s.NoError(err)

	_, err = s.bookings.GetBooking(s.ctx, "stranger", booking.ID)
	s.ErrorIs(err, ErrForbidden)

	list, err := s.bookings.ListBookings(s.ctx, "client-1")
	s.Require().NoError(err)
	s.Len(list, 1)

	vendorItems, err := s.bookings.ListVendorBookingItems(s.ctx, "vendor-1")
	s.Require().NoError(err)
	s.Require().Len(vendorItems, 1)
	s.Equal("Wedding", vendorItems[0].EventType)
	s.Equal(string(models.BookingStatusPending), vendorItems[0].BookingStatus)

	_, err = s.bookings.ListVendorBookingItems(s.ctx, "client-1")
	s.ErrorIs(err, ErrForbidden)
}

func TestDeriveBookingStatus(t *testing.T) {
	const (
		pending   = models.BookingItemStatusPending
		confirmed = models.BookingItemStatusConfirmed
		completed = models.BookingItemStatusCompleted
		cancelled = models.BookingItemStatusCancelled
	)

	tests := []struct {
		name    string
		current models.BookingStatus
		items   []models.BookingItemStatus
		want    models.BookingStatus
	}{
		{"all completed", models.BookingStatusConfirmed, []models.BookingItemStatus{completed, completed}, models.BookingStatusCompleted},
		{"all cancelled", models.BookingStatusPending, []models.BookingItemStatus{cancelled, cancelled}, models.BookingStatusCancelled},
		{"first confirmation", models.BookingStatusPending, []models.BookingItemStatus{confirmed, pending}, models.BookingStatusConfirmed},
		{"confirmation after confirmed", models.BookingStatusConfirmed, []models.BookingItemStatus{confirmed, pending}, models.BookingStatusConfirmed},
		{"mixed completed and pending", models.BookingStatusPending, []models.BookingItemStatus{completed, pending}, models.BookingStatusPending},
		{"mixed completed and cancelled", models.BookingStatusConfirmed, []models.BookingItemStatus{completed, cancelled}, models.BookingStatusConfirmed},
		{"never back to pending", models.BookingStatusConfirmed, []models.BookingItemStatus{pending, pending}, models.BookingStatusConfirmed},
		{"in progress is kept", models.BookingStatusInProgress, []models.BookingItemStatus{confirmed}, models.BookingStatusInProgress},
		{"cancelled booking can complete", models.BookingStatusCancelled, []models.BookingItemStatus{completed}, models.BookingStatusCompleted},
		{"no items", models.BookingStatusPending, nil, models.BookingStatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveBookingStatus(tt.current, tt.items))
		})
	}
}

func TestPricingRoundsFee(t *testing.T) {
	p := NewPricing(decimal.RequireFromString("0.05"))

	totals := p.FromSubtotal(decimal.RequireFromString("33.33"))
	require.Equal(t, "1.67", totals.PlatformFee.StringFixed(2))
	assert.Equal(t, "35.00", totals.Total.StringFixed(2))

	dangling := models.CartItem{UnitPrice: decimal.NewFromInt(10), Quantity: 3}
	resolved := models.CartItem{UnitPrice: decimal.NewFromInt(20), Quantity: 2, Service: &models.ServiceListing{}}
	cart := p.CartTotals([]models.CartItem{dangling, resolved})
	assert.Equal(t, "40.00", cart.Subtotal.StringFixed(2))
	assert.Equal(t, "42.00", cart.Total.StringFixed(2))
}
