package services

import "eventhub-backend/internal/models"

// DeriveBookingStatus rolls item statuses up to the booking, first match wins:
//
//	every item COMPLETED                 -> COMPLETED
//	every item CANCELLED                 -> CANCELLED
//	any item CONFIRMED, booking PENDING  -> CONFIRMED
//	otherwise                            -> unchanged
//
// The rule never moves a booking to IN_PROGRESS and never moves it back to
// PENDING. Callers depend on those gaps.
func DeriveBookingStatus(current models.BookingStatus, items []models.BookingItemStatus) models.BookingStatus {
	if len(items) == 0 {
		return current
	}

	allCompleted, allCancelled, anyConfirmed := true, true, false
	for _, status := range items {
		if status != models.BookingItemStatusCompleted {
			allCompleted = false
		}
		if status != models.BookingItemStatusCancelled {
			allCancelled = false
		}
		if status == models.BookingItemStatusConfirmed {
			anyConfirmed = true
		}
	}

	switch {
	case allCompleted:
		return models.BookingStatusCompleted
	case allCancelled:
		return models.BookingStatusCancelled
	case anyConfirmed && current == models.BookingStatusPending:
		return models.BookingStatusConfirmed
	}
	return current
}
