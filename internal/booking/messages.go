package booking

import (
	"fmt"
	"strings"

	"github.com/iliyamo/showtime-booking/internal/model"
	"github.com/iliyamo/showtime-booking/internal/notify"
)

// Notification kinds.
const (
	KindConfirmed = "booking.confirmed"
	KindCanceled  = "booking.canceled"
)

func confirmationMessage(b *model.Booking, title string) notify.Message {
	if title == "" {
		title = "your showtime"
	}
	return notify.Message{
		Kind:      KindConfirmed,
		BookingID: b.ID,
		To:        b.UserEmail,
		Subject:   "Booking Confirmation",
		Body: fmt.Sprintf("Your booking is confirmed for %s. Seats: %s.",
			title, strings.Join(b.SeatLabels(), ", ")),
	}
}

func cancellationMessage(b *model.Booking) notify.Message {
	subject := "Movie Ticket Cancellation"
	if b.Type == model.BookingEvent {
		subject = "Event Ticket Cancellation"
	}
	return notify.Message{
		Kind:      KindCanceled,
		BookingID: b.ID,
		To:        b.UserEmail,
		Subject:   subject,
		Body: fmt.Sprintf("Your booking %s has been canceled. Your refund is being processed.",
			b.ID),
	}
}
