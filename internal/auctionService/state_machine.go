package auction

import (
	"time"

	"bidflow/internal/models"
)

// AdvanceIfDue applies the time-driven transitions that are due at now and
// returns the resulting auction together with the events they emit.
//
// highest is the auction's highest bid, or nil when it has none. The function
// does not touch storage, and once a transition has been applied it is not
// due anymore, so feeding the result back in with the same now changes nothing.
// A pending auction whose end time has also passed goes through active to
// ended in one call.
func AdvanceIfDue(a models.Auction, highest *models.Bid, now time.Time) (models.Auction, []models.Event) {
	var events []models.Event

	if a.Status == models.AuctionStatusPending && !now.Before(a.StartTime) {
		a.Status = models.AuctionStatusActive
		a.UpdatedAt = now
		events = append(events, newEvent(models.EventAuctionStarted, a, now))
	}

	if a.Status == models.AuctionStatusActive && !now.Before(a.EndTime) {
		a.Status = models.AuctionStatusEnded
		a.UpdatedAt = now

		if highest != nil && highest.AuctionID == a.AuctionID {
			winnerID, bidID := highest.UserID, highest.BidID
			a.WinnerID = &winnerID
			a.WinningBidID = &bidID
			a.CurrentPrice = highest.Amount
		} else {
			a.WinnerID = nil
			a.WinningBidID = nil
			a.CurrentPrice = a.StartingPrice
		}
		events = append(events, newEvent(models.EventAuctionEnded, a, now))
	}

	return a, events
}

// Cancel moves a non-terminal auction to cancelled.
func Cancel(a models.Auction, now time.Time) (models.Auction, models.Event, bool) {
	if !CanTransition(a.Status, models.AuctionStatusCancelled) {
		return a, models.Event{}, false
	}
	a.Status = models.AuctionStatusCancelled
	a.WinnerID = nil
	a.WinningBidID = nil
	a.UpdatedAt = now
	return a, newEvent(models.EventAuctionCancelled, a, now), true
}

// CanTransition reports whether the lifecycle allows moving from one status to another.
func CanTransition(from, to models.AuctionStatus) bool {
	switch from {
	case models.AuctionStatusPending:
		return to == models.AuctionStatusActive || to == models.AuctionStatusCancelled
	case models.AuctionStatusActive:
		return to == models.AuctionStatusEnded || to == models.AuctionStatusCancelled
	default:
		return false
	}
}

// ProductStatusFor is the product status implied by an auction's status.
func ProductStatusFor(a models.Auction) models.ProductStatus {
	switch a.Status {
	case models.AuctionStatusPending:
		return models.ProductStatusScheduled
	case models.AuctionStatusActive:
		return models.ProductStatusActive
	case models.AuctionStatusEnded:
		if a.WinnerID != nil {
			return models.ProductStatusSold
		}
		return models.ProductStatusEnded
	case models.AuctionStatusCancelled:
		return models.ProductStatusDraft
	}
	return ""
}

func newEvent(t models.EventType, a models.Auction, now time.Time) models.Event {
	return models.Event{
		Type:         t,
		AuctionID:    a.AuctionID,
		ProductID:    a.ProductID,
		OwnerID:      a.OwnerID,
		WinnerID:     a.WinnerID,
		WinningBidID: a.WinningBidID,
		Price:        a.CurrentPrice,
		OccurredAt:   now,
	}
}
