package domain

import "time"

type CardStatus string

const (
	CardUnused   CardStatus = "unused"
	CardReserved CardStatus = "reserved"
	CardUsed     CardStatus = "used"
	CardExpired  CardStatus = "expired"
)

var cardTransitions = map[CardStatus][]CardStatus{
	CardUnused:   {CardReserved, CardExpired},
	CardReserved: {CardUsed, CardUnused},
	CardUsed:     {},
	CardExpired:  {},
}

func (s CardStatus) CanTransition(to CardStatus) bool {
	for _, next := range cardTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Card is a single-use secret belonging to one good. While reserved it carries
// the reserving order's id; the claim only becomes permanent when the status
// reaches used and an order detail row exists.
type Card struct {
	ID        int64
	GoodID    int64
	CardInfo  string
	Status    CardStatus
	OrderID   *int64
	UsedAt    *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}
