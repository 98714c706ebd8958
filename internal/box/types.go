package box

import "time"

// postgresTimestampLayout covers timestamps the backend emits without a zone.
const postgresTimestampLayout = "2006-01-02T15:04:05.999999"

// Box is the client-side form of a recycling box.
type Box struct {
	ID            string    `json:"id"`
	Lat           float64   `json:"lat"`
	Lng           float64   `json:"lng"`
	CurrentAmount int       `json:"currentAmount"`
	Capacity      int       `json:"capacity"`
	IsFull        bool      `json:"isFull"`
	CreatedBy     string    `json:"createdBy"`
	CreatedAt     time.Time `json:"createdAt"`
	LastUpdated   time.Time `json:"lastUpdated"`
}

// Record is a row of the recycling_boxes table as the backend returns it.
type Record struct {
	ID            string  `json:"id"`
	Lat           float64 `json:"lat"`
	Lng           float64 `json:"lng"`
	CurrentAmount int     `json:"current_amount"`
	Capacity      int     `json:"capacity"`
	IsFull        bool    `json:"is_full"`
	CreatedBy     string  `json:"created_by"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
}

// Patch carries the editable columns of a box.
type Patch struct {
	Lat           float64 `json:"lat"`
	Lng           float64 `json:"lng"`
	CurrentAmount int     `json:"current_amount"`
	Capacity      int     `json:"capacity"`
	IsFull        bool    `json:"is_full"`
}

// Fill reports the fill ratio in [0, 1] for positive capacities, 0 otherwise.
func (b Box) Fill() float64 {
	if b.Capacity <= 0 {
		return 0
	}
	return float64(b.CurrentAmount) / float64(b.Capacity)
}

// Status filters a collection by fullness.
type Status string

const (
	StatusAll       Status = "all"
	StatusFull      Status = "full"
	StatusAvailable Status = "available"
)

// Next cycles all → full → available → all.
func (s Status) Next() Status {
	switch s {
	case StatusAll:
		return StatusFull
	case StatusFull:
		return StatusAvailable
	default:
		return StatusAll
	}
}
