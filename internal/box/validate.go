package box

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Input holds the subset of box fields being checked. Nil fields are skipped.
type Input struct {
	Lat           *float64 `validate:"omitempty,gte=-90,lte=90"`
	Lng           *float64 `validate:"omitempty,gte=-180,lte=180"`
	Capacity      *int     `validate:"omitempty,gt=0"`
	CurrentAmount *int     `validate:"omitempty,gte=0"`
}

var fieldMessages = map[string]string{
	"Lat":           "latitude must be a number between -90 and 90",
	"Lng":           "longitude must be a number between -180 and 180",
	"Capacity":      "capacity must be greater than 0",
	"CurrentAmount": "current amount cannot be negative",
}

const msgOverCapacity = "current amount cannot exceed capacity"

// Validate returns one message per violated rule, empty when in is valid.
func Validate(in Input) []string {
	var msgs []string
	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return []string{err.Error()}
		}
		for _, fe := range verrs {
			if msg, ok := fieldMessages[fe.StructField()]; ok {
				msgs = append(msgs, msg)
			} else {
				msgs = append(msgs, fe.Error())
			}
		}
	}
	if in.Capacity != nil && in.CurrentAmount != nil && *in.Capacity > 0 && *in.CurrentAmount > *in.Capacity {
		msgs = append(msgs, msgOverCapacity)
	}
	return msgs
}

// ValidateBox checks every editable field of b.
func ValidateBox(b Box) []string {
	return Validate(Input{Lat: &b.Lat, Lng: &b.Lng, Capacity: &b.Capacity, CurrentAmount: &b.CurrentAmount})
}

// ValidateStatus checks a status update against the box's capacity.
func ValidateStatus(current Box, amount int) []string {
	return Validate(Input{Capacity: &current.Capacity, CurrentAmount: &amount})
}

// ValidateCoordinates reports whether lat and lng are on the globe.
func ValidateCoordinates(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}
