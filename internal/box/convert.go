package box

import "time"

// FromRecord converts a backend row. Unparsable timestamps become the zero time.
func FromRecord(r Record) Box {
	return Box{
		ID:            r.ID,
		Lat:           r.Lat,
		Lng:           r.Lng,
		CurrentAmount: r.CurrentAmount,
		Capacity:      r.Capacity,
		IsFull:        r.IsFull,
		CreatedBy:     r.CreatedBy,
		CreatedAt:     parseTime(r.CreatedAt),
		LastUpdated:   parseTime(r.UpdatedAt),
	}
}

// FromRecords converts rows, preserving order.
func FromRecords(rs []Record) []Box {
	out := make([]Box, 0, len(rs))
	for _, r := range rs {
		out = append(out, FromRecord(r))
	}
	return out
}

// ToPatch extracts the editable columns of b.
func ToPatch(b Box) Patch {
	return Patch{
		Lat:           b.Lat,
		Lng:           b.Lng,
		CurrentAmount: b.CurrentAmount,
		Capacity:      b.Capacity,
		IsFull:        b.IsFull,
	}
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	if t, err := time.ParseInLocation(postgresTimestampLayout, value, time.UTC); err == nil {
		return t
	}
	return time.Time{}
}
