package models

import (
	"bytes"
	"encoding/json"
)

// flexString reads a JSON string or number as text. The booking service
// emits identifiers either way depending on the column type.
func flexString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}

func (r *SearchResult) UnmarshalJSON(data []byte) error {
	type plain SearchResult
	aux := struct {
		*plain
		TrainNumber json.RawMessage `json:"train_number"`
	}{plain: (*plain)(r)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.TrainNumber = flexString(aux.TrainNumber)
	return nil
}

func (s *Segment) UnmarshalJSON(data []byte) error {
	type plain Segment
	aux := struct {
		*plain
		TrainNumber json.RawMessage `json:"train_number"`
		SeatNumber  json.RawMessage `json:"seat_number"`
	}{plain: (*plain)(s)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.TrainNumber = flexString(aux.TrainNumber)
	s.SeatNumber = flexString(aux.SeatNumber)
	return nil
}
