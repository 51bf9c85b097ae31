package models

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// BookingStatus is the booking-level status owned by the booking service
type BookingStatus string

const (
	BookingStatusConfirmed  BookingStatus = "CONFIRMED"
	BookingStatusWaitlisted BookingStatus = "WAITLISTED"
	BookingStatusCancelled  BookingStatus = "CANCELLED"
)

// TicketStatus is the per-passenger segment status
type TicketStatus string

const (
	TicketStatusConfirmed  TicketStatus = "CNF"
	TicketStatusWaitlisted TicketStatus = "WL"
	TicketStatusCancelled  TicketStatus = "CANCELLED"
)

// Amount is a currency value that the booking service may encode as a JSON
// number or as a decimal string.
type Amount float64

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*a = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*a = Amount(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*a = Amount(f)
	return nil
}

// Segment is one passenger's record within a ticket. Journey fields repeat on
// every segment of the same PNR.
type Segment struct {
	PNR           string        `json:"pnr_number"`
	JourneyDate   string        `json:"journey_date"`
	BookingStatus BookingStatus `json:"booking_status"`
	TotalFare     Amount        `json:"total_fare"`
	TrainNumber   string        `json:"train_number"`
	TrainName     string        `json:"train_name"`
	FromStation   string        `json:"from_station"`
	ToStation     string        `json:"to_station"`
	DepartureTime string        `json:"departure_time"`
	ArrivalTime   string        `json:"arrival_time"`

	PassengerName string       `json:"passenger_name"`
	Age           int          `json:"age"`
	Gender        string       `json:"gender"`
	TicketStatus  TicketStatus `json:"ticket_status"`
	BerthType     string       `json:"berth_type,omitempty"`
	SeatNumber    string       `json:"seat_number"`
	CoachName     string       `json:"coach_name"`
}

// Cancelled reports whether the status is the terminal cancelled state
func (s TicketStatus) Cancelled() bool {
	return s == TicketStatusCancelled
}

// CanBecome reports whether a segment may move from s to next.
// Once cancelled a segment never returns to CNF or WL.
func (s TicketStatus) CanBecome(next TicketStatus) bool {
	if s.Cancelled() {
		return next.Cancelled()
	}
	return true
}

// CanBecome applies the same downward-only rule at booking level
func (s BookingStatus) CanBecome(next BookingStatus) bool {
	if s == BookingStatusCancelled {
		return next == BookingStatusCancelled
	}
	return true
}
