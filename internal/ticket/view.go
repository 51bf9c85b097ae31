package ticket

import (
	"strconv"

	"github.com/cx-tal-miterani/rail-booking-system/internal/models"
)

// Style is the presentation class of a status
type Style string

const (
	StyleConfirmed  Style = "confirmed"
	StyleWaitlisted Style = "waitlisted"
	StyleCancelled  Style = "cancelled"
	StyleUnknown    Style = "unknown"
)

// StyleFor maps a segment status to its style
func StyleFor(status models.TicketStatus) Style {
	switch status {
	case models.TicketStatusConfirmed:
		return StyleConfirmed
	case models.TicketStatusWaitlisted:
		return StyleWaitlisted
	case models.TicketStatusCancelled:
		return StyleCancelled
	}
	return StyleUnknown
}

// BookingStyleFor maps a booking-level status to its style
func BookingStyleFor(status models.BookingStatus) Style {
	switch status {
	case models.BookingStatusConfirmed:
		return StyleConfirmed
	case models.BookingStatusWaitlisted:
		return StyleWaitlisted
	case models.BookingStatusCancelled:
		return StyleCancelled
	}
	return StyleUnknown
}

// Header holds the journey fields shared by every segment
type Header struct {
	PNR           string               `json:"pnr"`
	TrainNumber   string               `json:"trainNumber"`
	TrainName     string               `json:"trainName"`
	BookingStatus models.BookingStatus `json:"bookingStatus"`
	Style         Style                `json:"style"`
	FromStation   string               `json:"fromStation"`
	ToStation     string               `json:"toStation"`
	DepartureTime string               `json:"departureTime"`
	ArrivalTime   string               `json:"arrivalTime"`
	JourneyDate   string               `json:"journeyDate"`
	TotalFare     float64              `json:"totalFare"`
	Cancellable   bool                 `json:"cancellable"`
}

// Row is one passenger line
type Row struct {
	Index  int                 `json:"index"`
	Name   string              `json:"name"`
	Age    int                 `json:"age"`
	Gender string              `json:"gender"`
	Status models.TicketStatus `json:"status"`
	Style  Style               `json:"style"`
	Berth  string              `json:"berth,omitempty"`
	Seat   string              `json:"seat"`
}

// View is a ticket ready for display
type View struct {
	Header     Header `json:"header"`
	Passengers []Row  `json:"passengers"`
}

// NewView builds a view from a ticket's segments. The header comes from
// the first segment; segments must not be empty.
func NewView(segments []models.Segment) *View {
	main := segments[0]

	v := &View{
		Header: Header{
			PNR:           main.PNR,
			TrainNumber:   main.TrainNumber,
			TrainName:     main.TrainName,
			BookingStatus: main.BookingStatus,
			Style:         BookingStyleFor(main.BookingStatus),
			FromStation:   main.FromStation,
			ToStation:     main.ToStation,
			DepartureTime: main.DepartureTime,
			ArrivalTime:   main.ArrivalTime,
			JourneyDate:   main.JourneyDate,
			TotalFare:     float64(main.TotalFare),
			Cancellable:   main.BookingStatus != models.BookingStatusCancelled,
		},
		Passengers: make([]Row, 0, len(segments)),
	}

	for i, s := range segments {
		v.Passengers = append(v.Passengers, Row{
			Index:  i + 1,
			Name:   s.PassengerName,
			Age:    s.Age,
			Gender: s.Gender,
			Status: s.TicketStatus,
			Style:  StyleFor(s.TicketStatus),
			Berth:  s.BerthType,
			Seat:   seatText(s.CoachName, s.SeatNumber),
		})
	}
	return v
}

// MarkCancelled applies a confirmed cancellation to the view
func (v *View) MarkCancelled() {
	v.Header.BookingStatus = models.BookingStatusCancelled
	v.Header.Style = StyleCancelled
	v.Header.Cancellable = false
	for i := range v.Passengers {
		v.Passengers[i].Status = models.TicketStatusCancelled
		v.Passengers[i].Style = StyleCancelled
	}
}

func seatText(coach, seat string) string {
	if coach == "" {
		coach = "-"
	}
	if seat == "" {
		seat = "-"
	}
	return coach + " / " + seat
}

// FareText formats the total fare for display
func (h Header) FareText() string {
	return "Rs. " + strconv.FormatFloat(h.TotalFare, 'f', 2, 64)
}
