package models

import (
	"strings"
	"time"
)

// SeatClassSleeper is the class used when a quote arrives without one
const SeatClassSleeper = "Sleeper"

// BerthPreference is the passenger's requested berth position
type BerthPreference string

const (
	BerthLower     BerthPreference = "LOWER"
	BerthMiddle    BerthPreference = "MIDDLE"
	BerthUpper     BerthPreference = "UPPER"
	BerthSideLower BerthPreference = "SIDE_LOWER"
	BerthSideUpper BerthPreference = "SIDE_UPPER"
	BerthAny       BerthPreference = "ANY"
)

type Gender string

const (
	GenderMale   Gender = "M"
	GenderFemale Gender = "F"
	GenderOther  Gender = "O"
)

// BookingDraft is the in-progress booking held for a session until issuance succeeds.
// Its JSON form is the persisted session record and the issuance request body.
type BookingDraft struct {
	TrainNumber string          `json:"train_number" validate:"required"`
	TrainName   string          `json:"train_name" validate:"required"`
	JourneyDate string          `json:"journey_date" validate:"required,datetime=2006-01-02"`
	SeatClass   string          `json:"seat_class" validate:"required"`
	BaseFare    float64         `json:"base_fare,omitempty"`
	TotalFare   float64         `json:"total_fare" validate:"gt=0"`
	Name        string          `json:"name" validate:"required"`
	Age         int             `json:"age" validate:"gt=0"`
	Gender      Gender          `json:"gender" validate:"required,oneof=M F O"`
	Preference  BerthPreference `json:"preference" validate:"required,oneof=LOWER MIDDLE UPPER SIDE_LOWER SIDE_UPPER ANY"`

	// Payment is set once the charge settled and cleared with the draft.
	// It is never sent for issuance.
	Payment *PaymentRecord `json:"payment,omitempty" validate:"-"`
}

// PaymentRecord marks a draft whose charge settled but whose ticket was not yet issued
type PaymentRecord struct {
	TransactionID  string    `json:"transaction_id"`
	IdempotencyKey string    `json:"idempotency_key"`
	SettledAt      time.Time `json:"settled_at"`
}

// Paid reports whether the draft's charge has settled
func (d BookingDraft) Paid() bool {
	return d.Payment != nil
}

// Booking returns the draft without its payment record, as sent for issuance
func (d BookingDraft) Booking() BookingDraft {
	d.Payment = nil
	return d
}

// SameBooking reports whether both drafts describe the same booking,
// whatever their payment state
func (d BookingDraft) SameBooking(o BookingDraft) bool {
	return d.Booking() == o.Booking()
}

// Passenger is the data a user enters on the passenger step
type Passenger struct {
	Name       string          `json:"name"`
	Age        int             `json:"age"`
	Gender     Gender          `json:"gender"`
	Preference BerthPreference `json:"preference"`
	// JourneyDate is optional; it fills the draft when the quote carried no date
	JourneyDate string `json:"journey_date,omitempty"`
}

// Normalize trims free text and upper-cases the enumerated fields.
// An empty preference becomes ANY.
func (p Passenger) Normalize() Passenger {
	p.Name = strings.TrimSpace(p.Name)
	p.Gender = Gender(strings.ToUpper(strings.TrimSpace(string(p.Gender))))
	p.Preference = BerthPreference(strings.ToUpper(strings.TrimSpace(string(p.Preference))))
	if p.Preference == "" {
		p.Preference = BerthAny
	}
	p.JourneyDate = strings.TrimSpace(p.JourneyDate)
	return p
}

// WithPassenger returns a copy of the draft carrying the passenger fields
func (d BookingDraft) WithPassenger(p Passenger) BookingDraft {
	p = p.Normalize()
	d.Name = p.Name
	d.Age = p.Age
	d.Gender = p.Gender
	d.Preference = p.Preference
	if p.JourneyDate != "" {
		d.JourneyDate = p.JourneyDate
	}
	return d
}

// ClassLabel is the seat class as shown on the payment summary, e.g. "Sleeper (Lower)"
func (d BookingDraft) ClassLabel() string {
	if d.Preference == "" || d.Preference == BerthAny {
		return d.SeatClass
	}
	pref := strings.ToLower(strings.ReplaceAll(string(d.Preference), "_", " "))
	return d.SeatClass + " (" + strings.ToUpper(pref[:1]) + pref[1:] + ")"
}
