package fare

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/cx-tal-miterani/rail-booking-system/internal/models"
)

// DefaultClass is applied when the user picked no class
const DefaultClass = models.SeatClassSleeper

// Handoff keys carried from the search page to the passenger step
const (
	KeyTrain     = "train"
	KeyTrainName = "train_name"
	KeyDate      = "date"
	KeyBaseFare  = "base_fare"
	KeyClass     = "class"
	KeySignature = "sig"
)

var (
	// ErrInvalidHandoff is returned for handoff values that cannot form a quote
	ErrInvalidHandoff = errors.New("invalid fare handoff")
	// ErrTampered is returned when a signed handoff no longer matches its signature
	ErrTampered = fmt.Errorf("%w: signature mismatch", ErrInvalidHandoff)
)

// Resolver turns search results into quotes and carries them across the
// page handoff. With a secret the handoff is signed.
type Resolver struct {
	secret []byte
}

func NewResolver(secret string) *Resolver {
	r := &Resolver{}
	if secret != "" {
		r.secret = []byte(secret)
	}
	return r
}

// Resolve builds a quote for the chosen train, date and class
func (r *Resolver) Resolve(result models.SearchResult, journeyDate, class string) models.FareQuote {
	class = strings.TrimSpace(class)
	if class == "" {
		class = DefaultClass
	}
	return models.FareQuote{
		TrainNumber:   result.TrainNumber,
		TrainName:     result.TrainName,
		DepartureTime: result.DepartureTime,
		ArrivalTime:   result.ArrivalTime,
		JourneyDate:   strings.TrimSpace(journeyDate),
		BaseFare:      result.BaseFare,
		SeatClass:     class,
	}
}

// Encode renders the quote as handoff values
func (r *Resolver) Encode(q models.FareQuote) url.Values {
	v := url.Values{}
	v.Set(KeyTrain, q.TrainNumber)
	v.Set(KeyTrainName, q.TrainName)
	v.Set(KeyDate, q.JourneyDate)
	v.Set(KeyBaseFare, strconv.FormatFloat(q.BaseFare, 'f', 2, 64))
	v.Set(KeyClass, q.SeatClass)
	if r.signed() {
		v.Set(KeySignature, r.sign(v))
	}
	return v
}

// Decode reads handoff values back into a quote
func (r *Resolver) Decode(v url.Values) (models.FareQuote, error) {
	var q models.FareQuote

	if r.signed() {
		got, err := hex.DecodeString(v.Get(KeySignature))
		want, _ := hex.DecodeString(r.sign(v))
		if err != nil || !hmac.Equal(got, want) {
			return q, ErrTampered
		}
	}

	q.TrainNumber = strings.TrimSpace(v.Get(KeyTrain))
	if q.TrainNumber == "" {
		return q, fmt.Errorf("%w: train is required", ErrInvalidHandoff)
	}

	raw := strings.TrimSpace(v.Get(KeyBaseFare))
	fare, err := strconv.ParseFloat(raw, 64)
	if err != nil || fare < 0 || math.IsNaN(fare) || math.IsInf(fare, 0) {
		return q, fmt.Errorf("%w: base_fare %q is not a valid amount", ErrInvalidHandoff, raw)
	}

	q.BaseFare = fare
	q.TrainName = strings.TrimSpace(v.Get(KeyTrainName))
	if q.TrainName == "" {
		q.TrainName = q.TrainNumber
	}
	q.JourneyDate = strings.TrimSpace(v.Get(KeyDate))
	q.SeatClass = strings.TrimSpace(v.Get(KeyClass))
	if q.SeatClass == "" {
		q.SeatClass = DefaultClass
	}
	return q, nil
}

// Seed creates the draft a quote is consumed into. The total is the base fare.
func Seed(q models.FareQuote) models.BookingDraft {
	return models.BookingDraft{
		TrainNumber: q.TrainNumber,
		TrainName:   q.TrainName,
		JourneyDate: q.JourneyDate,
		SeatClass:   q.SeatClass,
		BaseFare:    q.BaseFare,
		TotalFare:   q.BaseFare,
		Preference:  models.BerthAny,
	}
}

func (r *Resolver) signed() bool {
	return len(r.secret) > 0
}

func (r *Resolver) sign(v url.Values) string {
	mac := hmac.New(sha256.New, r.secret)
	mac.Write([]byte(strings.Join([]string{
		v.Get(KeyTrain),
		v.Get(KeyTrainName),
		v.Get(KeyDate),
		v.Get(KeyBaseFare),
		v.Get(KeyClass),
	}, "|")))
	return hex.EncodeToString(mac.Sum(nil))
}
