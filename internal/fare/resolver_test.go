package fare

import (
	"net/url"
	"testing"

	"github.com/cx-tal-miterani/rail-booking-system/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rajdhani() models.SearchResult {
	return models.SearchResult{
		TrainNumber:   "12951",
		TrainName:     "Rajdhani Express",
		DepartureTime: "10:00 AM",
		ArrivalTime:   "06:00 PM",
		BaseFare:      500,
	}
}

func TestResolve_DefaultsClass(t *testing.T) {
	q := NewResolver("").Resolve(rajdhani(), "2024-06-01", "")

	assert.Equal(t, "Sleeper", q.SeatClass)
	assert.Equal(t, 500.0, q.BaseFare)
	assert.Equal(t, "2024-06-01", q.JourneyDate)
	assert.Equal(t, "10:00 AM", q.DepartureTime)
}

func TestResolve_KeepsChosenClass(t *testing.T) {
	q := NewResolver("").Resolve(rajdhani(), "2024-06-01", "AC 3 Tier")
	assert.Equal(t, "AC 3 Tier", q.SeatClass)
}

func TestEncodeDecode_Unsigned(t *testing.T) {
	r := NewResolver("")
	q := r.Resolve(rajdhani(), "2024-06-01", "")

	v := r.Encode(q)
	assert.Equal(t, "500.00", v.Get(KeyBaseFare))
	assert.Empty(t, v.Get(KeySignature))

	got, err := r.Decode(v)
	require.NoError(t, err)
	assert.Equal(t, "12951", got.TrainNumber)
	assert.Equal(t, "Rajdhani Express", got.TrainName)
	assert.Equal(t, 500.0, got.BaseFare)
	assert.Equal(t, "Sleeper", got.SeatClass)
}

func TestDecode_MissingClassDefaults(t *testing.T) {
	got, err := NewResolver("").Decode(url.Values{
		KeyTrain:    {"12951"},
		KeyBaseFare: {"750"},
	})
	require.NoError(t, err)
	assert.Equal(t, DefaultClass, got.SeatClass)
	assert.Equal(t, "12951", got.TrainName)
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		values url.Values
	}{
		{"missing train", url.Values{KeyBaseFare: {"500"}}},
		{"missing fare", url.Values{KeyTrain: {"12951"}}},
		{"fare not a number", url.Values{KeyTrain: {"12951"}, KeyBaseFare: {"cheap"}}},
		{"negative fare", url.Values{KeyTrain: {"12951"}, KeyBaseFare: {"-1"}}},
		{"fare is NaN", url.Values{KeyTrain: {"12951"}, KeyBaseFare: {"NaN"}}},
		{"fare is infinite", url.Values{KeyTrain: {"12951"}, KeyBaseFare: {"+Inf"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewResolver("").Decode(tt.values)
			assert.ErrorIs(t, err, ErrInvalidHandoff)
		})
	}
}

func TestDecode_SignedRejectsTampering(t *testing.T) {
	r := NewResolver("s3cret")
	v := r.Encode(r.Resolve(rajdhani(), "2024-06-01", ""))
	require.NotEmpty(t, v.Get(KeySignature))

	_, err := r.Decode(v)
	require.NoError(t, err)

	v.Set(KeyBaseFare, "1.00")
	_, err = r.Decode(v)
	assert.ErrorIs(t, err, ErrTampered)
	assert.ErrorIs(t, err, ErrInvalidHandoff)

	v.Del(KeySignature)
	_, err = r.Decode(v)
	assert.ErrorIs(t, err, ErrTampered)
}

func TestDecode_DifferentSecretRejected(t *testing.T) {
	v := NewResolver("one").Encode(NewResolver("one").Resolve(rajdhani(), "2024-06-01", ""))

	_, err := NewResolver("two").Decode(v)
	assert.ErrorIs(t, err, ErrTampered)
}

func TestSeed_TotalEqualsBase(t *testing.T) {
	q := NewResolver("").Resolve(rajdhani(), "2024-06-01", "")

	d := Seed(q)

	assert.Equal(t, q.BaseFare, d.TotalFare)
	assert.Equal(t, q.BaseFare, d.BaseFare)
	assert.Equal(t, models.BerthAny, d.Preference)
	assert.Empty(t, d.Name)
	assert.False(t, d.Paid())
}
