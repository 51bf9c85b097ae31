package models

// SeatAvailability is the per-class availability reported by train search
type SeatAvailability struct {
	Available int `json:"available"`
	RAC       int `json:"rac"`
	WL        int `json:"wl"`
}

// SearchResult is one train returned by the booking service search
type SearchResult struct {
	TrainNumber      string                      `json:"train_number"`
	TrainName        string                      `json:"train_name"`
	DepartureTime    string                      `json:"departure_time"`
	ArrivalTime      string                      `json:"arrival_time"`
	BaseFare         float64                     `json:"base_fare"`
	SeatAvailability map[string]SeatAvailability `json:"seat_availability,omitempty"`
	FastestPathFound string                      `json:"fastest_path_found"`
}

// FareQuote is an offer derived from a search result. It is immutable once produced.
type FareQuote struct {
	TrainNumber   string  `json:"train_number"`
	TrainName     string  `json:"train_name"`
	DepartureTime string  `json:"departure_time,omitempty"`
	ArrivalTime   string  `json:"arrival_time,omitempty"`
	JourneyDate   string  `json:"journey_date"`
	BaseFare      float64 `json:"base_fare"`
	SeatClass     string  `json:"seat_class"`
}
