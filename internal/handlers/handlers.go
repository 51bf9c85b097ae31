package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cx-tal-miterani/rail-booking-system/internal/booking"
	"github.com/cx-tal-miterani/rail-booking-system/internal/fare"
	"github.com/cx-tal-miterani/rail-booking-system/internal/models"
	"github.com/cx-tal-miterani/rail-booking-system/internal/service"
	"github.com/cx-tal-miterani/rail-booking-system/internal/session"
	"github.com/cx-tal-miterani/rail-booking-system/internal/ticket"
	"github.com/cx-tal-miterani/rail-booking-system/internal/websocket"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Handler contains HTTP handlers for the API
type Handler struct {
	bookingService service.BookingService
	hub            *websocket.Hub
	logger         *logrus.Logger
}

// NewHandler creates a new Handler instance. hub may be nil when progress
// push is disabled.
func NewHandler(bookingService service.BookingService, hub *websocket.Hub, logger *logrus.Logger) *Handler {
	return &Handler{
		bookingService: bookingService,
		hub:            hub,
		logger:         logger,
	}
}

// CancelRequest is the body of POST /api/cancel
type CancelRequest struct {
	PNR string `json:"pnr_number"`
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusFor maps a booking-flow error to an HTTP status
func statusFor(err error) int {
	var verr *booking.ValidationError
	var ierr *booking.IssuanceError
	var serr *booking.ServiceError
	var terr *booking.TransportError

	switch {
	case errors.As(err, &verr), errors.Is(err, fare.ErrInvalidHandoff):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNoDraft), errors.Is(err, booking.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, booking.ErrSubmissionInProgress),
		errors.Is(err, booking.ErrInvalidTransition),
		errors.Is(err, booking.ErrAlreadyConfirmed):
		return http.StatusConflict
	case errors.As(err, &ierr), errors.As(err, &serr), errors.As(err, &terr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (h *Handler) log(r *http.Request) *logrus.Entry {
	return h.logger.WithFields(logrus.Fields{
		"method":    r.Method,
		"path":      r.URL.Path,
		"sessionId": SessionID(r.Context()),
	})
}

// SearchTrains handles GET /api/trains
func (h *Handler) SearchTrains(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to := strings.TrimSpace(q.Get("from")), strings.TrimSpace(q.Get("to"))
	if from == "" || to == "" {
		respondError(w, http.StatusBadRequest, "Source and destination stations are required")
		return
	}

	options, err := h.bookingService.SearchTrains(r.Context(), from, to, q.Get("date"), q.Get("class"))
	if err != nil {
		h.log(r).WithError(err).Warn("Train search failed")
		respondError(w, statusFor(err), booking.UserMessage(err))
		return
	}
	respondJSON(w, http.StatusOK, options)
}

// CheckSeats handles GET /api/seats
func (h *Handler) CheckSeats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	train := strings.TrimSpace(q.Get("train"))
	if train == "" {
		respondError(w, http.StatusBadRequest, "Train number is required")
		return
	}

	available, err := h.bookingService.CheckSeats(r.Context(), train, q.Get("date"), q.Get("class"))
	if err != nil {
		respondError(w, statusFor(err), booking.UserMessage(err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"available": available})
}

// RouteMap handles GET /api/route-map
func (h *Handler) RouteMap(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	data, contentType, err := h.bookingService.RouteMap(r.Context(), q.Get("from"), q.Get("to"))
	if err != nil {
		respondError(w, statusFor(err), booking.UserMessage(err))
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// SelectQuote handles POST /api/booking/quote. The handoff arrives as form
// or query values.
func (h *Handler) SelectQuote(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	status, err := h.bookingService.SelectQuote(r.Context(), SessionID(r.Context()), r.Form)
	if err != nil {
		respondError(w, statusFor(err), booking.UserMessage(err))
		return
	}
	respondJSON(w, http.StatusCreated, status)
}

// SavePassenger handles POST /api/booking/passenger
func (h *Handler) SavePassenger(w http.ResponseWriter, r *http.Request) {
	var p models.Passenger
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	status, err := h.bookingService.SavePassenger(r.Context(), SessionID(r.Context()), p)
	if err != nil {
		respondError(w, statusFor(err), booking.UserMessage(err))
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// GetBooking handles GET /api/booking
func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	status, err := h.bookingService.GetBooking(r.Context(), SessionID(r.Context()))
	if err != nil {
		respondError(w, statusFor(err), booking.UserMessage(err))
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// SubmitPayment handles POST /api/booking/pay. The outcome is returned
// with every status so the page can show its message.
func (h *Handler) SubmitPayment(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.bookingService.SubmitPayment(r.Context(), SessionID(r.Context()))
	if err != nil {
		h.log(r).WithError(err).Warn("Payment submission failed")
		respondJSON(w, statusFor(err), outcome)
		return
	}

	status := http.StatusOK
	if outcome.State == booking.StatePaymentInProgress {
		status = http.StatusAccepted
	}
	respondJSON(w, status, outcome)
}

// LookupPNR handles GET /api/pnr
func (h *Handler) LookupPNR(w http.ResponseWriter, r *http.Request) {
	v, err := h.bookingService.LookupPNR(r.Context(), r.URL.Query().Get("pnr"))
	if err != nil {
		respondError(w, statusFor(err), ticket.LookupMessage(err))
		return
	}
	respondJSON(w, http.StatusOK, v)
}

// TicketPDF handles GET /api/pnr/{pnr}/ticket.pdf
func (h *Handler) TicketPDF(w http.ResponseWriter, r *http.Request) {
	pnr := mux.Vars(r)["pnr"]

	data, filename, err := h.bookingService.TicketPDF(r.Context(), pnr)
	if err != nil {
		respondError(w, statusFor(err), ticket.LookupMessage(err))
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// CancelTicket handles POST /api/cancel
func (h *Handler) CancelTicket(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.bookingService.CancelTicket(r.Context(), req.PNR)
	if err != nil {
		h.log(r).WithError(err).WithField("pnr", req.PNR).Warn("Cancellation failed")
		respondJSON(w, statusFor(err), res)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// BookingUpdates handles GET /api/booking/ws
func (h *Handler) BookingUpdates(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		respondError(w, http.StatusNotFound, "Progress updates are not enabled")
		return
	}
	h.hub.ServeWS(w, r, SessionID(r.Context()))
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}
