package railapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cx-tal-miterani/rail-booking-system/internal/booking"
	"github.com/cx-tal-miterani/rail-booking-system/internal/models"
	"github.com/sirupsen/logrus"
)

// DefaultTimeout bounds every call to the booking service
const DefaultTimeout = 10 * time.Second

// IdempotencyHeader carries the per-run issuance key
const IdempotencyHeader = "Idempotency-Key"

// maxBody caps how much of a reply is read
const maxBody = 4 << 20

type issueResponse struct {
	Success   bool          `json:"success"`
	PNR       string        `json:"pnr"`
	TotalFare models.Amount `json:"total_fare"`
	Message   string        `json:"message"`
}

type pnrStatusResponse struct {
	Success bool             `json:"success"`
	Details []models.Segment `json:"details"`
	Message string           `json:"message"`
}

type cancelRequest struct {
	PNRNumber string `json:"pnr_number"`
}

type statusResponse struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	AvailableSeats int    `json:"available_seats"`
}

// Client calls the remote booking service
type Client struct {
	baseURL string
	http    *http.Client
	logger  *logrus.Entry
}

// NewClient creates a client for the service rooted at baseURL
func NewClient(baseURL string, timeout time.Duration, logger *logrus.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger.WithField("component", "railapi"),
	}
}

// SearchTrains lists trains between two stations
func (c *Client) SearchTrains(ctx context.Context, from, to string) ([]models.SearchResult, error) {
	q := url.Values{"from": {from}, "to": {to}}

	var results []models.SearchResult
	status, err := c.do(ctx, "search_trains", http.MethodGet, "/api/search_trains?"+q.Encode(), nil, nil, &results)
	if err != nil {
		return nil, err
	}
	if status >= 300 {
		return nil, &booking.TransportError{Op: "search_trains", Err: fmt.Errorf("unexpected status %d", status)}
	}
	return results, nil
}

// CheckSeats returns the confirmed berths still free for a train, date and class
func (c *Client) CheckSeats(ctx context.Context, train, date, class string) (int, error) {
	q := url.Values{"train": {train}, "date": {date}, "class": {class}}

	var resp statusResponse
	status, err := c.do(ctx, "check_seats", http.MethodGet, "/api/check_seats?"+q.Encode(), nil, nil, &resp)
	if err != nil {
		return 0, err
	}
	if !resp.Success {
		return 0, &booking.ServiceError{Op: "check_seats", StatusCode: status, Message: resp.Message}
	}
	return resp.AvailableSeats, nil
}

// IssueTicket submits the paid draft and returns the PNR
func (c *Client) IssueTicket(ctx context.Context, draft models.BookingDraft, idempotencyKey string) (string, error) {
	body, err := json.Marshal(draft.Booking())
	if err != nil {
		return "", fmt.Errorf("failed to marshal booking request: %w", err)
	}

	headers := http.Header{}
	if idempotencyKey != "" {
		headers.Set(IdempotencyHeader, idempotencyKey)
	}

	var resp issueResponse
	status, err := c.do(ctx, "book_ticket", http.MethodPost, "/api/book_ticket", body, headers, &resp)
	if err != nil {
		return "", err
	}
	if !resp.Success {
		return "", &booking.ServiceError{Op: "book_ticket", StatusCode: status, Message: resp.Message}
	}
	if resp.PNR == "" {
		return "", &booking.TransportError{Op: "book_ticket", Err: errors.New("reply carried no pnr")}
	}

	c.logger.WithFields(logrus.Fields{
		"pnr":   resp.PNR,
		"train": draft.TrainNumber,
	}).Info("Ticket issued")
	return resp.PNR, nil
}

// PNRStatus returns every segment of a ticket. An unknown reference
// yields an error matching booking.ErrNotFound.
func (c *Client) PNRStatus(ctx context.Context, pnr string) ([]models.Segment, error) {
	q := url.Values{"pnr": {pnr}}

	var resp pnrStatusResponse
	status, err := c.do(ctx, "pnr_status", http.MethodGet, "/api/pnr_status?"+q.Encode(), nil, nil, &resp)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, &booking.ServiceError{Op: "pnr_status", StatusCode: status, Message: resp.Message}
	}
	if len(resp.Details) == 0 {
		return nil, &booking.ServiceError{Op: "pnr_status", StatusCode: http.StatusNotFound}
	}
	return resp.Details, nil
}

// CancelTicket asks the service to cancel a ticket
func (c *Client) CancelTicket(ctx context.Context, pnr string) error {
	body, err := json.Marshal(cancelRequest{PNRNumber: pnr})
	if err != nil {
		return fmt.Errorf("failed to marshal cancel request: %w", err)
	}

	var resp statusResponse
	status, err := c.do(ctx, "cancel_ticket", http.MethodPost, "/api/cancel_ticket", body, nil, &resp)
	if err != nil {
		return err
	}
	if !resp.Success {
		return &booking.ServiceError{Op: "cancel_ticket", StatusCode: status, Message: resp.Message}
	}

	c.logger.WithField("pnr", pnr).Info("Ticket cancelled")
	return nil
}

// RouteMap returns the rendered route map image
func (c *Client) RouteMap(ctx context.Context, from, to string) ([]byte, string, error) {
	q := url.Values{"from": {from}, "to": {to}}

	req, err := c.newRequest(ctx, http.MethodGet, "/api/get_route_map?"+q.Encode(), nil, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", &booking.TransportError{Op: "get_route_map", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, "", &booking.TransportError{Op: "get_route_map", Err: err}
	}
	if resp.StatusCode >= 300 {
		return nil, "", &booking.TransportError{Op: "get_route_map", Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte, headers http.Header) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header[k] = v
	}
	return req, nil
}

// do sends a JSON request and decodes the reply into out whatever the
// status code, since the service reports failures in the body.
func (c *Client) do(ctx context.Context, op, method, path string, body []byte, headers http.Header, out interface{}) (int, error) {
	req, err := c.newRequest(ctx, method, path, body, headers)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WithError(err).WithField("op", op).Warn("Booking service unreachable")
		return 0, &booking.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	c.logger.WithFields(logrus.Fields{
		"op":       op,
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	}).Debug("Booking service call")

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return resp.StatusCode, &booking.TransportError{Op: op, Err: err}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return resp.StatusCode, &booking.TransportError{Op: op, Err: fmt.Errorf("malformed reply (status %d): %w", resp.StatusCode, err)}
	}
	return resp.StatusCode, nil
}
