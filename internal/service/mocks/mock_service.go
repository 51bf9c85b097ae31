package mocks

import (
	"context"
	"net/url"

	"github.com/cx-tal-miterani/rail-booking-system/internal/booking"
	"github.com/cx-tal-miterani/rail-booking-system/internal/models"
	"github.com/cx-tal-miterani/rail-booking-system/internal/service"
	"github.com/cx-tal-miterani/rail-booking-system/internal/ticket"
	"github.com/stretchr/testify/mock"
)

// MockBookingService is a mock implementation of BookingService
type MockBookingService struct {
	mock.Mock
}

func (m *MockBookingService) SearchTrains(ctx context.Context, from, to, date, class string) ([]service.TrainOption, error) {
	args := m.Called(ctx, from, to, date, class)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]service.TrainOption), args.Error(1)
}

func (m *MockBookingService) CheckSeats(ctx context.Context, train, date, class string) (int, error) {
	args := m.Called(ctx, train, date, class)
	return args.Int(0), args.Error(1)
}

func (m *MockBookingService) RouteMap(ctx context.Context, from, to string) ([]byte, string, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.String(1), args.Error(2)
	}
	return args.Get(0).([]byte), args.String(1), args.Error(2)
}

func (m *MockBookingService) SelectQuote(ctx context.Context, sessionID string, handoff url.Values) (*service.BookingStatus, error) {
	args := m.Called(ctx, sessionID, handoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.BookingStatus), args.Error(1)
}

func (m *MockBookingService) SavePassenger(ctx context.Context, sessionID string, p models.Passenger) (*service.BookingStatus, error) {
	args := m.Called(ctx, sessionID, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.BookingStatus), args.Error(1)
}

func (m *MockBookingService) GetBooking(ctx context.Context, sessionID string) (*service.BookingStatus, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.BookingStatus), args.Error(1)
}

func (m *MockBookingService) SubmitPayment(ctx context.Context, sessionID string) (*booking.Outcome, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*booking.Outcome), args.Error(1)
}

func (m *MockBookingService) LookupPNR(ctx context.Context, pnr string) (*ticket.View, error) {
	args := m.Called(ctx, pnr)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ticket.View), args.Error(1)
}

func (m *MockBookingService) TicketPDF(ctx context.Context, pnr string) ([]byte, string, error) {
	args := m.Called(ctx, pnr)
	if args.Get(0) == nil {
		return nil, args.String(1), args.Error(2)
	}
	return args.Get(0).([]byte), args.String(1), args.Error(2)
}

func (m *MockBookingService) CancelTicket(ctx context.Context, pnr string) (*ticket.CancelResult, error) {
	args := m.Called(ctx, pnr)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ticket.CancelResult), args.Error(1)
}

var _ service.BookingService = (*MockBookingService)(nil)
