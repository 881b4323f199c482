package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/go-notify-nosql/internal/domain"
)

type mockDeviceSvc struct{ mock.Mock }

func (m *mockDeviceSvc) Register(ctx context.Context, recipientID string, category domain.Category, req domain.RegisterDeviceRequest) (*domain.Device, error) {
	args := m.Called(ctx, recipientID, category, req)
	if d, _ := args.Get(0).(*domain.Device); d != nil {
		return d, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDeviceSvc) List(ctx context.Context, recipientID string) ([]domain.Device, error) {
	args := m.Called(ctx, recipientID)
	return args.Get(0).([]domain.Device), args.Error(1)
}

func (m *mockDeviceSvc) Delete(ctx context.Context, recipientID, deviceID string) error {
	return m.Called(ctx, recipientID, deviceID).Error(0)
}

func TestDeviceRegister(t *testing.T) {
	svc := &mockDeviceSvc{}
	req := domain.RegisterDeviceRequest{Token: "tok", Platform: "android"}
	svc.On("Register", mock.Anything, "u1", domain.CategoryCustomer, req).Return(&domain.Device{DeviceID: "d1"}, nil)

	r := asCaller(httptest.NewRequest(http.MethodPost, "/v1/devices", jsonBody(t, req)), "u1", "customer", "user")
	rr := httptest.NewRecorder()
	NewDeviceHandler(svc).Register(rr, r)
	assert.Equal(t, http.StatusCreated, rr.Code)
	svc.AssertExpectations(t)
}

func TestDeviceRegister_MissingClaims(t *testing.T) {
	rr := httptest.NewRecorder()
	NewDeviceHandler(&mockDeviceSvc{}).Register(rr, httptest.NewRequest(http.MethodPost, "/v1/devices", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestDeviceList(t *testing.T) {
	svc := &mockDeviceSvc{}
	svc.On("List", mock.Anything, "u1").Return([]domain.Device{{DeviceID: "d1"}}, nil)

	r := asCaller(httptest.NewRequest(http.MethodGet, "/v1/devices", nil), "u1", "customer", "user")
	rr := httptest.NewRecorder()
	NewDeviceHandler(svc).List(rr, r)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestDeviceDelete_Forbidden(t *testing.T) {
	svc := &mockDeviceSvc{}
	svc.On("Delete", mock.Anything, "u1", "d9").Return(domain.ErrForbidden)

	r := withChiID(asCaller(httptest.NewRequest(http.MethodDelete, "/v1/devices/d9", nil), "u1", "customer", "user"), "d9")
	rr := httptest.NewRecorder()
	NewDeviceHandler(svc).Delete(rr, r)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}
