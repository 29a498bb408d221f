package push

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/linesmerrill/planner-alerts/models"
)

type mockIssuer struct {
	mock.Mock
}

func (m *mockIssuer) IssueToken(ctx context.Context, req TokenRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func TestRegisterNotADevice(t *testing.T) {
	host := &StaticHost{Device: false, OS: models.PlatformIOS}
	r := &Registrar{Host: host, Issuer: &mockIssuer{}, ProjectID: "p1"}

	tok, err := r.Register(context.Background(), "u1")

	assert.Nil(t, tok)
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.Equal(t, []string{msgUnsupported}, host.Alerts)
}

func TestRegisterAndroidSetsDefaultChannelFirst(t *testing.T) {
	host := &StaticHost{Device: false, OS: models.PlatformAndroid}
	r := &Registrar{Host: host, Issuer: &mockIssuer{}, ProjectID: "p1"}

	_, err := r.Register(context.Background(), "u1")

	assert.ErrorIs(t, err, ErrUnsupported)
	require.Len(t, host.Channels, 1)
	assert.Equal(t, "default", host.Channels[0].ID)
	assert.Equal(t, ImportanceMax, host.Channels[0].Importance)
	assert.Equal(t, []int{0, 250, 250, 250}, host.Channels[0].VibrationPattern)
	assert.Equal(t, "#FF231F7C", host.Channels[0].LightColor)
}

func TestRegisterPermissionDenied(t *testing.T) {
	host := &StaticHost{Device: true, OS: models.PlatformIOS, Status: PermissionUndetermined, OnRequest: PermissionDenied}
	issuer := &mockIssuer{}
	r := &Registrar{Host: host, Issuer: issuer, ProjectID: "p1"}

	tok, err := r.Register(context.Background(), "u1")

	assert.Nil(t, tok)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Equal(t, []string{msgDenied}, host.Alerts)
	issuer.AssertNotCalled(t, "IssueToken", mock.Anything, mock.Anything)
}

func TestRegisterMissingProjectID(t *testing.T) {
	host := &StaticHost{Device: true, OS: models.PlatformIOS, Status: PermissionGranted}
	issuer := &mockIssuer{}
	r := &Registrar{Host: host, Issuer: issuer}

	tok, err := r.Register(context.Background(), "u1")

	assert.Nil(t, tok)
	assert.ErrorIs(t, err, ErrMissingProjectID)
	assert.Empty(t, host.Alerts)
	issuer.AssertNotCalled(t, "IssueToken", mock.Anything, mock.Anything)
}

func TestRegisterRequestsPermissionThenIssues(t *testing.T) {
	host := &StaticHost{Device: true, OS: models.PlatformAndroid, Status: PermissionUndetermined, OnRequest: PermissionGranted, NativeToken: "fcm-abc"}
	issuer := &mockIssuer{}
	issuer.On("IssueToken", mock.Anything, TokenRequest{ProjectID: "p1", DeviceToken: "fcm-abc", Platform: models.PlatformAndroid}).
		Return("ExponentPushToken[xyz]", nil)
	now := time.Date(2024, 10, 20, 8, 0, 0, 0, time.UTC)
	r := &Registrar{Host: host, Issuer: issuer, ProjectID: "p1", Now: func() time.Time { return now }}

	tok, err := r.Register(context.Background(), "u1")

	require.NoError(t, err)
	assert.Equal(t, &models.DeviceToken{
		OwnerID:   "u1",
		Token:     "ExponentPushToken[xyz]",
		Platform:  models.PlatformAndroid,
		CreatedAt: now,
		UpdatedAt: now,
	}, tok)
	assert.Equal(t, PermissionGranted, host.Status)
	issuer.AssertExpectations(t)
}

func TestRegisterIssuerError(t *testing.T) {
	host := &StaticHost{Device: true, OS: models.PlatformIOS, Status: PermissionGranted, NativeToken: "apns"}
	issuer := &mockIssuer{}
	issuer.On("IssueToken", mock.Anything, mock.Anything).Return("", errors.New("expo down"))
	r := &Registrar{Host: host, Issuer: issuer, ProjectID: "p1"}

	tok, err := r.Register(context.Background(), "u1")

	assert.Nil(t, tok)
	assert.EqualError(t, err, "issue push token: expo down")
}
