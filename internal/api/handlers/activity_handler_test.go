package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/welldanyogia/timecapsule-backend/internal/api/middleware"
	"github.com/welldanyogia/timecapsule-backend/internal/mocks"
	"github.com/welldanyogia/timecapsule-backend/internal/models"
	"github.com/welldanyogia/timecapsule-backend/internal/testutil"
)

func activityContext(target string, account *models.Account) (echo.Context, *httptest.ResponseRecorder) {
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, target, nil), rec)
	if account != nil {
		middleware.SetCurrentAccount(c, account)
	}
	return c, rec
}

func TestActivityHandler_List(t *testing.T) {
	account := testutil.NewAccountBuilder().Build()
	repo := new(mocks.MockActivityRepository)
	entries := []models.ActivityLog{{UserID: account.ID, Action: models.ActionMessageDelivered, Details: "Delivered message x to y"}}
	repo.On("ListByUser", mock.Anything, account.ID, 10, 0).Return(entries, int64(1), nil)
	c, rec := activityContext("/api/activity?limit=10", account)

	require.NoError(t, NewActivityHandler(repo).List(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"action":"message_delivered"`)
	assert.Contains(t, rec.Body.String(), `"total":1`)
	repo.AssertExpectations(t)
}

func TestActivityHandler_ListError(t *testing.T) {
	account := testutil.NewAccountBuilder().Build()
	repo := new(mocks.MockActivityRepository)
	repo.On("ListByUser", mock.Anything, account.ID, 20, 0).Return(nil, int64(0), errors.New("boom"))
	c, rec := activityContext("/api/activity", account)

	require.NoError(t, NewActivityHandler(repo).List(c))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestActivityHandler_ListWithoutAccount(t *testing.T) {
	c, rec := activityContext("/api/activity", nil)

	require.NoError(t, NewActivityHandler(new(mocks.MockActivityRepository)).List(c))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
