package scheduling

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinic/frontdesk/internal/domain/calendar"
	"github.com/clinic/frontdesk/internal/platform/auth"
)

func newTestHandler() (*Handler, *mockSlotStore) {
	l, store := newTestLedger()
	a := NewAvailability(StoreOccupancy{Store: store}, l.Grid(), calendar.Default())
	return NewHandler(l, a, calendar.Default()), store
}

func jsonRequest(method, target, body string) (*http.Request, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req, httptest.NewRecorder()
}

func httpStatus(t *testing.T, err error) int {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected *echo.HTTPError, got %T", err)
	return he.Code
}

const bookingBody = `{"date":"2025-03-03","doctor_id":"Aditi Mam","slot_label":"10:30 - 10:36","patient_name":"Asha Rao","patient_phone":"9876543210"}`

func TestHandler_CreateBooking(t *testing.T) {
	h, _ := newTestHandler()
	e := echo.New()

	req, rec := jsonRequest(http.MethodPost, "/bookings", bookingBody)
	require.NoError(t, h.CreateBooking(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusCreated, rec.Code)

	var b Booking
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	assert.Equal(t, "Asha Rao", b.PatientName)
	assert.Equal(t, monday, b.Date)

	req, rec = jsonRequest(http.MethodPost, "/bookings", bookingBody)
	err := h.CreateBooking(e.NewContext(req, rec))
	assert.Equal(t, http.StatusConflict, httpStatus(t, err))
	assert.Contains(t, err.(*echo.HTTPError).Message, "already taken")
}

func TestHandler_CreateBookingValidation(t *testing.T) {
	h, store := newTestHandler()
	e := echo.New()

	body := `{"date":"2025-03-03","doctor_id":"Aditi Mam","slot_label":"10:30 - 10:36","patient_name":"Jo","patient_phone":"12"}`
	req, rec := jsonRequest(http.MethodPost, "/bookings", body)
	err := h.CreateBooking(e.NewContext(req, rec))
	assert.Equal(t, http.StatusUnprocessableEntity, httpStatus(t, err))
	assert.Zero(t, store.inserts)

	req, rec = jsonRequest(http.MethodPost, "/bookings", `{"date":"03/03/2025"}`)
	err = h.CreateBooking(e.NewContext(req, rec))
	assert.Equal(t, http.StatusBadRequest, httpStatus(t, err))
}

func TestHandler_ReplaceNeedsConfirmation(t *testing.T) {
	h, _ := newTestHandler()
	e := echo.New()

	req, rec := jsonRequest(http.MethodPost, "/bookings", bookingBody)
	require.NoError(t, h.CreateBooking(e.NewContext(req, rec)))

	replace := `{"date":"2025-03-03","doctor_id":"Aditi Mam","slot_label":"10:30 - 10:36","patient_name":"Ravi Kumar","patient_phone":"9123456780","replace":true}`
	req, rec = jsonRequest(http.MethodPost, "/bookings", replace)
	err := h.CreateBooking(e.NewContext(req, rec))
	assert.Equal(t, http.StatusPreconditionRequired, httpStatus(t, err))

	req, rec = jsonRequest(http.MethodPost, "/bookings?confirm=true", replace)
	require.NoError(t, h.CreateBooking(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), "Ravi Kumar")
}

func TestHandler_UpdateAndDelete(t *testing.T) {
	h, store := newTestHandler()
	e := echo.New()

	req, rec := jsonRequest(http.MethodPost, "/bookings", bookingBody)
	require.NoError(t, h.CreateBooking(e.NewContext(req, rec)))
	var b Booking
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))

	req, rec = jsonRequest(http.MethodPut, "/bookings/"+b.ID.String(), `{"slot_label":"12:42 - 12:48"}`)
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(b.ID.String())
	require.NoError(t, h.UpdateBooking(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), slot22)

	req = httptest.NewRequest(http.MethodDelete, "/bookings/"+b.ID.String(), nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(b.ID.String())
	err := h.DeleteBooking(c)
	assert.Equal(t, http.StatusPreconditionRequired, httpStatus(t, err))
	assert.Len(t, store.bookings, 1)

	req = httptest.NewRequest(http.MethodDelete, "/bookings/"+b.ID.String()+"?confirm=true", nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(b.ID.String())
	require.NoError(t, h.DeleteBooking(c))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, store.bookings)

	req = httptest.NewRequest(http.MethodDelete, "/bookings/x?confirm=true", nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(uuid.NewString())
	assert.Equal(t, http.StatusNotFound, httpStatus(t, h.DeleteBooking(c)))
}

func TestHandler_GetDayAndMonth(t *testing.T) {
	h, _ := newTestHandler()
	e := echo.New()

	req, rec := jsonRequest(http.MethodPost, "/bookings", bookingBody)
	require.NoError(t, h.CreateBooking(e.NewContext(req, rec)))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	rec = httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("doctor", "date")
	c.SetParamValues(doctor, "2025-03-03")
	require.NoError(t, h.GetDay(c))
	var day DaySchedule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &day))
	assert.Equal(t, 1, day.Booked)
	assert.Equal(t, 69, day.Available)
	assert.Len(t, day.Slots, 70)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.SetParamNames("doctor", "date")
	c.SetParamValues(doctor, "2025-03-03")
	require.NoError(t, h.GetDaySummary(c))
	var summary DaySummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 1, summary.Booked)
	assert.Equal(t, 69, summary.Available)
	assert.False(t, summary.Closed)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.SetParamNames("doctor", "year", "month")
	c.SetParamValues(doctor, "2025", "3")
	require.NoError(t, h.GetMonth(c))
	var month MonthView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &month))
	assert.Equal(t, 24*70-1, month.Available)

	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.SetParamNames("doctor", "date")
	c.SetParamValues(doctor, "2025-3-3")
	assert.Equal(t, http.StatusBadRequest, httpStatus(t, h.GetDay(c)))
}

func TestHandler_GetClosureAndNextFree(t *testing.T) {
	h, _ := newTestHandler()
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("date")
	c.SetParamValues("2025-03-14")
	require.NoError(t, h.GetClosure(c))
	assert.Contains(t, rec.Body.String(), `"holiday_name":"Holi"`)

	req = httptest.NewRequest(http.MethodGet, "/?days=400", nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.SetParamNames("doctor", "date")
	c.SetParamValues(doctor, "2025-03-09")
	assert.Equal(t, http.StatusBadRequest, httpStatus(t, h.GetNextFree(c)))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.SetParamNames("doctor", "date")
	c.SetParamValues(doctor, "2025-03-09")
	require.NoError(t, h.GetNextFree(c))
	assert.Contains(t, rec.Body.String(), `"date":"2025-03-10"`)
	assert.Contains(t, rec.Body.String(), firstSlot)
}

func TestHandler_GetGrid(t *testing.T) {
	h, _ := newTestHandler()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/grid", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, h.GetGrid(e.NewContext(req, rec)))

	var body struct {
		Start string `json:"start"`
		Slots []Slot `json:"slots"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "10:30", body.Start)
	require.Len(t, body.Slots, 70)
	assert.Equal(t, "19:24 - 19:30", body.Slots[69].Label)
}

func TestHandler_RoutesEnforceRoles(t *testing.T) {
	h, _ := newTestHandler()
	e := echo.New()
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			roles := strings.Split(c.Request().Header.Get("X-Test-Roles"), ",")
			c.SetRequest(c.Request().WithContext(auth.WithUser(c.Request().Context(), "u1", roles)))
			return next(c)
		}
	})
	h.RegisterRoutes(e.Group("/api/v1"))

	req, rec := jsonRequest(http.MethodPost, "/api/v1/bookings", bookingBody)
	req.Header.Set("X-Test-Roles", auth.RoleDoctor)
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req, rec = jsonRequest(http.MethodPost, "/api/v1/bookings", bookingBody)
	req.Header.Set("X-Test-Roles", auth.RoleFrontDesk)
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/doctors/Aditi%20Mam/days/2025-03-03", nil)
	req.Header.Set("X-Test-Roles", auth.RoleDoctor)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"booked":1`)
}
