package patient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinic/frontdesk/pkg/pagination"
)

const patientBody = `{"id":"P1","name":"Asha Rao","age":34,"gender":"Female","contact":"9876543210","date":"2025-03-03","doctor":"Aditi Mam"}`

func doJSON(t *testing.T, fn echo.HandlerFunc, method, target, body string, params ...string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if len(params) == 2 {
		c.SetParamNames(params[0])
		c.SetParamValues(params[1])
	}
	return rec, fn(c)
}

func code(t *testing.T, err error) int {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected *echo.HTTPError, got %T", err)
	return he.Code
}

func TestHandler_PatientLifecycle(t *testing.T) {
	h := NewHandler(newTestService(t))

	rec, err := doJSON(t, h.CreatePatient, http.MethodPost, "/patients", patientBody)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, rec.Code)

	_, err = doJSON(t, h.CreatePatient, http.MethodPost, "/patients", patientBody)
	assert.Equal(t, http.StatusConflict, code(t, err))

	rec, err = doJSON(t, h.GetPatient, http.MethodGet, "/patients/P1", "", "id", "P1")
	require.NoError(t, err)
	assert.Contains(t, rec.Body.String(), `"name":"Asha Rao"`)

	rec, err = doJSON(t, h.ListPatients, http.MethodGet, "/patients?q=asha&limit=5", "")
	require.NoError(t, err)
	var page struct {
		Data  []PatientRecord `json:"data"`
		Total int             `json:"total"`
		Limit int             `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 5, page.Limit)

	edit := strings.Replace(patientBody, `"age":34`, `"age":35`, 1)
	_, err = doJSON(t, h.UpdatePatient, http.MethodPut, "/patients/P1", edit, "id", "P1")
	assert.Equal(t, http.StatusPreconditionRequired, code(t, err))

	rec, err = doJSON(t, h.UpdatePatient, http.MethodPut, "/patients/P1?confirm=true", edit, "id", "P1")
	require.NoError(t, err)
	assert.Contains(t, rec.Body.String(), `"age":35`)

	rec, err = doJSON(t, h.DeletePatient, http.MethodDelete, "/patients/P1?confirm=true", "", "id", "P1")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, err = doJSON(t, h.GetPatient, http.MethodGet, "/patients/P1", "", "id", "P1")
	assert.Equal(t, http.StatusNotFound, code(t, err))
}

func TestHandler_CreateValidation(t *testing.T) {
	h := NewHandler(newTestService(t))

	_, err := doJSON(t, h.CreatePatient, http.MethodPost, "/patients", `{"name":"Asha Rao"}`)
	require.Equal(t, http.StatusUnprocessableEntity, code(t, err))
	assert.Contains(t, err.(*echo.HTTPError).Message, "errors")

	_, err = doJSON(t, h.CreatePatient, http.MethodPost, "/patients", `{"age":"old"}`)
	assert.Equal(t, http.StatusBadRequest, code(t, err))
}

func TestHandler_ListDefaults(t *testing.T) {
	h := NewHandler(newTestService(t))
	rec, err := doJSON(t, h.ListPatients, http.MethodGet, "/patients", "")
	require.NoError(t, err)
	var page pagination.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, pagination.DefaultLimit, page.Limit)
	assert.Zero(t, page.Total)
}
