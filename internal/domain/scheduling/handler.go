package scheduling

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/frontdesk/internal/domain/calendar"
	"github.com/clinic/frontdesk/internal/platform/apperr"
	"github.com/clinic/frontdesk/internal/platform/auth"
)

const defaultNextFreeDays = 30

type Handler struct {
	ledger *Ledger
	avail  *Availability
	cal    *calendar.Calendar
}

func NewHandler(ledger *Ledger, avail *Availability, cal *calendar.Calendar) *Handler {
	return &Handler{ledger: ledger, avail: avail, cal: cal}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleFrontDesk, auth.RoleDoctor))
	read.GET("/grid", h.GetGrid)
	read.GET("/holidays", h.ListHolidays)
	read.GET("/calendar/:date", h.GetClosure)
	read.GET("/doctors/:doctor/days/:date", h.GetDay)
	read.GET("/doctors/:doctor/days/:date/summary", h.GetDaySummary)
	read.GET("/doctors/:doctor/months/:year/:month", h.GetMonth)
	read.GET("/doctors/:doctor/years/:year", h.GetYear)
	read.GET("/doctors/:doctor/next-free/:date", h.GetNextFree)
	read.GET("/bookings/search", h.SearchBookings)

	write := api.Group("", auth.RequireRole(auth.RoleFrontDesk))
	write.POST("/bookings", h.CreateBooking)
	write.PUT("/bookings/:id", h.UpdateBooking)
	write.DELETE("/bookings/:id", h.DeleteBooking)
}

// ConfirmFromRequest approves when the request carries confirm=true, either
// as a query parameter or as the body flag already decoded by the caller.
func ConfirmFromRequest(c echo.Context, bodyFlag bool) Confirmer {
	q, _ := strconv.ParseBool(c.QueryParam("confirm"))
	approved := q || bodyFlag
	return ConfirmFunc(func(context.Context, Confirmation) bool { return approved })
}

func parseDateParam(c echo.Context, name string) (calendar.Date, error) {
	d, err := calendar.ParseDate(c.Param(name))
	if err != nil {
		return calendar.Date{}, echo.NewHTTPError(http.StatusBadRequest, "invalid date: expected YYYY-MM-DD")
	}
	return d, nil
}

func parseIntParam(c echo.Context, name string) (int, error) {
	n, err := strconv.Atoi(c.Param(name))
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return n, nil
}

func (h *Handler) GetGrid(c echo.Context) error {
	cfg := h.ledger.Grid().Config()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"start":        cfg.Start.String(),
		"slot_minutes": cfg.SlotMinutes,
		"breaks":       cfg.Breaks,
		"slots":        h.ledger.Grid().Slots(),
	})
}

func (h *Handler) ListHolidays(c echo.Context) error {
	year := calendar.Today().Year
	if y := c.QueryParam("year"); y != "" {
		n, err := strconv.Atoi(y)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid year")
		}
		year = n
	}
	return c.JSON(http.StatusOK, h.cal.Holidays(year))
}

func (h *Handler) GetClosure(c echo.Context) error {
	d, err := parseDateParam(c, "date")
	if err != nil {
		return err
	}
	cl := h.cal.Closure(d)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"date":         d,
		"closed":       cl.Closed,
		"sunday":       cl.Sunday,
		"holiday_name": cl.HolidayName,
		"warning":      cl.Warning(),
	})
}

func (h *Handler) GetDay(c echo.Context) error {
	d, err := parseDateParam(c, "date")
	if err != nil {
		return err
	}
	v, err := h.ledger.DayView(c.Request().Context(), d, c.Param("doctor"))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, v)
}

// GetDaySummary reports a day's counts without the occupant list.
func (h *Handler) GetDaySummary(c echo.Context) error {
	d, err := parseDateParam(c, "date")
	if err != nil {
		return err
	}
	v, err := h.avail.Day(c.Request().Context(), d, c.Param("doctor"))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) GetMonth(c echo.Context) error {
	year, err := parseIntParam(c, "year")
	if err != nil {
		return err
	}
	month, err := parseIntParam(c, "month")
	if err != nil {
		return err
	}
	v, err := h.avail.Month(c.Request().Context(), year, time.Month(month), c.Param("doctor"))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) GetYear(c echo.Context) error {
	year, err := parseIntParam(c, "year")
	if err != nil {
		return err
	}
	v, err := h.avail.Year(c.Request().Context(), year, c.Param("doctor"))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) GetNextFree(c echo.Context) error {
	d, err := parseDateParam(c, "date")
	if err != nil {
		return err
	}
	days := defaultNextFreeDays
	if s := c.QueryParam("days"); s != "" {
		if days, err = strconv.Atoi(s); err != nil || days <= 0 || days > 366 {
			return echo.NewHTTPError(http.StatusBadRequest, "days must be between 1 and 366")
		}
	}
	date, label, ok, err := h.ledger.NextFreeDay(c.Request().Context(), d, c.Param("doctor"), days)
	if err != nil {
		return apperr.HTTP(err)
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no free slot in the next "+strconv.Itoa(days)+" days")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"date": date, "slot_label": label})
}

func (h *Handler) SearchBookings(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	items, err := h.ledger.Search(c.Request().Context(), c.QueryParam("doctor"), c.QueryParam("q"), limit)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}

type createRequest struct {
	Create
	Confirm bool `json:"confirm"`
}

func (h *Handler) CreateBooking(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b, err := h.ledger.Book(c.Request().Context(), req.Create, ConfirmFromRequest(c, req.Confirm))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) UpdateBooking(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var e Edit
	if err := c.Bind(&e); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	e.BookingID = id
	b, err := h.ledger.Update(c.Request().Context(), e)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) DeleteBooking(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.ledger.Delete(c.Request().Context(), id, ConfirmFromRequest(c, false)); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}
