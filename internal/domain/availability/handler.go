package availability

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medappt/medappt/internal/platform/auth"
	"github.com/medappt/medappt/internal/platform/db"
	"github.com/medappt/medappt/pkg/customfields"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/doctor-availability")

	// Read endpoints – any authenticated staff member or patient
	read := g.Group("", auth.RequireRole(auth.RoleAdmin, auth.RolePhysician, auth.RoleReceptionist, auth.RolePatient))
	read.GET("/availability/id/:id", h.GetWindow)
	read.GET("/availability/:type/:number", h.ListWindows)
	read.GET("/blocked-time/id/:id", h.GetBlockedTime)
	read.GET("/blocked-time/:type/:number", h.ListBlockedTime)
	read.GET("/time-slots/:type/:number", h.GetTimeSlots)
	read.GET("/check-availability/:type/:number", h.CheckAvailability)

	// Write endpoints – admin, physician, receptionist
	write := g.Group("", auth.RequireRole(auth.RoleAdmin, auth.RolePhysician, auth.RoleReceptionist))
	write.POST("/availability", h.CreateWindow)
	write.PATCH("/availability/:id", h.UpdateWindow)
	write.DELETE("/availability/:id", h.DeactivateWindow)
	write.POST("/blocked-time", h.CreateBlockedTime)
	write.PATCH("/blocked-time/:id", h.UpdateBlockedTime)
	write.DELETE("/blocked-time/:id", h.DeactivateBlockedTime)
}

// httpError maps service errors onto HTTP status codes.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, customfields.ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func doctorParam(c echo.Context) (DoctorIdentity, error) {
	typeID, err := strconv.Atoi(c.Param("type"))
	if err != nil {
		return DoctorIdentity{}, invalid("doctor_document_type_id must be an integer")
	}
	d := DoctorIdentity{DocumentTypeID: typeID, DocumentNumber: c.Param("number")}
	return d, d.Validate()
}

func idParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// -- Weekly windows --

type windowRequest struct {
	DoctorDocumentTypeID       *int                   `json:"doctor_document_type_id"`
	DoctorDocumentNumber       *string                `json:"doctor_document_number"`
	DayOfWeek                  *int                   `json:"day_of_week"`
	StartTime                  *TimeOfDay             `json:"start_time"`
	EndTime                    *TimeOfDay             `json:"end_time"`
	AppointmentDurationMinutes *int                   `json:"appointment_duration_minutes"`
	IsActive                   *bool                  `json:"is_active"`
	CustomFields               map[string]interface{} `json:"custom_fields"`
}

func (r *windowRequest) window() (*Window, error) {
	if r.DoctorDocumentTypeID == nil || r.DoctorDocumentNumber == nil {
		return nil, invalid("doctor_document_type_id and doctor_document_number are required")
	}
	if r.DayOfWeek == nil || r.StartTime == nil || r.EndTime == nil {
		return nil, invalid("day_of_week, start_time and end_time are required")
	}
	w := &Window{
		DoctorIdentity: DoctorIdentity{DocumentTypeID: *r.DoctorDocumentTypeID, DocumentNumber: *r.DoctorDocumentNumber},
		DayOfWeek:      *r.DayOfWeek,
		StartTime:      *r.StartTime,
		EndTime:        *r.EndTime,
		CustomFields:   r.CustomFields,
	}
	if r.AppointmentDurationMinutes != nil {
		w.SlotDurationMinutes = *r.AppointmentDurationMinutes
	}
	return w, nil
}

func (r *windowRequest) patch() WindowPatch {
	p := WindowPatch{
		DayOfWeek:           r.DayOfWeek,
		StartTime:           r.StartTime,
		EndTime:             r.EndTime,
		SlotDurationMinutes: r.AppointmentDurationMinutes,
		Active:              r.IsActive,
		CustomFields:        r.CustomFields,
	}
	if r.DoctorDocumentTypeID != nil && r.DoctorDocumentNumber != nil {
		p.Doctor = &DoctorIdentity{DocumentTypeID: *r.DoctorDocumentTypeID, DocumentNumber: *r.DoctorDocumentNumber}
	}
	return p
}

func (h *Handler) CreateWindow(c echo.Context) error {
	var req windowRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := customfields.Validate(req.CustomFields); err != nil {
		return httpError(err)
	}
	w, err := req.window()
	if err != nil {
		return httpError(err)
	}
	if err := h.svc.CreateWindow(c.Request().Context(), db.TenantFromContext(c), w); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, w)
}

func (h *Handler) GetWindow(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	w, err := h.svc.GetWindow(c.Request().Context(), db.TenantFromContext(c), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, w)
}

func (h *Handler) ListWindows(c echo.Context) error {
	doctor, err := doctorParam(c)
	if err != nil {
		return httpError(err)
	}
	ctx := c.Request().Context()
	tenantID := db.TenantFromContext(c)

	var items []*Window
	if day := c.QueryParam("day_of_week"); day != "" {
		dow, err := strconv.Atoi(day)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "day_of_week must be an integer")
		}
		items, err = h.svc.ListActiveWindows(ctx, tenantID, doctor, dow)
		if err != nil {
			return httpError(err)
		}
	} else {
		includeInactive := c.QueryParam("include_inactive") == "true"
		items, err = h.svc.ListWindows(ctx, tenantID, doctor, includeInactive)
		if err != nil {
			return httpError(err)
		}
	}
	if items == nil {
		items = []*Window{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) UpdateWindow(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var req windowRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := customfields.Validate(req.CustomFields); err != nil {
		return httpError(err)
	}
	w, err := h.svc.UpdateWindow(c.Request().Context(), db.TenantFromContext(c), id, req.patch())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, w)
}

func (h *Handler) DeactivateWindow(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeactivateWindow(c.Request().Context(), db.TenantFromContext(c), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Blocked time --

type blockedTimeRequest struct {
	DoctorDocumentTypeID *int                   `json:"doctor_document_type_id"`
	DoctorDocumentNumber *string                `json:"doctor_document_number"`
	StartDatetime        *string                `json:"start_datetime"`
	EndDatetime          *string                `json:"end_datetime"`
	Reason               *string                `json:"reason"`
	IsActive             *bool                  `json:"is_active"`
	CustomFields         map[string]interface{} `json:"custom_fields"`
}

func optionalDateTime(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	t, err := ParseDateTime(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *blockedTimeRequest) patch() (BlockedTimePatch, error) {
	start, err := optionalDateTime(r.StartDatetime)
	if err != nil {
		return BlockedTimePatch{}, err
	}
	end, err := optionalDateTime(r.EndDatetime)
	if err != nil {
		return BlockedTimePatch{}, err
	}
	return BlockedTimePatch{
		StartDatetime: start,
		EndDatetime:   end,
		Reason:        r.Reason,
		Active:        r.IsActive,
		CustomFields:  r.CustomFields,
	}, nil
}

func (r *blockedTimeRequest) blockedTime() (*BlockedTime, error) {
	if r.DoctorDocumentTypeID == nil || r.DoctorDocumentNumber == nil {
		return nil, invalid("doctor_document_type_id and doctor_document_number are required")
	}
	if r.StartDatetime == nil || r.EndDatetime == nil {
		return nil, invalid("start_datetime and end_datetime are required")
	}
	p, err := r.patch()
	if err != nil {
		return nil, err
	}
	return &BlockedTime{
		DoctorIdentity: DoctorIdentity{DocumentTypeID: *r.DoctorDocumentTypeID, DocumentNumber: *r.DoctorDocumentNumber},
		StartDatetime:  *p.StartDatetime,
		EndDatetime:    *p.EndDatetime,
		Reason:         r.Reason,
		CustomFields:   r.CustomFields,
	}, nil
}

func (h *Handler) CreateBlockedTime(c echo.Context) error {
	var req blockedTimeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := customfields.Validate(req.CustomFields); err != nil {
		return httpError(err)
	}
	b, err := req.blockedTime()
	if err != nil {
		return httpError(err)
	}
	if err := h.svc.CreateBlockedTime(c.Request().Context(), db.TenantFromContext(c), b); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) GetBlockedTime(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	b, err := h.svc.GetBlockedTime(c.Request().Context(), db.TenantFromContext(c), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) ListBlockedTime(c echo.Context) error {
	doctor, err := doctorParam(c)
	if err != nil {
		return httpError(err)
	}
	var from, to time.Time
	if s := c.QueryParam("start_date"); s != "" {
		if from, err = ParseDateTime(s); err != nil {
			return httpError(err)
		}
	}
	if s := c.QueryParam("end_date"); s != "" {
		if to, err = ParseDateTime(s); err != nil {
			return httpError(err)
		}
	}
	items, err := h.svc.ListBlockedTime(c.Request().Context(), db.TenantFromContext(c), doctor, from, to)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*BlockedTime{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) UpdateBlockedTime(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var req blockedTimeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := customfields.Validate(req.CustomFields); err != nil {
		return httpError(err)
	}
	p, err := req.patch()
	if err != nil {
		return httpError(err)
	}
	b, err := h.svc.UpdateBlockedTime(c.Request().Context(), db.TenantFromContext(c), id, p)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) DeactivateBlockedTime(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeactivateBlockedTime(c.Request().Context(), db.TenantFromContext(c), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Slots --

type timeSlotsResponse struct {
	DoctorDocumentTypeID int             `json:"doctor_document_type_id"`
	DoctorDocumentNumber string          `json:"doctor_document_number"`
	Date                 string          `json:"date"`
	TimeSlots            []CandidateSlot `json:"time_slots"`
	TotalSlots           int             `json:"total_slots"`
	AvailableSlots       int             `json:"available_slots"`
}

func (h *Handler) GetTimeSlots(c echo.Context) error {
	doctor, err := doctorParam(c)
	if err != nil {
		return httpError(err)
	}
	raw := c.QueryParam("date")
	if raw == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "date is required (YYYY-MM-DD)")
	}
	date, err := ParseDate(raw)
	if err != nil {
		return httpError(err)
	}
	slots, err := h.svc.ListSlots(c.Request().Context(), db.TenantFromContext(c), doctor, date)
	if err != nil {
		return httpError(err)
	}

	free := 0
	for _, s := range slots {
		if s.Available {
			free++
		}
	}
	return c.JSON(http.StatusOK, timeSlotsResponse{
		DoctorDocumentTypeID: doctor.DocumentTypeID,
		DoctorDocumentNumber: doctor.DocumentNumber,
		Date:                 raw,
		TimeSlots:            slots,
		TotalSlots:           len(slots),
		AvailableSlots:       free,
	})
}

func (h *Handler) CheckAvailability(c echo.Context) error {
	doctor, err := doctorParam(c)
	if err != nil {
		return httpError(err)
	}
	rawStart, rawEnd := c.QueryParam("start_datetime"), c.QueryParam("end_datetime")
	if rawStart == "" || rawEnd == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "start_datetime and end_datetime are required")
	}
	start, err := ParseDateTime(rawStart)
	if err != nil {
		return httpError(err)
	}
	end, err := ParseDateTime(rawEnd)
	if err != nil {
		return httpError(err)
	}
	ok, err := h.svc.IsTimeAvailable(c.Request().Context(), db.TenantFromContext(c), doctor, start, end)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"available":               ok,
		"doctor_document_type_id": doctor.DocumentTypeID,
		"doctor_document_number":  doctor.DocumentNumber,
		"start_datetime":          start,
		"end_datetime":            end,
	})
}
