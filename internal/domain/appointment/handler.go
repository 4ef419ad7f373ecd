package appointment

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medappt/medappt/internal/domain/availability"
	"github.com/medappt/medappt/internal/platform/auth"
	"github.com/medappt/medappt/internal/platform/db"
	"github.com/medappt/medappt/internal/platform/lock"
	"github.com/medappt/medappt/pkg/customfields"
	"github.com/medappt/medappt/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/appointments")

	// Booking and reads – staff and patients
	all := g.Group("", auth.RequireRole(auth.RoleAdmin, auth.RolePhysician, auth.RoleReceptionist, auth.RolePatient))
	all.POST("", h.Book)
	all.GET("", h.Search)
	all.GET("/:id", h.Get)
	all.POST("/:id/cancel", h.Cancel)

	staff := g.Group("", auth.RequireRole(auth.RoleAdmin, auth.RolePhysician, auth.RoleReceptionist))
	staff.PATCH("/:id", h.Update)

	admin := g.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.DELETE("/:id", h.Delete)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, customfields.ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, ErrConflict.Error())
	case errors.Is(err, lock.ErrNotAcquired):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "doctor schedule is busy, retry")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func idParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// appointmentRequest accepts start_appointment/end_appointment as aliases of
// start_utc/end_utc.
type appointmentRequest struct {
	StartUTC              *string                `json:"start_utc"`
	EndUTC                *string                `json:"end_utc"`
	StartAppointment      *string                `json:"start_appointment"`
	EndAppointment        *string                `json:"end_appointment"`
	PatientDocumentTypeID *int                   `json:"patient_document_type_id"`
	PatientDocumentNumber *string                `json:"patient_document_number"`
	DoctorDocumentTypeID  *int                   `json:"doctor_document_type_id"`
	DoctorDocumentNumber  *string                `json:"doctor_document_number"`
	Modality              *string                `json:"modality"`
	State                 *string                `json:"state"`
	NotificationState     *string                `json:"notification_state"`
	AppointmentType       *string                `json:"appointment_type"`
	ClinicID              *string                `json:"clinic_id"`
	Comment               *string                `json:"comment"`
	CustomFields          map[string]interface{} `json:"custom_fields"`
}

func firstSet(a, b *string) *string {
	if a != nil {
		return a
	}
	return b
}

func optionalDateTime(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	t, err := availability.ParseDateTime(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *appointmentRequest) patch() (Patch, error) {
	start, err := optionalDateTime(firstSet(r.StartUTC, r.StartAppointment))
	if err != nil {
		return Patch{}, err
	}
	end, err := optionalDateTime(firstSet(r.EndUTC, r.EndAppointment))
	if err != nil {
		return Patch{}, err
	}
	p := Patch{
		StartUTC:              start,
		EndUTC:                end,
		PatientDocumentTypeID: r.PatientDocumentTypeID,
		PatientDocumentNumber: r.PatientDocumentNumber,
		Modality:              r.Modality,
		State:                 r.State,
		NotificationState:     r.NotificationState,
		AppointmentType:       r.AppointmentType,
		ClinicID:              r.ClinicID,
		Comment:               r.Comment,
		CustomFields:          r.CustomFields,
	}
	if r.DoctorDocumentTypeID != nil && r.DoctorDocumentNumber != nil {
		p.Doctor = &availability.DoctorIdentity{DocumentTypeID: *r.DoctorDocumentTypeID, DocumentNumber: *r.DoctorDocumentNumber}
	}
	return p, nil
}

func (r *appointmentRequest) appointment() (*Appointment, error) {
	p, err := r.patch()
	if err != nil {
		return nil, err
	}
	switch {
	case p.StartUTC == nil || p.EndUTC == nil:
		return nil, invalid("start_utc and end_utc are required")
	case p.Doctor == nil:
		return nil, invalid("doctor_document_type_id and doctor_document_number are required")
	case p.PatientDocumentTypeID == nil || p.PatientDocumentNumber == nil:
		return nil, invalid("patient_document_type_id and patient_document_number are required")
	case p.Modality == nil:
		return nil, invalid("modality is required")
	}
	a := &Appointment{}
	p.apply(a)
	return a, nil
}

func (h *Handler) Book(c echo.Context) error {
	var req appointmentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := customfields.Validate(req.CustomFields); err != nil {
		return httpError(err)
	}
	a, err := req.appointment()
	if err != nil {
		return httpError(err)
	}
	if err := h.svc.Book(c.Request().Context(), db.TenantFromContext(c), a); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Get(c.Request().Context(), db.TenantFromContext(c), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Search(c echo.Context) error {
	p := SearchParams{
		Modality:              c.QueryParam("modality"),
		State:                 c.QueryParam("state"),
		PatientDocumentNumber: c.QueryParam("patient_document_number"),
		DoctorDocumentNumber:  c.QueryParam("doctor_document_number"),
	}
	var err error
	if s := c.QueryParam("start_date"); s != "" {
		if p.From, err = availability.ParseDateTime(s); err != nil {
			return httpError(err)
		}
	}
	if s := c.QueryParam("end_date"); s != "" {
		if p.To, err = availability.ParseDateTime(s); err != nil {
			return httpError(err)
		}
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.Search(c.Request().Context(), db.TenantFromContext(c), p, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*Appointment{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) Update(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var req appointmentRequest
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
	a, err := h.svc.Update(c.Request().Context(), db.TenantFromContext(c), id, p)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Cancel(c.Request().Context(), db.TenantFromContext(c), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), db.TenantFromContext(c), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
