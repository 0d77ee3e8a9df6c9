package purchase

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/procura/internal/auth"
	"github.com/Additional-Code/procura/internal/dto"
	"github.com/Additional-Code/procura/internal/presentation/http/response"
	"github.com/Additional-Code/procura/internal/purchase"
	service "github.com/Additional-Code/procura/internal/service/purchase"
	"github.com/Additional-Code/procura/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/procura/transport/http/purchase")

// Handler exposes purchase endpoints over HTTP.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs a purchase Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with the provided Echo instance. Reads accept an optional
// session so responses can list the caller's allowed actions.
func Register(e *echo.Echo, h *Handler, a *auth.Authenticator) {
	g := e.Group("/purchases")
	optional := auth.OptionalSession(a)
	required := auth.RequireSession(a)

	g.GET("", h.list, optional)
	g.GET("/summary", h.summary)
	g.GET("/:id", h.getByID, optional)
	g.POST("", h.create)
	g.PUT("/:id", h.update, optional)
	g.POST("/:id/transitions", h.transition, required)
	g.DELETE("/:id", h.delete, required)
}

func filterFrom(c echo.Context) service.Filter {
	return service.Filter{
		Status: c.QueryParam("status"),
		Search: c.QueryParam("search"),
		Month:  c.QueryParam("month"),
	}
}

func (h *Handler) list(c echo.Context) error {
	b := response.New(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "purchases.list")
	defer span.End()

	items, err := h.svc.List(ctx, filterFrom(c))
	if err != nil {
		return b.WithError(err).Build()
	}
	role, _ := auth.RoleFrom(c)
	out := make([]dto.PurchaseResponse, 0, len(items))
	for i := range items {
		out = append(out, toDTO(&items[i], role))
	}
	return b.WithData(out).WithMeta("count", len(out)).Build()
}

func (h *Handler) summary(c echo.Context) error {
	b := response.New(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "purchases.summary")
	defer span.End()

	sum, err := h.svc.Summary(ctx, filterFrom(c))
	if err != nil {
		return b.WithError(err).Build()
	}
	byStatus := make(map[string]int, len(sum.ByStatus))
	for status, count := range sum.ByStatus {
		byStatus[string(status)] = count
	}
	return b.WithData(dto.SummaryResponse{
		Total:            sum.Total,
		ByStatus:         byStatus,
		TotalAmount:      json.Number(sum.TotalAmount.StringFixed(2)),
		TotalAmountLabel: sum.TotalAmountLabel,
	}).Build()
}

func (h *Handler) getByID(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	ctx, span := httpTracer.Start(c.Request().Context(), "purchases.getByID", trace.WithAttributes(attribute.String("purchase.id", id)))
	defer span.End()

	p, err := h.svc.Get(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	role, _ := auth.RoleFrom(c)
	return b.WithData(toDTO(p, role)).Build()
}

type createPayload struct {
	UploaderName    string          `json:"uploaderName"`
	VendorName      string          `json:"vendorName"`
	Purpose         string          `json:"purpose"`
	Amount          decimal.Decimal `json:"amount"`
	PaymentSequence string          `json:"paymentSequence"`
	BillType        string          `json:"billType"`
	Hub             string          `json:"hub"`
	FileURL         string          `json:"fileUrl"`
	FileName        string          `json:"fileName"`
	PaymentDate     string          `json:"paymentDate"`
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)

	var payload createPayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	paymentDate, err := parseDate(payload.PaymentDate)
	if err != nil {
		return b.WithError(errorbank.BadRequest("paymentDate must be RFC3339 or YYYY-MM-DD",
			errorbank.WithCause(err), errorbank.WithDetail("field", "paymentDate"))).Build()
	}

	draft := purchase.Draft{
		UploaderName:    payload.UploaderName,
		VendorName:      payload.VendorName,
		Purpose:         purchase.Purpose(strings.TrimSpace(payload.Purpose)),
		Amount:          payload.Amount,
		PaymentSequence: purchase.PaymentSequence(strings.TrimSpace(payload.PaymentSequence)),
		BillType:        purchase.BillType(strings.TrimSpace(payload.BillType)),
		Hub:             purchase.Hub(strings.ToLower(strings.TrimSpace(payload.Hub))),
		FileURL:         payload.FileURL,
		FileName:        payload.FileName,
		PaymentDate:     paymentDate,
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "purchases.create")
	span.SetAttributes(attribute.String("purchase.vendor", draft.VendorName))
	defer span.End()

	p, err := h.svc.Create(ctx, draft)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusCreated).WithData(toDTO(p, "")).Build()
}

// updatePayload is the partial record accepted by PUT. Approval fields sent by
// clients are not part of it; approvals are computed by the workflow.
type updatePayload struct {
	Status   *string `json:"status"`
	FileURL  *string `json:"fileUrl"`
	FileName *string `json:"fileName"`
}

func (h *Handler) update(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	var payload updatePayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	wantsStatus := payload.Status != nil && strings.TrimSpace(*payload.Status) != ""
	if !wantsStatus && payload.FileURL == nil {
		return b.WithError(errorbank.BadRequest("status or fileUrl is required")).Build()
	}

	var change service.Change
	role, hasRole := auth.RoleFrom(c)
	if wantsStatus {
		status, ok := purchase.ParseStatus(*payload.Status)
		if !ok {
			return b.WithError(&purchase.ValidationError{Field: "status", Message: "is not a known status"}).Build()
		}
		if !hasRole {
			return b.WithError(errorbank.Unauthorized("a session token is required to change status")).Build()
		}
		change.Status = &status
	}
	if payload.FileURL != nil {
		change.FileURL = payload.FileURL
		if payload.FileName != nil {
			change.FileName = *payload.FileName
		}
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "purchases.update", trace.WithAttributes(attribute.String("purchase.id", id)))
	defer span.End()

	p, err := h.svc.Update(ctx, id, role, change)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(toDTO(p, role)).Build()
}

func (h *Handler) transition(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	var payload struct {
		Action string `json:"action"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	action, ok := purchase.ParseAction(payload.Action)
	if !ok {
		return b.WithError(&purchase.ValidationError{Field: "action", Message: "must be approve or reject"}).Build()
	}
	role, _ := auth.RoleFrom(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "purchases.transition", trace.WithAttributes(
		attribute.String("purchase.id", id),
		attribute.String("purchase.action", string(action)),
	))
	defer span.End()

	p, err := h.svc.ApplyTransition(ctx, id, role, action)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(toDTO(p, role)).Build()
}

func (h *Handler) delete(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	ctx, span := httpTracer.Start(c.Request().Context(), "purchases.delete", trace.WithAttributes(attribute.String("purchase.id", id)))
	defer span.End()

	if err := h.svc.Delete(ctx, id); err != nil {
		return b.WithError(err).Build()
	}
	return b.Build()
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	return time.ParseInLocation(time.DateOnly, raw, time.UTC)
}

func toDTO(p *purchase.Purchase, role purchase.Role) dto.PurchaseResponse {
	out := dto.PurchaseResponse{
		ID:              p.ID,
		UploaderName:    p.UploaderName,
		VendorName:      p.VendorName,
		Purpose:         string(p.Purpose),
		Amount:          json.Number(p.Amount.String()),
		PaymentSequence: string(p.PaymentSequence),
		BillType:        string(p.BillType),
		Hub:             string(p.Hub),
		FileURL:         p.FileURL,
		FileName:        p.FileName,
		PaymentDate:     p.PaymentDate,
		CreatedAt:       p.CreatedAt,
		Status:          string(p.Status),
	}
	if a := p.DirectorApproval; a != nil {
		out.DirectorApproval = &dto.ApprovalResponse{Approved: a.Approved, Date: a.Date}
	}
	if a := p.FinanceApproval; a != nil {
		out.FinanceApproval = &dto.ApprovalResponse{Approved: a.Approved, Date: a.Date}
	}
	if role != "" {
		out.AllowedActions = []string{}
		for _, action := range purchase.Allowed(*p, role) {
			out.AllowedActions = append(out.AllowedActions, string(action))
		}
	}
	return out
}
