package purchase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/procura/internal/cache"
	"github.com/Additional-Code/procura/internal/config"
	"github.com/Additional-Code/procura/internal/messaging"
	"github.com/Additional-Code/procura/internal/purchase"
	"github.com/Additional-Code/procura/internal/realtime"
	repo "github.com/Additional-Code/procura/internal/repository/purchase"
	"github.com/Additional-Code/procura/pkg/errorbank"
)

const instrumentationName = "github.com/Additional-Code/procura/service/purchase"

var serviceTracer = otel.Tracer(instrumentationName)

// Broadcaster pushes encoded events to live subscribers.
type Broadcaster interface {
	Broadcast(payload []byte)
}

// Service runs purchase workflows on top of the repository.
type Service struct {
	repo        repo.Repository
	cache       cache.Store
	cacheTTL    time.Duration
	logger      *zap.Logger
	publisher   messaging.Client
	messaging   messagingConfig
	feed        Broadcaster
	transitions metric.Int64Counter
	now         func() time.Time
}

type messagingConfig struct {
	enabled bool
	topic   string
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Repository repo.Repository
	Cache      cache.Store
	Config     config.Config
	Logger     *zap.Logger
	Publisher  messaging.Client
	Hub        *realtime.Hub `optional:"true"`
}

// NewService wires a new Service instance.
func NewService(p Params) (*Service, error) {
	counter, err := otel.Meter(instrumentationName).Int64Counter(
		"purchase.transitions",
		metric.WithDescription("Approval transitions applied, by role, action and outcome."),
	)
	if err != nil {
		return nil, fmt.Errorf("create transitions counter: %w", err)
	}
	s := &Service{
		repo:      p.Repository,
		cache:     p.Cache,
		cacheTTL:  p.Config.Cache.DefaultTTL,
		logger:    p.Logger,
		publisher: p.Publisher,
		messaging: messagingConfig{
			enabled: p.Config.Messaging.Enabled,
			topic:   p.Config.Messaging.Kafka.Topic,
		},
		transitions: counter,
		now:         time.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if p.Hub != nil {
		s.feed = p.Hub
	}
	return s, nil
}

// Filter holds raw list filters as received from callers.
type Filter struct {
	Status string
	Search string
	Month  string
}

func (f Filter) toRepository() (repo.Filter, error) {
	var out repo.Filter
	if raw := strings.TrimSpace(f.Status); raw != "" {
		status, ok := purchase.ParseStatus(raw)
		if !ok {
			return out, &purchase.ValidationError{Field: "status", Message: "is not a known status"}
		}
		out.Status = status
	}
	out.Search = strings.TrimSpace(f.Search)
	if raw := strings.TrimSpace(f.Month); raw != "" {
		from, to, err := purchase.ParseMonth(raw)
		if err != nil {
			return out, err
		}
		out.From, out.To = from, to
	}
	return out, nil
}

// List returns purchases matching filter, newest first.
func (s *Service) List(ctx context.Context, filter Filter) ([]purchase.Purchase, error) {
	ctx, span := serviceTracer.Start(ctx, "PurchaseService.List")
	defer span.End()

	f, err := filter.toRepository()
	if err != nil {
		return nil, purchase.AppError(err)
	}
	items, err := s.repo.List(ctx, f)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to list purchases", errorbank.WithCause(err))
	}
	if items == nil {
		items = []purchase.Purchase{}
	}
	return items, nil
}

// Get retrieves a purchase by id, consulting cache when available.
func (s *Service) Get(ctx context.Context, id string) (*purchase.Purchase, error) {
	ctx, span := serviceTracer.Start(ctx, "PurchaseService.Get", trace.WithAttributes(attribute.String("purchase.id", id)))
	defer span.End()

	if p, err := cache.GetJSON[purchase.Purchase](ctx, s.cache, cache.PurchaseKey(id)); err == nil {
		return p, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("purchases cache read failed", zap.String("id", id), zap.Error(err))
	}

	p, err := s.load(ctx, span, id)
	if err != nil {
		return nil, err
	}
	s.refreshCache(ctx, p)
	return p, nil
}

// Create validates draft and stores it as a new pending purchase.
func (s *Service) Create(ctx context.Context, draft purchase.Draft) (*purchase.Purchase, error) {
	ctx, span := serviceTracer.Start(ctx, "PurchaseService.Create", trace.WithAttributes(attribute.String("purchase.vendor", draft.VendorName)))
	defer span.End()

	p, err := purchase.New(draft, s.now().UTC().Truncate(time.Millisecond))
	if err != nil {
		return nil, purchase.AppError(err)
	}
	if err := s.repo.Create(ctx, &p); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to create purchase", errorbank.WithCause(err))
	}

	s.refreshCache(ctx, &p)
	s.publish(ctx, purchase.Event{Type: purchase.EventCreated, PurchaseID: p.ID, Status: p.Status, OccurredAt: p.CreatedAt})
	return &p, nil
}

// ApplyTransition lets role take action on the purchase identified by id.
func (s *Service) ApplyTransition(ctx context.Context, id string, role purchase.Role, action purchase.Action) (*purchase.Purchase, error) {
	ctx, span := serviceTracer.Start(ctx, "PurchaseService.ApplyTransition", trace.WithAttributes(
		attribute.String("purchase.id", id),
		attribute.String("purchase.role", string(role)),
		attribute.String("purchase.action", string(action)),
	))
	defer span.End()

	return s.commit(ctx, span, id, role, nil, action)
}

// TransitionToStatus resolves the action role needs to reach target and
// applies it.
func (s *Service) TransitionToStatus(ctx context.Context, id string, role purchase.Role, target purchase.Status) (*purchase.Purchase, error) {
	return s.Update(ctx, id, role, Change{Status: &target})
}

// ReuploadFile replaces the receipt reference. Status and approvals stay as
// they are, including on finalized purchases.
func (s *Service) ReuploadFile(ctx context.Context, id, fileURL, fileName string) (*purchase.Purchase, error) {
	return s.Update(ctx, id, "", Change{FileURL: &fileURL, FileName: fileName})
}

// Change is a partial update: a replacement receipt, a target status, or both.
type Change struct {
	FileURL  *string
	FileName string
	Status   *purchase.Status
}

// Update applies change to the purchase identified by id and saves it with a
// single write. When the status change is refused nothing is stored, the
// receipt included.
func (s *Service) Update(ctx context.Context, id string, role purchase.Role, change Change) (*purchase.Purchase, error) {
	ctx, span := serviceTracer.Start(ctx, "PurchaseService.Update", trace.WithAttributes(
		attribute.String("purchase.id", id),
		attribute.String("purchase.role", string(role)),
	))
	defer span.End()

	if change.FileURL == nil && change.Status == nil {
		return nil, errorbank.BadRequest("status or fileUrl is required")
	}

	var file *receipt
	if change.FileURL != nil {
		url := strings.TrimSpace(*change.FileURL)
		if url == "" {
			return nil, purchase.AppError(&purchase.ValidationError{Field: "fileUrl", Message: "is required"})
		}
		file = &receipt{url: url, name: strings.TrimSpace(change.FileName)}
	}

	var action purchase.Action
	if change.Status != nil {
		a, err := purchase.ActionForStatus(*change.Status, role)
		if err != nil {
			return nil, purchase.AppError(err)
		}
		action = a
		span.SetAttributes(attribute.String("purchase.action", string(action)))
	}

	return s.commit(ctx, span, id, role, file, action)
}

type receipt struct {
	url  string
	name string
}

// commit loads the purchase, applies the receipt and the transition in memory
// and persists the result once. An empty action means no transition.
func (s *Service) commit(ctx context.Context, span trace.Span, id string, role purchase.Role, file *receipt, action purchase.Action) (*purchase.Purchase, error) {
	current, err := s.load(ctx, span, id)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	next := *current
	if file != nil {
		next = next.WithFile(file.url, file.name)
	}
	if action != "" {
		next, err = purchase.Apply(next, role, action, now)
		if err != nil {
			s.countTransition(ctx, role, action, "refused")
			s.logger.Info("purchase transition refused",
				zap.String("id", id),
				zap.String("role", string(role)),
				zap.String("action", string(action)),
				zap.Bool("with_file", file != nil),
				zap.Error(err),
			)
			return nil, purchase.AppError(err)
		}
	}

	if err := s.repo.Update(ctx, &next); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, errorbank.NotFound("purchase not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to update purchase", errorbank.WithCause(err))
	}
	if action != "" {
		s.countTransition(ctx, role, action, "applied")
	}

	s.refreshCache(ctx, &next)
	if file != nil {
		s.publish(ctx, purchase.Event{
			Type:       purchase.EventFileReuploaded,
			PurchaseID: next.ID,
			Status:     next.Status,
			OccurredAt: now,
		})
	}
	if action != "" {
		s.publish(ctx, purchase.Event{
			Type:       purchase.EventTransitioned,
			PurchaseID: next.ID,
			Status:     next.Status,
			Role:       role,
			Action:     action,
			OccurredAt: now,
		})
	}
	return &next, nil
}

// Delete removes a purchase.
func (s *Service) Delete(ctx context.Context, id string) error {
	ctx, span := serviceTracer.Start(ctx, "PurchaseService.Delete", trace.WithAttributes(attribute.String("purchase.id", id)))
	defer span.End()

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return errorbank.NotFound("purchase not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return errorbank.Internal("failed to delete purchase", errorbank.WithCause(err))
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, cache.PurchaseKey(id)); err != nil {
			s.logger.Warn("purchases cache delete failed", zap.String("id", id), zap.Error(err))
		}
	}
	s.publish(ctx, purchase.Event{Type: purchase.EventDeleted, PurchaseID: id, OccurredAt: s.now().UTC()})
	return nil
}

func (s *Service) load(ctx context.Context, span trace.Span, id string) (*purchase.Purchase, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, errorbank.NotFound("purchase not found", errorbank.WithDetail("id", id))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to load purchase", errorbank.WithCause(err))
	}
	return p, nil
}

func (s *Service) countTransition(ctx context.Context, role purchase.Role, action purchase.Action, outcome string) {
	s.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("role", string(role)),
		attribute.String("action", string(action)),
		attribute.String("outcome", outcome),
	))
}

func (s *Service) publish(ctx context.Context, event purchase.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("marshal purchase event", zap.String("type", string(event.Type)), zap.Error(err))
		return
	}
	if s.feed != nil {
		s.feed.Broadcast(payload)
	}
	if !s.messaging.enabled || s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, purchase.EventKey(event.PurchaseID), payload); err != nil {
		s.logger.Error("publish purchase event",
			zap.String("type", string(event.Type)),
			zap.String("topic", s.messaging.topic),
			zap.Error(err),
		)
	}
}

func (s *Service) refreshCache(ctx context.Context, p *purchase.Purchase) {
	if p == nil {
		return
	}
	if err := cache.SetJSON(ctx, s.cache, cache.PurchaseKey(p.ID), p, s.cacheTTL); err != nil {
		s.logger.Warn("purchases cache write failed", zap.String("id", p.ID), zap.Error(err))
	}
}
