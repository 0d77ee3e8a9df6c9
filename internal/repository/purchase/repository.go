package purchase

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/Additional-Code/procura/internal/config"
	"github.com/Additional-Code/procura/internal/database"
	"github.com/Additional-Code/procura/internal/purchase"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/procura/repository/purchase")

// ErrNotFound is returned when a purchase is missing.
var ErrNotFound = errors.New("purchase not found")

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Status purchase.Status
	Search string
	From   time.Time
	To     time.Time
}

// Repository persists purchase requests. Create assigns the identifier.
type Repository interface {
	Create(ctx context.Context, p *purchase.Purchase) error
	GetByID(ctx context.Context, id string) (*purchase.Purchase, error)
	List(ctx context.Context, filter Filter) ([]purchase.Purchase, error)
	Update(ctx context.Context, p *purchase.Purchase) error
	Delete(ctx context.Context, id string) error
}

// NewRepository picks the backend matching the configured connections.
func NewRepository(cfg config.Config, conns *database.Connections) Repository {
	if conns.Mongo != nil {
		return NewMongoRepository(conns.Mongo.Collection(cfg.Database.Mongo.Collection))
	}
	return NewBunRepository(conns.Writer, conns.Reader)
}
