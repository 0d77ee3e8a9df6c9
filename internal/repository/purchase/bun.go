package purchase

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/procura/internal/entity"
	"github.com/Additional-Code/procura/internal/purchase"
)

// BunRepository stores purchases in a relational database.
type BunRepository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewBunRepository wires a repository backed by writer and reader pools.
func NewBunRepository(writer, reader *bun.DB) *BunRepository {
	if reader == nil {
		reader = writer
	}
	return &BunRepository{writer: writer, reader: reader}
}

// Create persists a new purchase using the write connection.
func (r *BunRepository) Create(ctx context.Context, p *purchase.Purchase) error {
	if p == nil {
		return errors.New("nil purchase")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	ctx, span := repoTracer.Start(ctx, "PurchaseRepository.Create", trace.WithAttributes(attribute.String("purchase.id", p.ID)))
	defer span.End()

	row := toRow(*p)
	row.UpdatedAt = row.CreatedAt
	if _, err := r.writer.NewInsert().Model(row).Exec(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return err
	}
	return nil
}

// GetByID fetches a purchase by primary key using the read replica when available.
func (r *BunRepository) GetByID(ctx context.Context, id string) (*purchase.Purchase, error) {
	ctx, span := repoTracer.Start(ctx, "PurchaseRepository.GetByID", trace.WithAttributes(attribute.String("purchase.id", id)))
	defer span.End()

	row := new(entity.Purchase)
	err := r.reader.NewSelect().Model(row).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	p := fromRow(row)
	return &p, nil
}

// likeEscaper makes search text match literally under LIKE ... ESCAPE '!'.
// '!' is used instead of a backslash because MySQL treats backslashes in
// string literals as escapes.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// List returns purchases matching filter, newest first.
func (r *BunRepository) List(ctx context.Context, filter Filter) ([]purchase.Purchase, error) {
	ctx, span := repoTracer.Start(ctx, "PurchaseRepository.List")
	defer span.End()

	var rows []entity.Purchase
	q := r.reader.NewSelect().Model(&rows).OrderExpr("created_at DESC").OrderExpr("id DESC")
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	if search := strings.ToLower(strings.TrimSpace(filter.Search)); search != "" {
		pattern := "%" + likeEscaper.Replace(search) + "%"
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("LOWER(uploader_name) LIKE ? ESCAPE '!'", pattern).
				WhereOr("LOWER(vendor_name) LIKE ? ESCAPE '!'", pattern)
		})
	}
	if !filter.From.IsZero() {
		q = q.Where("created_at >= ?", filter.From.UTC())
	}
	if !filter.To.IsZero() {
		q = q.Where("created_at < ?", filter.To.UTC())
	}

	if err := q.Scan(ctx); err != nil && !errors.Is(err, sql.ErrNoRows) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}

	out := make([]purchase.Purchase, 0, len(rows))
	for i := range rows {
		out = append(out, fromRow(&rows[i]))
	}
	span.SetAttributes(attribute.Int("purchase.count", len(out)))
	return out, nil
}

// Update replaces the stored purchase with p.
func (r *BunRepository) Update(ctx context.Context, p *purchase.Purchase) error {
	if p == nil {
		return errors.New("nil purchase")
	}
	ctx, span := repoTracer.Start(ctx, "PurchaseRepository.Update", trace.WithAttributes(attribute.String("purchase.id", p.ID)))
	defer span.End()

	row := toRow(*p)
	row.UpdatedAt = time.Now().UTC()
	// created_at and amount are immutable after creation.
	res, err := r.writer.NewUpdate().Model(row).
		ExcludeColumn("created_at", "amount").
		WherePK().
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return err
	}
	// updated_at always changes, so drivers reporting changed rows still count the match.
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a purchase.
func (r *BunRepository) Delete(ctx context.Context, id string) error {
	ctx, span := repoTracer.Start(ctx, "PurchaseRepository.Delete", trace.WithAttributes(attribute.String("purchase.id", id)))
	defer span.End()

	res, err := r.writer.NewDelete().Model((*entity.Purchase)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func toRow(p purchase.Purchase) *entity.Purchase {
	row := &entity.Purchase{
		ID:              p.ID,
		UploaderName:    p.UploaderName,
		VendorName:      p.VendorName,
		Purpose:         string(p.Purpose),
		Amount:          p.Amount,
		PaymentSequence: string(p.PaymentSequence),
		BillType:        string(p.BillType),
		Hub:             string(p.Hub),
		FileURL:         p.FileURL,
		FileName:        p.FileName,
		PaymentDate:     p.PaymentDate.UTC(),
		Status:          string(p.Status),
		CreatedAt:       p.CreatedAt.UTC(),
	}
	if a := p.DirectorApproval; a != nil {
		approved, at := a.Approved, a.Date.UTC()
		row.DirectorApproved, row.DirectorApprovedAt = &approved, &at
	}
	if a := p.FinanceApproval; a != nil {
		approved, at := a.Approved, a.Date.UTC()
		row.FinanceApproved, row.FinanceApprovedAt = &approved, &at
	}
	return row
}

func fromRow(row *entity.Purchase) purchase.Purchase {
	p := purchase.Purchase{
		ID:               row.ID,
		UploaderName:     row.UploaderName,
		VendorName:       row.VendorName,
		Purpose:          purchase.Purpose(row.Purpose),
		Amount:           row.Amount,
		PaymentSequence:  purchase.PaymentSequence(row.PaymentSequence),
		BillType:         purchase.BillType(row.BillType),
		Hub:              purchase.Hub(row.Hub),
		FileURL:          row.FileURL,
		FileName:         row.FileName,
		PaymentDate:      row.PaymentDate.UTC(),
		CreatedAt:        row.CreatedAt.UTC(),
		Status:           purchase.Status(row.Status),
		DirectorApproval: approvalFromColumns(row.DirectorApproved, row.DirectorApprovedAt),
		FinanceApproval:  approvalFromColumns(row.FinanceApproved, row.FinanceApprovedAt),
	}
	return p
}

func approvalFromColumns(approved *bool, at *time.Time) *purchase.Approval {
	if approved == nil {
		return nil
	}
	a := &purchase.Approval{Approved: *approved}
	if at != nil {
		a.Date = at.UTC()
	}
	return a
}
