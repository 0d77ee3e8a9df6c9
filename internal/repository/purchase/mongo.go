package purchase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/procura/internal/purchase"
)

type approvalDocument struct {
	Approved bool      `bson:"approved"`
	Date     time.Time `bson:"date"`
}

type purchaseDocument struct {
	ID               primitive.ObjectID   `bson:"_id,omitempty"`
	UploaderName     string               `bson:"uploaderName"`
	VendorName       string               `bson:"vendorName"`
	Purpose          string               `bson:"purpose"`
	Amount           primitive.Decimal128 `bson:"amount"`
	PaymentSequence  string               `bson:"paymentSequence"`
	BillType         string               `bson:"billType"`
	Hub              string               `bson:"hub"`
	FileURL          string               `bson:"fileUrl,omitempty"`
	FileName         string               `bson:"fileName,omitempty"`
	PaymentDate      time.Time            `bson:"paymentDate"`
	CreatedAt        time.Time            `bson:"createdAt"`
	Status           string               `bson:"status"`
	DirectorApproval *approvalDocument    `bson:"directorApproval"`
	FinanceApproval  *approvalDocument    `bson:"financeApproval"`
}

// MongoRepository stores purchases as documents in a single collection.
type MongoRepository struct {
	collection *mongo.Collection
}

// NewMongoRepository wires a repository over the given collection.
func NewMongoRepository(collection *mongo.Collection) *MongoRepository {
	return &MongoRepository{collection: collection}
}

// Create inserts p and assigns a fresh ObjectID.
func (r *MongoRepository) Create(ctx context.Context, p *purchase.Purchase) error {
	if p == nil {
		return errors.New("nil purchase")
	}
	ctx, span := repoTracer.Start(ctx, "PurchaseRepository.Create")
	defer span.End()

	doc, err := toDocument(*p)
	if err != nil {
		return err
	}
	doc.ID = primitive.NewObjectID()
	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return err
	}
	p.ID = doc.ID.Hex()
	span.SetAttributes(attribute.String("purchase.id", p.ID))
	return nil
}

// GetByID fetches a purchase by its hex ObjectID.
func (r *MongoRepository) GetByID(ctx context.Context, id string) (*purchase.Purchase, error) {
	ctx, span := repoTracer.Start(ctx, "PurchaseRepository.GetByID", trace.WithAttributes(attribute.String("purchase.id", id)))
	defer span.End()

	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	var doc purchaseDocument
	err = r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "find failed")
		return nil, err
	}
	p, err := fromDocument(doc)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// List returns purchases matching filter, newest first.
func (r *MongoRepository) List(ctx context.Context, filter Filter) ([]purchase.Purchase, error) {
	ctx, span := repoTracer.Start(ctx, "PurchaseRepository.List")
	defer span.End()

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := r.collection.Find(ctx, mongoFilter(filter), opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "find failed")
		return nil, err
	}
	var docs []purchaseDocument
	if err := cur.All(ctx, &docs); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode failed")
		return nil, err
	}

	out := make([]purchase.Purchase, 0, len(docs))
	for _, doc := range docs {
		p, err := fromDocument(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	span.SetAttributes(attribute.Int("purchase.count", len(out)))
	return out, nil
}

// Update replaces the stored document, keeping amount and createdAt as stored.
func (r *MongoRepository) Update(ctx context.Context, p *purchase.Purchase) error {
	if p == nil {
		return errors.New("nil purchase")
	}
	ctx, span := repoTracer.Start(ctx, "PurchaseRepository.Update", trace.WithAttributes(attribute.String("purchase.id", p.ID)))
	defer span.End()

	oid, err := primitive.ObjectIDFromHex(p.ID)
	if err != nil {
		return ErrNotFound
	}
	doc, err := toDocument(*p)
	if err != nil {
		return err
	}
	set := bson.M{
		"uploaderName":     doc.UploaderName,
		"vendorName":       doc.VendorName,
		"purpose":          doc.Purpose,
		"paymentSequence":  doc.PaymentSequence,
		"billType":         doc.BillType,
		"hub":              doc.Hub,
		"fileUrl":          doc.FileURL,
		"fileName":         doc.FileName,
		"paymentDate":      doc.PaymentDate,
		"status":           doc.Status,
		"directorApproval": doc.DirectorApproval,
		"financeApproval":  doc.FinanceApproval,
	}
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": set})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a purchase document.
func (r *MongoRepository) Delete(ctx context.Context, id string) error {
	ctx, span := repoTracer.Start(ctx, "PurchaseRepository.Delete", trace.WithAttributes(attribute.String("purchase.id", id)))
	defer span.End()

	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func mongoFilter(filter Filter) bson.M {
	query := bson.M{}
	if filter.Status != "" {
		query["status"] = string(filter.Status)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(search), Options: "i"}
		query["$or"] = bson.A{
			bson.M{"uploaderName": pattern},
			bson.M{"vendorName": pattern},
		}
	}
	created := bson.M{}
	if !filter.From.IsZero() {
		created["$gte"] = filter.From.UTC()
	}
	if !filter.To.IsZero() {
		created["$lt"] = filter.To.UTC()
	}
	if len(created) > 0 {
		query["createdAt"] = created
	}
	return query
}

func toDocument(p purchase.Purchase) (purchaseDocument, error) {
	amount, err := primitive.ParseDecimal128(p.Amount.String())
	if err != nil {
		return purchaseDocument{}, fmt.Errorf("encode amount %s: %w", p.Amount, err)
	}
	doc := purchaseDocument{
		UploaderName:    p.UploaderName,
		VendorName:      p.VendorName,
		Purpose:         string(p.Purpose),
		Amount:          amount,
		PaymentSequence: string(p.PaymentSequence),
		BillType:        string(p.BillType),
		Hub:             string(p.Hub),
		FileURL:         p.FileURL,
		FileName:        p.FileName,
		PaymentDate:     p.PaymentDate.UTC(),
		CreatedAt:       p.CreatedAt.UTC(),
		Status:          string(p.Status),
	}
	if a := p.DirectorApproval; a != nil {
		doc.DirectorApproval = &approvalDocument{Approved: a.Approved, Date: a.Date.UTC()}
	}
	if a := p.FinanceApproval; a != nil {
		doc.FinanceApproval = &approvalDocument{Approved: a.Approved, Date: a.Date.UTC()}
	}
	return doc, nil
}

func fromDocument(doc purchaseDocument) (purchase.Purchase, error) {
	amount, err := decimal.NewFromString(doc.Amount.String())
	if err != nil {
		return purchase.Purchase{}, fmt.Errorf("decode amount of %s: %w", doc.ID.Hex(), err)
	}
	p := purchase.Purchase{
		ID:              doc.ID.Hex(),
		UploaderName:    doc.UploaderName,
		VendorName:      doc.VendorName,
		Purpose:         purchase.Purpose(doc.Purpose),
		Amount:          amount,
		PaymentSequence: purchase.PaymentSequence(doc.PaymentSequence),
		BillType:        purchase.BillType(doc.BillType),
		Hub:             purchase.Hub(doc.Hub),
		FileURL:         doc.FileURL,
		FileName:        doc.FileName,
		PaymentDate:     doc.PaymentDate.UTC(),
		CreatedAt:       doc.CreatedAt.UTC(),
		Status:          purchase.Status(doc.Status),
	}
	if a := doc.DirectorApproval; a != nil {
		p.DirectorApproval = &purchase.Approval{Approved: a.Approved, Date: a.Date.UTC()}
	}
	if a := doc.FinanceApproval; a != nil {
		p.FinanceApproval = &purchase.Approval{Approved: a.Approved, Date: a.Date.UTC()}
	}
	return p, nil
}
