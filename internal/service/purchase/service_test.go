package purchase

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Additional-Code/procura/internal/cache"
	"github.com/Additional-Code/procura/internal/config"
	"github.com/Additional-Code/procura/internal/messaging"
	"github.com/Additional-Code/procura/internal/purchase"
	repo "github.com/Additional-Code/procura/internal/repository/purchase"
	"github.com/Additional-Code/procura/pkg/errorbank"
)

type memoryRepository struct {
	mu      sync.Mutex
	seq     int
	records map[string]purchase.Purchase
	updates int
	failAll error
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{records: make(map[string]purchase.Purchase)}
}

func (r *memoryRepository) Create(_ context.Context, p *purchase.Purchase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll != nil {
		return r.failAll
	}
	r.seq++
	p.ID = "p-" + strconv.Itoa(r.seq)
	r.records[p.ID] = *p
	return nil
}

func (r *memoryRepository) GetByID(_ context.Context, id string) (*purchase.Purchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll != nil {
		return nil, r.failAll
	}
	p, ok := r.records[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &p, nil
}

func (r *memoryRepository) List(_ context.Context, filter repo.Filter) ([]purchase.Purchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll != nil {
		return nil, r.failAll
	}
	var out []purchase.Purchase
	for _, p := range r.records {
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryRepository) Update(_ context.Context, p *purchase.Purchase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll != nil {
		return r.failAll
	}
	if _, ok := r.records[p.ID]; !ok {
		return repo.ErrNotFound
	}
	r.updates++
	r.records[p.ID] = *p
	return nil
}

func (r *memoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return repo.ErrNotFound
	}
	delete(r.records, id)
	return nil
}

type memoryCache struct {
	mu    sync.Mutex
	items map[string][]byte
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return v, nil
}

func (c *memoryCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = value
	return nil
}

func (c *memoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []purchase.Event
}

func (p *recordingPublisher) Publish(_ context.Context, _ []byte, value []byte) error {
	var event purchase.Event
	if err := json.Unmarshal(value, &event); err != nil {
		return err
	}
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) Consume(ctx context.Context, _ messaging.Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (p *recordingPublisher) Topic() string { return "purchases.events" }

func (p *recordingPublisher) types() []purchase.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]purchase.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type recordingFeed struct {
	payloads [][]byte
}

func (f *recordingFeed) Broadcast(payload []byte) { f.payloads = append(f.payloads, payload) }

type fixture struct {
	svc   *Service
	repo  *memoryRepository
	cache *memoryCache
	pub   *recordingPublisher
	feed  *recordingFeed
	clock time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:  newMemoryRepository(),
		cache: &memoryCache{items: make(map[string][]byte)},
		pub:   &recordingPublisher{},
		feed:  &recordingFeed{},
		clock: time.Date(2026, 3, 14, 9, 30, 0, 123456789, time.UTC),
	}
	cfg := config.Config{}
	cfg.Messaging.Enabled = true
	cfg.Messaging.Kafka.Topic = "purchases.events"
	cfg.Cache.DefaultTTL = time.Minute

	svc, err := NewService(Params{
		Repository: f.repo,
		Cache:      f.cache,
		Config:     cfg,
		Logger:     zap.NewNop(),
		Publisher:  f.pub,
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	svc.feed = f.feed
	svc.now = func() time.Time { return f.clock }
	f.svc = svc
	return f
}

func draft(amount int64) purchase.Draft {
	return purchase.Draft{
		UploaderName:    "Asha",
		VendorName:      "Acme Supplies",
		Purpose:         purchase.PurposeProcurement,
		Amount:          decimal.NewFromInt(amount),
		PaymentSequence: purchase.BillFirst,
		BillType:        purchase.BillQuantum,
		Hub:             purchase.HubMumbai,
		FileURL:         "https://files.example.com/r.pdf",
		FileName:        "r.pdf",
		PaymentDate:     time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fixture) create(t *testing.T, amount int64) *purchase.Purchase {
	t.Helper()
	p, err := f.svc.Create(context.Background(), draft(amount))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return p
}

func assertKind(t *testing.T, err error, kind errorbank.Kind) *errorbank.AppError {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	var appErr *errorbank.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %T: %v", err, err)
	}
	if appErr.Kind() != kind {
		t.Fatalf("kind = %s, want %s (%v)", appErr.Kind(), kind, err)
	}
	return appErr
}

func assertRefused(t *testing.T, err error, reason purchase.RefusalReason) {
	t.Helper()
	appErr := assertKind(t, err, errorbank.KindConflict)
	if got := appErr.Details()["reason"]; got != string(reason) {
		t.Fatalf("reason = %v, want %s", got, reason)
	}
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, 5000)

	if p.ID == "" || p.Status != purchase.StatusPending {
		t.Fatalf("created = %+v", p)
	}
	if p.DirectorApproval != nil || p.FinanceApproval != nil {
		t.Fatal("new purchases carry no approvals")
	}
	if want := f.clock.Truncate(time.Millisecond); !p.CreatedAt.Equal(want) {
		t.Fatalf("createdAt = %v, want %v", p.CreatedAt, want)
	}
	if _, err := f.cache.Get(context.Background(), "purchases:"+p.ID); err != nil {
		t.Fatalf("created purchase should be cached: %v", err)
	}
	if got := f.pub.types(); len(got) != 1 || got[0] != purchase.EventCreated {
		t.Fatalf("published = %v", got)
	}
	if len(f.feed.payloads) != 1 {
		t.Fatalf("feed payloads = %d, want 1", len(f.feed.payloads))
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	d := draft(100)
	d.Hub = "chennai"

	_, err := f.svc.Create(context.Background(), d)
	appErr := assertKind(t, err, errorbank.KindBadRequest)
	if appErr.Details()["field"] != "hub" {
		t.Fatalf("details = %v", appErr.Details())
	}
	if len(f.repo.records) != 0 || len(f.pub.types()) != 0 {
		t.Fatal("invalid drafts must not be stored or published")
	}
}

func TestLowValueFinanceApproval(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, 5000)

	_, err := f.svc.ApplyTransition(context.Background(), p.ID, purchase.RoleDirector, purchase.ActionApprove)
	assertRefused(t, err, purchase.ReasonThresholdNotMet)

	got, err := f.svc.ApplyTransition(context.Background(), p.ID, purchase.RoleFinance, purchase.ActionApprove)
	if err != nil {
		t.Fatalf("finance approve error = %v", err)
	}
	if got.Status != purchase.StatusFinanceApproved || !got.FinanceApproved() || got.DirectorApproval != nil {
		t.Fatalf("after finance approve = %+v", got)
	}
}

func TestHighValueApprovalChain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.create(t, 10000)

	_, err := f.svc.ApplyTransition(ctx, p.ID, purchase.RoleFinance, purchase.ActionApprove)
	assertRefused(t, err, purchase.ReasonThresholdNotMet)
	if stored := f.repo.records[p.ID]; stored.Status != purchase.StatusPending {
		t.Fatalf("refused transition changed the record: %+v", stored)
	}

	if _, err := f.svc.ApplyTransition(ctx, p.ID, purchase.RoleDirector, purchase.ActionApprove); err != nil {
		t.Fatalf("director approve error = %v", err)
	}
	_, err = f.svc.ApplyTransition(ctx, p.ID, purchase.RoleDirector, purchase.ActionApprove)
	assertRefused(t, err, purchase.ReasonAlreadyFinalized)

	got, err := f.svc.ApplyTransition(ctx, p.ID, purchase.RoleFinance, purchase.ActionApprove)
	if err != nil {
		t.Fatalf("finance approve error = %v", err)
	}
	if got.Status != purchase.StatusFinanceApproved || !got.DirectorApproved() || !got.FinanceApproved() {
		t.Fatalf("final = %+v", got)
	}

	_, err = f.svc.ApplyTransition(ctx, p.ID, purchase.RoleDirector, purchase.ActionReject)
	assertRefused(t, err, purchase.ReasonAlreadyFinalized)

	cached, err := f.svc.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if cached.Status != purchase.StatusFinanceApproved {
		t.Fatalf("cache not refreshed after transition: %s", cached.Status)
	}

	want := []purchase.EventType{purchase.EventCreated, purchase.EventTransitioned, purchase.EventTransitioned}
	got2 := f.pub.types()
	if len(got2) != len(want) {
		t.Fatalf("published = %v, want %v", got2, want)
	}
}

func TestRejectClearsApprovals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.create(t, 20000)

	if _, err := f.svc.ApplyTransition(ctx, p.ID, purchase.RoleDirector, purchase.ActionApprove); err != nil {
		t.Fatalf("director approve error = %v", err)
	}
	got, err := f.svc.ApplyTransition(ctx, p.ID, purchase.RoleFinance, purchase.ActionReject)
	if err != nil {
		t.Fatalf("reject error = %v", err)
	}
	if got.Status != purchase.StatusRejected || got.DirectorApproval != nil || got.FinanceApproval != nil {
		t.Fatalf("after reject = %+v", got)
	}
}

func TestTransitionErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ApplyTransition(ctx, "missing", purchase.RoleFinance, purchase.ActionApprove)
	assertKind(t, err, errorbank.KindNotFound)

	p := f.create(t, 100)
	_, err = f.svc.ApplyTransition(ctx, p.ID, purchase.Role("admin"), purchase.ActionApprove)
	assertRefused(t, err, purchase.ReasonNotAuthorized)

	f.repo.failAll = errors.New("connection reset")
	_, err = f.svc.ApplyTransition(ctx, p.ID, purchase.RoleFinance, purchase.ActionApprove)
	assertKind(t, err, errorbank.KindInternal)
}

func TestTransitionToStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.create(t, 15000)

	_, err := f.svc.TransitionToStatus(ctx, p.ID, purchase.RoleFinance, purchase.StatusDirectorApproved)
	assertRefused(t, err, purchase.ReasonNotAuthorized)

	_, err = f.svc.TransitionToStatus(ctx, p.ID, purchase.RoleDirector, purchase.StatusPending)
	assertKind(t, err, errorbank.KindBadRequest)

	got, err := f.svc.TransitionToStatus(ctx, p.ID, purchase.RoleDirector, purchase.StatusDirectorApproved)
	if err != nil {
		t.Fatalf("TransitionToStatus() error = %v", err)
	}
	if got.Status != purchase.StatusDirectorApproved {
		t.Fatalf("status = %s", got.Status)
	}
}

func TestReuploadFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.create(t, 500)
	if _, err := f.svc.ApplyTransition(ctx, p.ID, purchase.RoleFinance, purchase.ActionApprove); err != nil {
		t.Fatalf("finance approve error = %v", err)
	}

	got, err := f.svc.ReuploadFile(ctx, p.ID, " https://files.example.com/new.pdf ", "new.pdf")
	if err != nil {
		t.Fatalf("ReuploadFile() error = %v", err)
	}
	if got.FileURL != "https://files.example.com/new.pdf" || got.FileName != "new.pdf" {
		t.Fatalf("file = %q %q", got.FileURL, got.FileName)
	}
	if got.Status != purchase.StatusFinanceApproved || !got.FinanceApproved() {
		t.Fatalf("reupload must not touch approvals: %+v", got)
	}

	_, err = f.svc.ReuploadFile(ctx, p.ID, "  ", "x.pdf")
	assertKind(t, err, errorbank.KindBadRequest)
	_, err = f.svc.ReuploadFile(ctx, "missing", "https://x", "x.pdf")
	assertKind(t, err, errorbank.KindNotFound)
}

func TestUpdateRefusedStatusKeepsReceipt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.create(t, 50000)

	newURL := "https://files.example.com/new.pdf"
	target := purchase.StatusFinanceApproved
	_, err := f.svc.Update(ctx, p.ID, purchase.RoleFinance, Change{FileURL: &newURL, FileName: "new.pdf", Status: &target})
	assertRefused(t, err, purchase.ReasonThresholdNotMet)

	stored := f.repo.records[p.ID]
	if stored.FileURL != p.FileURL || stored.Status != purchase.StatusPending || f.repo.updates != 0 {
		t.Fatalf("refused update wrote the record: %+v (updates=%d)", stored, f.repo.updates)
	}
	if got := f.pub.types(); len(got) != 1 {
		t.Fatalf("published = %v, want only the create event", got)
	}
}

func TestUpdateAppliesReceiptAndStatusTogether(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.create(t, 50000)

	newURL := " https://files.example.com/new.pdf "
	target := purchase.StatusDirectorApproved
	got, err := f.svc.Update(ctx, p.ID, purchase.RoleDirector, Change{FileURL: &newURL, FileName: "new.pdf", Status: &target})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if got.FileURL != "https://files.example.com/new.pdf" || got.Status != purchase.StatusDirectorApproved || !got.DirectorApproved() {
		t.Fatalf("after update = %+v", got)
	}
	if f.repo.updates != 1 {
		t.Fatalf("updates = %d, want a single write", f.repo.updates)
	}
	want := []purchase.EventType{purchase.EventCreated, purchase.EventFileReuploaded, purchase.EventTransitioned}
	types := f.pub.types()
	if len(types) != len(want) {
		t.Fatalf("published = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("published = %v, want %v", types, want)
		}
	}

	_, err = f.svc.Update(ctx, p.ID, purchase.RoleDirector, Change{})
	assertKind(t, err, errorbank.KindBadRequest)
}

func TestListFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	items, err := f.svc.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if items == nil || len(items) != 0 {
		t.Fatalf("empty List() = %#v, want empty slice", items)
	}

	for _, tc := range []Filter{{Status: "approved"}, {Month: "2026/03"}} {
		_, err := f.svc.List(ctx, tc)
		assertKind(t, err, errorbank.KindBadRequest)
	}

	first := f.create(t, 100)
	f.clock = f.clock.Add(time.Hour)
	second := f.create(t, 200)
	items, err = f.svc.List(ctx, Filter{Status: "PENDING"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(items) != 2 || items[0].ID != second.ID || items[1].ID != first.ID {
		t.Fatalf("List() = %+v", items)
	}

	f.repo.failAll = errors.New("boom")
	_, err = f.svc.List(ctx, Filter{})
	assertKind(t, err, errorbank.KindInternal)
}

func TestGetUsesCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.create(t, 100)

	f.repo.failAll = errors.New("database down")
	got, err := f.svc.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("Get() should be served from cache, got %v", err)
	}
	if got.ID != p.ID || !got.Amount.Equal(p.Amount) {
		t.Fatalf("cached = %+v", got)
	}

	f.repo.failAll = nil
	_, err = f.svc.Get(ctx, "missing")
	assertKind(t, err, errorbank.KindNotFound)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.create(t, 100)

	if err := f.svc.Delete(ctx, p.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := f.cache.Get(ctx, "purchases:"+p.ID); !errors.Is(err, cache.ErrCacheMiss) {
		t.Fatalf("cache entry should be evicted, got %v", err)
	}
	_, err := f.svc.Get(ctx, p.ID)
	assertKind(t, err, errorbank.KindNotFound)
	assertKind(t, f.svc.Delete(ctx, p.ID), errorbank.KindNotFound)

	types := f.pub.types()
	if types[len(types)-1] != purchase.EventDeleted {
		t.Fatalf("last event = %s", types[len(types)-1])
	}
}

func TestSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, 12000)
	low := f.create(t, 500)
	if _, err := f.svc.ApplyTransition(ctx, low.ID, purchase.RoleFinance, purchase.ActionReject); err != nil {
		t.Fatalf("reject error = %v", err)
	}

	sum, err := f.svc.Summary(ctx, Filter{})
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if sum.Total != 2 || sum.ByStatus[purchase.StatusPending] != 1 || sum.ByStatus[purchase.StatusRejected] != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	if count, ok := sum.ByStatus[purchase.StatusFinanceApproved]; !ok || count != 0 {
		t.Fatal("every status should be reported, including empty ones")
	}
	if !sum.TotalAmount.Equal(decimal.NewFromInt(12500)) {
		t.Fatalf("total amount = %s", sum.TotalAmount)
	}
	if sum.TotalAmountLabel != "₹12,500.00" {
		t.Fatalf("label = %q", sum.TotalAmountLabel)
	}
}
