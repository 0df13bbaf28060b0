package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	domain "github.com/gelomax/api/internal/domain"
	"github.com/gelomax/api/internal/fiscal"
	"github.com/gelomax/api/internal/platform/storage"
)

type stubJobPublisher struct {
	publishFn func(ctx context.Context, message InvoiceJobMessage) (string, error)
}

func (s *stubJobPublisher) PublishInvoiceJob(ctx context.Context, message InvoiceJobMessage) (string, error) {
	if s.publishFn != nil {
		return s.publishFn(ctx, message)
	}
	return "msg_1", nil
}

type stubEmitter struct {
	emitFn func(ctx context.Context, req fiscal.EmissionRequest) (fiscal.EmissionResult, error)
}

func (s *stubEmitter) Emit(ctx context.Context, req fiscal.EmissionRequest) (fiscal.EmissionResult, error) {
	if s.emitFn != nil {
		return s.emitFn(ctx, req)
	}
	return fiscal.EmissionResult{}, errors.New("not implemented")
}

type stubArchiver struct {
	archiveFn func(ctx context.Context, params storage.InvoicePathParams, payload []byte) (string, error)
}

func (s *stubArchiver) ArchiveDocument(ctx context.Context, params storage.InvoicePathParams, payload []byte) (string, error) {
	if s.archiveFn != nil {
		return s.archiveFn(ctx, params, payload)
	}
	return "", errors.New("not implemented")
}

func eligibleSale() domain.Sale {
	return domain.Sale{
		ID:     "sale_1",
		Unit:   domain.UnitFilial,
		Method: domain.PaymentPix,
		Lines: []domain.SaleLine{
			{ProductID: "prod_1", ProductName: "Gelo 5kg", Quantity: 2, UnitPrice: 800, Total: 1600},
		},
		Total:           1600,
		InvoiceEligible: true,
		CreatedAt:       time.Date(2025, 6, 7, 10, 0, 0, 0, time.UTC),
	}
}

func newInvoiceServiceForTest(t *testing.T, deps InvoiceServiceDeps) InvoiceService {
	t.Helper()
	if deps.Clock == nil {
		deps.Clock = func() time.Time {
			return time.Date(2025, 6, 7, 12, 0, 0, 0, time.UTC)
		}
	}
	svc, err := NewInvoiceService(deps)
	if err != nil {
		t.Fatalf("new invoice service: %v", err)
	}
	return svc
}

func TestInvoiceServiceRequestEmissionQueuesJob(t *testing.T) {
	ids := []string{"inv_1", "job_1"}
	var inserted domain.Invoice
	var published InvoiceJobMessage
	var statusSale string
	var statusValue domain.InvoiceStatus

	svc := newInvoiceServiceForTest(t, InvoiceServiceDeps{
		Invoices: &stubInvoiceRepo{
			insertFn: func(_ context.Context, invoice domain.Invoice) error {
				inserted = invoice
				return nil
			},
			findBySaleFn: func(context.Context, string) (domain.Invoice, error) {
				return domain.Invoice{}, &notFoundRepoError{msg: "no invoice"}
			},
		},
		Sales: &stubSaleRepo{
			findFn: func(context.Context, string) (domain.Sale, error) {
				return eligibleSale(), nil
			},
			statusFn: func(_ context.Context, saleID string, status domain.InvoiceStatus, _ time.Time) error {
				statusSale = saleID
				statusValue = status
				return nil
			},
		},
		Publisher: &stubJobPublisher{
			publishFn: func(_ context.Context, message InvoiceJobMessage) (string, error) {
				published = message
				return "msg_1", nil
			},
		},
		Emitter: &stubEmitter{},
		IDGenerator: func() string {
			id := ids[0]
			ids = ids[1:]
			return id
		},
	})

	invoice, err := svc.RequestEmission(context.Background(), InvoiceEmissionCommand{
		SaleID:         "sale_1",
		Document:       " 123.456.789-00 ",
		IdempotencyKey: "idem-1",
	})
	if err != nil {
		t.Fatalf("request emission: %v", err)
	}
	if invoice.ID != "inv_1" || invoice.Status != domain.InvoiceStatusPending {
		t.Fatalf("unexpected invoice: %+v", invoice)
	}
	if inserted.Document != "123.456.789-00" {
		t.Fatalf("expected trimmed document, got %q", inserted.Document)
	}
	if statusSale != "sale_1" || statusValue != domain.InvoiceStatusPending {
		t.Fatalf("expected sale marked pending, got %s %s", statusSale, statusValue)
	}
	if published.InvoiceID != "inv_1" || published.JobID != "job_1" || published.Unit != "filial" {
		t.Fatalf("unexpected job message: %+v", published)
	}
	if published.IdempotencyKey != "idem-1" {
		t.Fatalf("expected idempotency key on job, got %q", published.IdempotencyKey)
	}
}

func TestInvoiceServiceRequestEmissionReturnsExistingPending(t *testing.T) {
	existing := domain.Invoice{ID: "inv_old", SaleID: "sale_1", Status: domain.InvoiceStatusPending}
	svc := newInvoiceServiceForTest(t, InvoiceServiceDeps{
		Invoices: &stubInvoiceRepo{
			findBySaleFn: func(context.Context, string) (domain.Invoice, error) {
				return existing, nil
			},
			insertFn: func(context.Context, domain.Invoice) error {
				t.Fatal("insert should not be called for an existing pending invoice")
				return nil
			},
		},
		Sales: &stubSaleRepo{
			findFn: func(context.Context, string) (domain.Sale, error) {
				return eligibleSale(), nil
			},
		},
		Publisher: &stubJobPublisher{
			publishFn: func(context.Context, InvoiceJobMessage) (string, error) {
				t.Fatal("publish should not be called for an existing pending invoice")
				return "", nil
			},
		},
		Emitter: &stubEmitter{},
	})

	invoice, err := svc.RequestEmission(context.Background(), InvoiceEmissionCommand{SaleID: "sale_1"})
	if err != nil {
		t.Fatalf("request emission: %v", err)
	}
	if invoice.ID != "inv_old" {
		t.Fatalf("expected existing invoice, got %+v", invoice)
	}
}

func TestInvoiceServiceRequestEmissionRejectsIneligibleSale(t *testing.T) {
	sale := eligibleSale()
	sale.InvoiceEligible = false
	svc := newInvoiceServiceForTest(t, InvoiceServiceDeps{
		Invoices: &stubInvoiceRepo{},
		Sales: &stubSaleRepo{
			findFn: func(context.Context, string) (domain.Sale, error) {
				return sale, nil
			},
		},
		Publisher: &stubJobPublisher{},
		Emitter:   &stubEmitter{},
	})

	if _, err := svc.RequestEmission(context.Background(), InvoiceEmissionCommand{SaleID: "sale_1"}); !errors.Is(err, ErrInvoiceNotEligible) {
		t.Fatalf("expected not eligible, got %v", err)
	}
}

func TestInvoiceServiceRequestEmissionPublishFailureKeepsPending(t *testing.T) {
	svc := newInvoiceServiceForTest(t, InvoiceServiceDeps{
		Invoices: &stubInvoiceRepo{
			findBySaleFn: func(context.Context, string) (domain.Invoice, error) {
				return domain.Invoice{}, &notFoundRepoError{msg: "no invoice"}
			},
			insertFn: func(context.Context, domain.Invoice) error { return nil },
		},
		Sales: &stubSaleRepo{
			findFn: func(context.Context, string) (domain.Sale, error) {
				return eligibleSale(), nil
			},
		},
		Publisher: &stubJobPublisher{
			publishFn: func(context.Context, InvoiceJobMessage) (string, error) {
				return "", errors.New("topic gone")
			},
		},
		Emitter: &stubEmitter{},
	})

	invoice, err := svc.RequestEmission(context.Background(), InvoiceEmissionCommand{SaleID: "sale_1"})
	if !errors.Is(err, ErrInvoiceUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if invoice.Status != domain.InvoiceStatusPending {
		t.Fatalf("expected pending invoice returned alongside the error, got %+v", invoice)
	}
}

func TestInvoiceServiceProcessEmissionSkipsResolvedInvoice(t *testing.T) {
	svc := newInvoiceServiceForTest(t, InvoiceServiceDeps{
		Invoices: &stubInvoiceRepo{
			findFn: func(context.Context, string) (domain.Invoice, error) {
				return domain.Invoice{ID: "inv_1", Status: domain.InvoiceStatusAuthorized}, nil
			},
		},
		Sales:     &stubSaleRepo{},
		Publisher: &stubJobPublisher{},
		Emitter: &stubEmitter{
			emitFn: func(context.Context, fiscal.EmissionRequest) (fiscal.EmissionResult, error) {
				t.Fatal("emit should not be called for a resolved invoice")
				return fiscal.EmissionResult{}, nil
			},
		},
	})

	if err := svc.ProcessEmission(context.Background(), InvoiceJobMessage{InvoiceID: "inv_1"}); err != nil {
		t.Fatalf("process emission: %v", err)
	}
}

func TestInvoiceServiceProcessEmissionAuthorizedArchivesAndResolves(t *testing.T) {
	now := time.Date(2025, 6, 7, 12, 0, 0, 0, time.UTC)
	var updated domain.Invoice
	var archivedPayload []byte
	var statusValue domain.InvoiceStatus

	svc := newInvoiceServiceForTest(t, InvoiceServiceDeps{
		Invoices: &stubInvoiceRepo{
			findFn: func(context.Context, string) (domain.Invoice, error) {
				return domain.Invoice{ID: "inv_1", SaleID: "sale_1", Document: "123", Status: domain.InvoiceStatusPending}, nil
			},
			updateFn: func(_ context.Context, invoice domain.Invoice) error {
				updated = invoice
				return nil
			},
		},
		Sales: &stubSaleRepo{
			findFn: func(context.Context, string) (domain.Sale, error) {
				return eligibleSale(), nil
			},
			statusFn: func(_ context.Context, _ string, status domain.InvoiceStatus, _ time.Time) error {
				statusValue = status
				return nil
			},
		},
		Publisher: &stubJobPublisher{},
		Emitter: &stubEmitter{
			emitFn: func(_ context.Context, req fiscal.EmissionRequest) (fiscal.EmissionResult, error) {
				if req.Document != "123" || req.TotalCents != 1600 || len(req.Lines) != 1 {
					t.Fatalf("unexpected emission request: %+v", req)
				}
				return fiscal.EmissionResult{
					AccessKey: "NFE123",
					Status:    fiscal.WebhookStatusAuthorized,
					XML:       []byte("<nfe/>"),
				}, nil
			},
		},
		Archiver: &stubArchiver{
			archiveFn: func(_ context.Context, params storage.InvoicePathParams, payload []byte) (string, error) {
				if params.InvoiceNumber != "NFE123" || params.Kind != storage.DocumentXML {
					t.Fatalf("unexpected archive params: %+v", params)
				}
				archivedPayload = payload
				return "invoices/filial/NFE123.xml", nil
			},
		},
		Clock: func() time.Time { return now },
	})

	if err := svc.ProcessEmission(context.Background(), InvoiceJobMessage{InvoiceID: "inv_1", SaleID: "sale_1"}); err != nil {
		t.Fatalf("process emission: %v", err)
	}
	if updated.Status != domain.InvoiceStatusAuthorized || updated.AccessKey != "NFE123" {
		t.Fatalf("unexpected updated invoice: %+v", updated)
	}
	if updated.XMLPath != "invoices/filial/NFE123.xml" {
		t.Fatalf("expected archive path on invoice, got %q", updated.XMLPath)
	}
	if updated.ResolvedAt == nil || !updated.ResolvedAt.Equal(now) {
		t.Fatalf("expected resolved-at from clock, got %v", updated.ResolvedAt)
	}
	if string(archivedPayload) != "<nfe/>" {
		t.Fatalf("expected XML payload archived, got %q", archivedPayload)
	}
	if statusValue != domain.InvoiceStatusAuthorized {
		t.Fatalf("expected sale marked authorized, got %s", statusValue)
	}
}

func TestInvoiceServiceProcessEmissionRejectionResolvesInvoice(t *testing.T) {
	var updated domain.Invoice
	svc := newInvoiceServiceForTest(t, InvoiceServiceDeps{
		Invoices: &stubInvoiceRepo{
			findFn: func(context.Context, string) (domain.Invoice, error) {
				return domain.Invoice{ID: "inv_1", SaleID: "sale_1", Status: domain.InvoiceStatusPending}, nil
			},
			updateFn: func(_ context.Context, invoice domain.Invoice) error {
				updated = invoice
				return nil
			},
		},
		Sales: &stubSaleRepo{
			findFn: func(context.Context, string) (domain.Sale, error) {
				return eligibleSale(), nil
			},
			statusFn: func(context.Context, string, domain.InvoiceStatus, time.Time) error { return nil },
		},
		Publisher: &stubJobPublisher{},
		Emitter: &stubEmitter{
			emitFn: func(context.Context, fiscal.EmissionRequest) (fiscal.EmissionResult, error) {
				return fiscal.EmissionResult{}, fmt.Errorf("%w: cadastro do destinatario invalido", fiscal.ErrRejected)
			},
		},
	})

	if err := svc.ProcessEmission(context.Background(), InvoiceJobMessage{InvoiceID: "inv_1"}); err != nil {
		t.Fatalf("process emission: %v", err)
	}
	if updated.Status != domain.InvoiceStatusRejected {
		t.Fatalf("expected rejected invoice, got %+v", updated)
	}
	if updated.Detail == "" {
		t.Fatal("expected rejection detail recorded")
	}
}

func TestInvoiceServiceProcessEmissionOutageReturnsUnavailable(t *testing.T) {
	svc := newInvoiceServiceForTest(t, InvoiceServiceDeps{
		Invoices: &stubInvoiceRepo{
			findFn: func(context.Context, string) (domain.Invoice, error) {
				return domain.Invoice{ID: "inv_1", SaleID: "sale_1", Status: domain.InvoiceStatusPending}, nil
			},
			updateFn: func(context.Context, domain.Invoice) error {
				t.Fatal("update should not be called on a provider outage")
				return nil
			},
		},
		Sales: &stubSaleRepo{
			findFn: func(context.Context, string) (domain.Sale, error) {
				return eligibleSale(), nil
			},
		},
		Publisher: &stubJobPublisher{},
		Emitter: &stubEmitter{
			emitFn: func(context.Context, fiscal.EmissionRequest) (fiscal.EmissionResult, error) {
				return fiscal.EmissionResult{}, errors.New("gateway timeout")
			},
		},
	})

	if err := svc.ProcessEmission(context.Background(), InvoiceJobMessage{InvoiceID: "inv_1"}); !errors.Is(err, ErrInvoiceUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestInvoiceServiceHandleWebhookAuthorizes(t *testing.T) {
	resolvedAt := time.Date(2025, 6, 7, 13, 0, 0, 0, time.UTC)
	stored := domain.Invoice{ID: "inv_1", SaleID: "sale_1", Status: domain.InvoiceStatusPending}
	var statusValue domain.InvoiceStatus

	svc := newInvoiceServiceForTest(t, InvoiceServiceDeps{
		Invoices: &stubInvoiceRepo{
			findByKeyFn: func(context.Context, string) (domain.Invoice, error) {
				return stored, nil
			},
			updateFn: func(_ context.Context, invoice domain.Invoice) error {
				stored = invoice
				return nil
			},
			findFn: func(context.Context, string) (domain.Invoice, error) {
				return stored, nil
			},
		},
		Sales: &stubSaleRepo{
			statusFn: func(_ context.Context, _ string, status domain.InvoiceStatus, _ time.Time) error {
				statusValue = status
				return nil
			},
		},
		Publisher: &stubJobPublisher{},
		Emitter:   &stubEmitter{},
	})

	invoice, err := svc.HandleWebhook(context.Background(), InvoiceWebhookCommand{
		AccessKey:  "NFE123",
		Status:     fiscal.WebhookStatusAuthorized,
		ResolvedAt: resolvedAt,
	})
	if err != nil {
		t.Fatalf("handle webhook: %v", err)
	}
	if invoice.Status != domain.InvoiceStatusAuthorized || invoice.AccessKey != "NFE123" {
		t.Fatalf("unexpected invoice: %+v", invoice)
	}
	if invoice.ResolvedAt == nil || !invoice.ResolvedAt.Equal(resolvedAt) {
		t.Fatalf("expected resolved-at from callback, got %v", invoice.ResolvedAt)
	}
	if statusValue != domain.InvoiceStatusAuthorized {
		t.Fatalf("expected sale marked authorized, got %s", statusValue)
	}
}

func TestInvoiceServiceHandleWebhookRejectsDowngrade(t *testing.T) {
	svc := newInvoiceServiceForTest(t, InvoiceServiceDeps{
		Invoices: &stubInvoiceRepo{
			findByKeyFn: func(context.Context, string) (domain.Invoice, error) {
				return domain.Invoice{ID: "inv_1", SaleID: "sale_1", Status: domain.InvoiceStatusAuthorized}, nil
			},
		},
		Sales:     &stubSaleRepo{},
		Publisher: &stubJobPublisher{},
		Emitter:   &stubEmitter{},
	})

	if _, err := svc.HandleWebhook(context.Background(), InvoiceWebhookCommand{
		AccessKey: "NFE123",
		Status:    fiscal.WebhookStatusRejected,
	}); !errors.Is(err, ErrInvoiceAlreadyAuthorized) {
		t.Fatalf("expected already authorized, got %v", err)
	}
}

func TestInvoiceServiceHandleWebhookValidation(t *testing.T) {
	svc := newInvoiceServiceForTest(t, InvoiceServiceDeps{
		Invoices:  &stubInvoiceRepo{},
		Sales:     &stubSaleRepo{},
		Publisher: &stubJobPublisher{},
		Emitter:   &stubEmitter{},
	})

	if _, err := svc.HandleWebhook(context.Background(), InvoiceWebhookCommand{Status: fiscal.WebhookStatusAuthorized}); !errors.Is(err, ErrInvoiceInvalidInput) {
		t.Fatalf("expected invalid input without identifiers, got %v", err)
	}
	if _, err := svc.HandleWebhook(context.Background(), InvoiceWebhookCommand{
		AccessKey: "NFE123",
		Status:    "processing",
	}); !errors.Is(err, ErrInvoiceInvalidInput) {
		t.Fatalf("expected invalid input for unknown status, got %v", err)
	}
}

func TestInvoiceServiceGetInvoiceForSaleMapsNotFound(t *testing.T) {
	svc := newInvoiceServiceForTest(t, InvoiceServiceDeps{
		Invoices: &stubInvoiceRepo{
			findBySaleFn: func(context.Context, string) (domain.Invoice, error) {
				return domain.Invoice{}, &notFoundRepoError{msg: "no invoice"}
			},
		},
		Sales:     &stubSaleRepo{},
		Publisher: &stubJobPublisher{},
		Emitter:   &stubEmitter{},
	})

	if _, err := svc.GetInvoiceForSale(context.Background(), "sale_1"); !errors.Is(err, ErrInvoiceNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
