package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/gelomax/api/internal/domain"
	"github.com/gelomax/api/internal/fiscal"
	"github.com/gelomax/api/internal/platform/storage"
	"github.com/gelomax/api/internal/repositories"
)

const (
	eventInvoiceQueued     = "invoices.emission_queued"
	eventInvoiceEmitted    = "invoices.emitted"
	eventInvoiceRejected   = "invoices.rejected"
	eventInvoiceResolved   = "invoices.webhook_resolved"
	eventInvoiceArchiveErr = "invoices.archive_failed"
)

var (
	// ErrInvoiceInvalidInput signals the caller provided invalid arguments.
	ErrInvoiceInvalidInput = errors.New("invoices: invalid input")
	// ErrInvoiceSaleNotFound indicates the sale could not be located.
	ErrInvoiceSaleNotFound = errors.New("invoices: sale not found")
	// ErrInvoiceNotFound indicates the invoice record could not be located.
	ErrInvoiceNotFound = errors.New("invoices: invoice not found")
	// ErrInvoiceNotEligible indicates the sale does not qualify for emission.
	ErrInvoiceNotEligible = errors.New("invoices: sale not eligible for emission")
	// ErrInvoiceAlreadyAuthorized indicates the sale already carries an authorized document.
	ErrInvoiceAlreadyAuthorized = errors.New("invoices: already authorized")
	// ErrInvoiceUnavailable indicates a transient outage of a collaborator.
	ErrInvoiceUnavailable = errors.New("invoices: temporarily unavailable")
)

// FiscalEmitter submits one emission request to the fiscal provider.
type FiscalEmitter interface {
	Emit(ctx context.Context, req fiscal.EmissionRequest) (fiscal.EmissionResult, error)
}

// InvoiceArchiver persists emitted fiscal documents for retention.
type InvoiceArchiver interface {
	ArchiveDocument(ctx context.Context, params storage.InvoicePathParams, payload []byte) (string, error)
}

// InvoiceServiceDeps bundles the collaborators required to construct an invoice service.
type InvoiceServiceDeps struct {
	Invoices    repositories.InvoiceRepository
	Sales       repositories.SaleRepository
	Publisher   InvoiceJobPublisher
	Emitter     FiscalEmitter
	Archiver    InvoiceArchiver
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type invoiceService struct {
	invoices  repositories.InvoiceRepository
	sales     repositories.SaleRepository
	publisher InvoiceJobPublisher
	emitter   FiscalEmitter
	archiver  InvoiceArchiver
	clock     func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

// NewInvoiceService wires dependencies into a concrete InvoiceService implementation.
func NewInvoiceService(deps InvoiceServiceDeps) (InvoiceService, error) {
	if deps.Invoices == nil {
		return nil, errors.New("invoice service: invoice repository is required")
	}
	if deps.Sales == nil {
		return nil, errors.New("invoice service: sale repository is required")
	}
	if deps.Publisher == nil {
		return nil, errors.New("invoice service: job publisher is required")
	}
	if deps.Emitter == nil {
		return nil, errors.New("invoice service: fiscal emitter is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &invoiceService{
		invoices:  deps.Invoices,
		sales:     deps.Sales,
		publisher: deps.Publisher,
		emitter:   deps.Emitter,
		archiver:  deps.Archiver,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// RequestEmission marks the sale invoice-pending and enqueues the emission
// job. An existing pending or authorized invoice is returned unchanged so the
// operation can be retried safely; a rejected invoice is replaced.
func (s *invoiceService) RequestEmission(ctx context.Context, cmd InvoiceEmissionCommand) (domain.Invoice, error) {
	saleID := strings.TrimSpace(cmd.SaleID)
	if saleID == "" {
		return domain.Invoice{}, fmt.Errorf("%w: sale id is required", ErrInvoiceInvalidInput)
	}

	sale, err := s.sales.FindByID(ctx, saleID)
	if err != nil {
		return domain.Invoice{}, s.mapError(err, ErrInvoiceSaleNotFound)
	}
	if !sale.InvoiceEligible {
		return domain.Invoice{}, fmt.Errorf("%w: sale %s", ErrInvoiceNotEligible, saleID)
	}

	existing, err := s.invoices.FindBySale(ctx, saleID)
	if err == nil {
		switch existing.Status {
		case domain.InvoiceStatusPending, domain.InvoiceStatusAuthorized:
			return existing, nil
		}
	} else {
		var repoErr repositories.RepositoryError
		if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
			return domain.Invoice{}, s.mapError(err, ErrInvoiceNotFound)
		}
	}

	now := s.clock()
	invoice := domain.Invoice{
		ID:          s.newID(),
		SaleID:      saleID,
		Document:    strings.TrimSpace(cmd.Document),
		Status:      domain.InvoiceStatusPending,
		RequestedAt: now,
	}
	if err := s.invoices.Insert(ctx, invoice); err != nil {
		return domain.Invoice{}, s.mapError(err, ErrInvoiceNotFound)
	}
	if err := s.sales.UpdateInvoiceStatus(ctx, saleID, domain.InvoiceStatusPending, now); err != nil {
		return domain.Invoice{}, s.mapError(err, ErrInvoiceSaleNotFound)
	}

	message := InvoiceJobMessage{
		JobID:          s.newID(),
		InvoiceID:      invoice.ID,
		SaleID:         saleID,
		Unit:           string(sale.Unit),
		QueuedAt:       now,
		IdempotencyKey: strings.TrimSpace(cmd.IdempotencyKey),
	}
	if _, err := s.publisher.PublishInvoiceJob(ctx, message); err != nil {
		// The sale stays pending; a manual re-request enqueues a fresh job.
		return invoice, fmt.Errorf("%w: publish emission job: %v", ErrInvoiceUnavailable, err)
	}

	s.logger(ctx, eventInvoiceQueued, map[string]any{
		"invoice_id": invoice.ID,
		"sale_id":    saleID,
		"job_id":     message.JobID,
	})
	return invoice, nil
}

// ProcessEmission is the push-delivered worker path: it submits the emission
// to the fiscal provider and records the outcome. Redelivered jobs for
// already-resolved invoices are acknowledged without effect. A provider
// outage returns an error so the message is redelivered.
func (s *invoiceService) ProcessEmission(ctx context.Context, msg InvoiceJobMessage) error {
	invoiceID := strings.TrimSpace(msg.InvoiceID)
	if invoiceID == "" {
		return fmt.Errorf("%w: invoice id is required", ErrInvoiceInvalidInput)
	}

	invoice, err := s.invoices.FindByID(ctx, invoiceID)
	if err != nil {
		return s.mapError(err, ErrInvoiceNotFound)
	}
	if invoice.Status != domain.InvoiceStatusPending {
		return nil
	}

	sale, err := s.sales.FindByID(ctx, invoice.SaleID)
	if err != nil {
		return s.mapError(err, ErrInvoiceSaleNotFound)
	}

	lines := make([]fiscal.EmissionLine, 0, len(sale.Lines))
	for _, line := range sale.Lines {
		lines = append(lines, fiscal.EmissionLine{
			Description: line.ProductName,
			Quantity:    line.Quantity,
			UnitCents:   line.UnitPrice,
			TotalCents:  line.Total,
		})
	}

	now := s.clock()
	result, err := s.emitter.Emit(ctx, fiscal.EmissionRequest{
		SaleID:      sale.ID,
		Unit:        string(sale.Unit),
		Document:    invoice.Document,
		TotalCents:  sale.Total,
		Method:      string(sale.Method),
		Lines:       lines,
		RequestedAt: now,
		Idempotency: strings.TrimSpace(msg.IdempotencyKey),
	})
	if err != nil {
		if errors.Is(err, fiscal.ErrRejected) {
			return s.resolveInvoice(ctx, invoice, fiscal.WebhookPayload{
				AccessKey:  invoice.AccessKey,
				SaleID:     sale.ID,
				Status:     fiscal.WebhookStatusRejected,
				Detail:     err.Error(),
				ResolvedAt: now,
			})
		}
		return fmt.Errorf("%w: %v", ErrInvoiceUnavailable, err)
	}

	invoice.AccessKey = result.AccessKey
	invoice.Detail = strings.TrimSpace(result.Detail)

	if result.Status == fiscal.WebhookStatusAuthorized {
		if len(result.XML) > 0 {
			invoice.XMLPath = s.archiveXML(ctx, sale, result, now)
		}
		resolved := now
		invoice.Status = domain.InvoiceStatusAuthorized
		invoice.ResolvedAt = &resolved
	}

	if err := s.invoices.Update(ctx, invoice); err != nil {
		return s.mapError(err, ErrInvoiceNotFound)
	}
	if invoice.Status == domain.InvoiceStatusAuthorized {
		if err := s.sales.UpdateInvoiceStatus(ctx, sale.ID, domain.InvoiceStatusAuthorized, now); err != nil {
			return s.mapError(err, ErrInvoiceSaleNotFound)
		}
	}

	s.logger(ctx, eventInvoiceEmitted, map[string]any{
		"invoice_id": invoice.ID,
		"sale_id":    sale.ID,
		"access_key": invoice.AccessKey,
		"status":     string(invoice.Status),
	})
	return nil
}

// HandleWebhook applies a verified fiscal status callback.
func (s *invoiceService) HandleWebhook(ctx context.Context, cmd InvoiceWebhookCommand) (domain.Invoice, error) {
	accessKey := strings.TrimSpace(cmd.AccessKey)
	saleID := strings.TrimSpace(cmd.SaleID)
	if accessKey == "" && saleID == "" {
		return domain.Invoice{}, fmt.Errorf("%w: access key or sale id is required", ErrInvoiceInvalidInput)
	}
	status := strings.TrimSpace(cmd.Status)
	if status != fiscal.WebhookStatusAuthorized && status != fiscal.WebhookStatusRejected {
		return domain.Invoice{}, fmt.Errorf("%w: unknown status %q", ErrInvoiceInvalidInput, status)
	}

	var invoice domain.Invoice
	var err error
	if accessKey != "" {
		invoice, err = s.invoices.FindByAccessKey(ctx, accessKey)
	}
	if (err != nil || accessKey == "") && saleID != "" {
		invoice, err = s.invoices.FindBySale(ctx, saleID)
	}
	if err != nil {
		return domain.Invoice{}, s.mapError(err, ErrInvoiceNotFound)
	}

	resolvedAt := cmd.ResolvedAt
	if resolvedAt.IsZero() {
		resolvedAt = s.clock()
	}
	if err := s.resolveInvoice(ctx, invoice, fiscal.WebhookPayload{
		AccessKey:  accessKey,
		SaleID:     invoice.SaleID,
		Status:     status,
		Detail:     strings.TrimSpace(cmd.Detail),
		ResolvedAt: resolvedAt.UTC(),
	}); err != nil {
		return domain.Invoice{}, err
	}
	return s.invoices.FindByID(ctx, invoice.ID)
}

func (s *invoiceService) GetInvoiceForSale(ctx context.Context, saleID string) (domain.Invoice, error) {
	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return domain.Invoice{}, fmt.Errorf("%w: sale id is required", ErrInvoiceInvalidInput)
	}
	invoice, err := s.invoices.FindBySale(ctx, saleID)
	if err != nil {
		return domain.Invoice{}, s.mapError(err, ErrInvoiceNotFound)
	}
	return invoice, nil
}

func (s *invoiceService) resolveInvoice(ctx context.Context, invoice domain.Invoice, payload fiscal.WebhookPayload) error {
	if invoice.Status == domain.InvoiceStatusAuthorized && payload.Status == fiscal.WebhookStatusRejected {
		return fmt.Errorf("%w: invoice %s", ErrInvoiceAlreadyAuthorized, invoice.ID)
	}

	resolved := payload.ResolvedAt
	invoice.Status = domain.InvoiceStatusRejected
	if payload.Status == fiscal.WebhookStatusAuthorized {
		invoice.Status = domain.InvoiceStatusAuthorized
	}
	if key := strings.TrimSpace(payload.AccessKey); key != "" {
		invoice.AccessKey = key
	}
	invoice.Detail = strings.TrimSpace(payload.Detail)
	invoice.ResolvedAt = &resolved

	if err := s.invoices.Update(ctx, invoice); err != nil {
		return s.mapError(err, ErrInvoiceNotFound)
	}
	if err := s.sales.UpdateInvoiceStatus(ctx, invoice.SaleID, invoice.Status, resolved); err != nil {
		return s.mapError(err, ErrInvoiceSaleNotFound)
	}

	event := eventInvoiceResolved
	if invoice.Status == domain.InvoiceStatusRejected {
		event = eventInvoiceRejected
	}
	s.logger(ctx, event, map[string]any{
		"invoice_id": invoice.ID,
		"sale_id":    invoice.SaleID,
		"status":     string(invoice.Status),
	})
	return nil
}

// archiveXML stores the emitted document. Archive failures are logged and
// leave XMLPath empty rather than failing the emission.
func (s *invoiceService) archiveXML(ctx context.Context, sale domain.Sale, result fiscal.EmissionResult, now time.Time) string {
	if s.archiver == nil {
		return ""
	}
	path, err := s.archiver.ArchiveDocument(ctx, storage.InvoicePathParams{
		Unit:          string(sale.Unit),
		InvoiceNumber: result.AccessKey,
		EmittedAt:     now,
		Kind:          storage.DocumentXML,
	}, result.XML)
	if err != nil {
		s.logger(ctx, eventInvoiceArchiveErr, map[string]any{
			"sale_id":    sale.ID,
			"access_key": result.AccessKey,
			"error":      err.Error(),
		})
		return ""
	}
	return path
}

func (s *invoiceService) mapError(err, notFound error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", notFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrInvoiceUnavailable, err)
		}
	}
	return err
}
