package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/gelomax/api/internal/assistant"
	domain "github.com/gelomax/api/internal/domain"
)

const (
	eventAssistantAsked  = "assistant.asked"
	eventAssistantFailed = "assistant.completion_failed"

	maxQuestionLength  = 2000
	summaryLookback    = 30 * 24 * time.Hour
	promptLowStockRows = 10
)

var (
	// ErrAssistantInvalidInput signals the caller provided invalid arguments.
	ErrAssistantInvalidInput = errors.New("assistant: invalid input")
	// ErrAssistantUnavailable indicates the completion endpoint could not be reached.
	ErrAssistantUnavailable = errors.New("assistant: temporarily unavailable")
	// ErrAssistantRejected indicates the completion endpoint refused the question.
	ErrAssistantRejected = errors.New("assistant: question rejected")
)

// AssistantCompleter produces a free-text answer for a prompt.
type AssistantCompleter interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// AssistantServiceDeps bundles the collaborators required to construct an assistant service.
type AssistantServiceDeps struct {
	Completer AssistantCompleter
	Sales     SalesService
	Catalog   CatalogService
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type assistantService struct {
	completer AssistantCompleter
	sales     SalesService
	catalog   CatalogService
	sanitize  *bluemonday.Policy
	clock     func() time.Time
	logger    func(context.Context, string, map[string]any)
}

// NewAssistantService wires dependencies into a concrete AssistantService implementation.
func NewAssistantService(deps AssistantServiceDeps) (AssistantService, error) {
	if deps.Completer == nil {
		return nil, errors.New("assistant service: completer is required")
	}
	if deps.Sales == nil {
		return nil, errors.New("assistant service: sales service is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("assistant service: catalog service is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &assistantService{
		completer: deps.Completer,
		sales:     deps.Sales,
		catalog:   deps.Catalog,
		sanitize:  bluemonday.StrictPolicy(),
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Ask builds a prompt from the current operational numbers, sends it to the
// completion endpoint, and returns the sanitised answer.
func (s *assistantService) Ask(ctx context.Context, cmd AssistantQuestion) (AssistantAnswer, error) {
	question := strings.TrimSpace(cmd.Question)
	if question == "" {
		return AssistantAnswer{}, fmt.Errorf("%w: question is required", ErrAssistantInvalidInput)
	}
	if len(question) > maxQuestionLength {
		return AssistantAnswer{}, fmt.Errorf("%w: question exceeds %d characters", ErrAssistantInvalidInput, maxQuestionLength)
	}
	unit := cmd.Unit
	if unit != "" && !unit.Valid() {
		return AssistantAnswer{}, fmt.Errorf("%w: unknown business unit %q", ErrAssistantInvalidInput, unit)
	}

	now := s.clock()
	prompt := s.buildPrompt(ctx, question, unit, now)

	raw, err := s.completer.Complete(ctx, prompt)
	if err != nil {
		s.logger(ctx, eventAssistantFailed, map[string]any{"error": err.Error()})
		return AssistantAnswer{}, s.mapCompletionError(err)
	}

	answer := strings.TrimSpace(s.sanitize.Sanitize(raw))
	if answer == "" {
		return AssistantAnswer{}, fmt.Errorf("%w: empty answer", ErrAssistantUnavailable)
	}

	s.logger(ctx, eventAssistantAsked, map[string]any{
		"unit":            string(unit),
		"question_length": len(question),
		"answer_length":   len(answer),
	})
	return AssistantAnswer{
		Answer:   answer,
		AskedAt:  now,
		Question: question,
	}, nil
}

// buildPrompt assembles the business context block. Gaps in the data are
// tolerated: a summary or report failure degrades to a prompt without that
// section rather than failing the question.
func (s *assistantService) buildPrompt(ctx context.Context, question string, unit domain.BusinessUnit, now time.Time) string {
	var b strings.Builder
	b.WriteString("Voce e o assistente de negocios da Gelomax, uma distribuidora de gelo e bebidas ")
	b.WriteString("com duas unidades: Matriz (atacado de gelo) e Filial (varejo). ")
	b.WriteString("Responda em portugues, com base apenas nos dados abaixo. Valores em centavos.\n\n")

	units := []domain.BusinessUnit{domain.UnitMatriz, domain.UnitFilial}
	if unit.Valid() {
		units = []domain.BusinessUnit{unit}
	}

	for _, u := range units {
		summary, err := s.sales.Summarize(ctx, SalesSummaryQuery{
			Unit: u,
			From: now.Add(-summaryLookback),
			To:   now,
		})
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "Vendas dos ultimos 30 dias (%s): %d vendas, total %d centavos.\n", u, summary.SaleCount, summary.TotalCents)
		for method, total := range summary.ByMethod {
			fmt.Fprintf(&b, "  %s: %d centavos\n", method, total)
		}
		for _, item := range summary.TopItems {
			fmt.Fprintf(&b, "  mais vendido: %s x%d (%d centavos)\n", item.ProductName, item.Quantity, item.TotalCents)
		}
	}

	for _, u := range units {
		low, err := s.catalog.ListLowStock(ctx, LowStockQuery{Unit: u, PageSize: promptLowStockRows})
		if err != nil || len(low.Items) == 0 {
			continue
		}
		fmt.Fprintf(&b, "Estoque abaixo do minimo (%s):\n", u)
		for _, product := range low.Items {
			fmt.Fprintf(&b, "  %s: %d em estoque, minimo %d\n", product.Name, product.StockFor(u), product.MinimumStock)
		}
	}

	b.WriteString("\nPergunta: ")
	b.WriteString(question)
	return b.String()
}

func (s *assistantService) mapCompletionError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	if errors.Is(err, assistant.ErrRejected) {
		return fmt.Errorf("%w: %v", ErrAssistantRejected, err)
	}
	return fmt.Errorf("%w: %v", ErrAssistantUnavailable, err)
}
