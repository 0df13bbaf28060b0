package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gelomax/api/internal/services"
)

func pushBody(t *testing.T, msg services.InvoiceJobMessage) string {
	t.Helper()
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal job message: %v", err)
	}
	return fmt.Sprintf(`{"message":{"data":%q,"messageId":"msg_1","publishTime":"2025-06-07T12:00:00Z"},"subscription":"projects/gelomax/subscriptions/invoice-emission"}`,
		base64.StdEncoding.EncodeToString(data))
}

func TestInternalJobHandlersInvoiceEmission(t *testing.T) {
	var gotMsg services.InvoiceJobMessage
	invoices := &invoiceStub{
		processFn: func(_ context.Context, msg services.InvoiceJobMessage) error {
			gotMsg = msg
			return nil
		},
	}
	handler := NewInternalJobHandlers(invoices)
	router := NewRouter(WithInternalRoutes(handler.Routes))

	msg := services.InvoiceJobMessage{
		JobID:     "job_1",
		InvoiceID: "inv_1",
		SaleID:    "sale_1",
		Unit:      "filial",
		QueuedAt:  time.Date(2025, 6, 7, 12, 0, 0, 0, time.UTC),
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/internal/jobs/invoice-emission", strings.NewReader(pushBody(t, msg)))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotMsg.JobID != "job_1" || gotMsg.InvoiceID != "inv_1" || gotMsg.SaleID != "sale_1" {
		t.Fatalf("unexpected message: %+v", gotMsg)
	}
}

func TestInternalJobHandlersRetriesOnOutage(t *testing.T) {
	invoices := &invoiceStub{
		processFn: func(context.Context, services.InvoiceJobMessage) error {
			return services.ErrInvoiceUnavailable
		},
	}
	handler := NewInternalJobHandlers(invoices)
	router := NewRouter(WithInternalRoutes(handler.Routes))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/internal/jobs/invoice-emission", strings.NewReader(pushBody(t, services.InvoiceJobMessage{JobID: "job_1"})))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for redelivery, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestInternalJobHandlersAcksPoisonMessage(t *testing.T) {
	invoices := &invoiceStub{
		processFn: func(context.Context, services.InvoiceJobMessage) error {
			return services.ErrInvoiceNotFound
		},
	}
	handler := NewInternalJobHandlers(invoices)
	router := NewRouter(WithInternalRoutes(handler.Routes))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/internal/jobs/invoice-emission", strings.NewReader(pushBody(t, services.InvoiceJobMessage{JobID: "job_9"})))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 ack for poison message, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestInternalJobHandlersAcksUndecodableData(t *testing.T) {
	invoices := &invoiceStub{
		processFn: func(context.Context, services.InvoiceJobMessage) error {
			t.Fatal("process should not run for undecodable data")
			return nil
		},
	}
	handler := NewInternalJobHandlers(invoices)
	router := NewRouter(WithInternalRoutes(handler.Routes))

	body := `{"message":{"data":"not-base64!!","messageId":"msg_1"},"subscription":"s"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/internal/jobs/invoice-emission", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 ack, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestInternalJobHandlersRejectsInvalidEnvelope(t *testing.T) {
	handler := NewInternalJobHandlers(&invoiceStub{})
	router := NewRouter(WithInternalRoutes(handler.Routes))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/internal/jobs/invoice-emission", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
	}
}
