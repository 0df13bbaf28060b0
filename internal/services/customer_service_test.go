package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/gelomax/api/internal/domain"
)

func TestCustomerServiceCreateCustomerSanitizesMarkup(t *testing.T) {
	now := time.Date(2025, 6, 4, 10, 0, 0, 0, time.UTC)
	var inserted domain.Customer
	repo := &stubCustomerRepo{
		insertFn: func(_ context.Context, customer domain.Customer) error {
			inserted = customer
			return nil
		},
	}

	svc, err := NewCustomerService(CustomerServiceDeps{
		Customers:   repo,
		Clock:       func() time.Time { return now },
		IDGenerator: func() string { return "cust_1" },
	})
	if err != nil {
		t.Fatalf("new customer service: %v", err)
	}

	customer, err := svc.CreateCustomer(context.Background(), CustomerCreateCommand{
		Name:     "  Bar do Zé <script>alert(1)</script> ",
		Document: "12.345.678/0001-90",
		Phone:    "+55 11 99999-0000",
		Notes:    "<b>compra toda sexta</b>",
	})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	if customer.ID != "cust_1" {
		t.Fatalf("expected generated id, got %s", customer.ID)
	}
	if inserted.Name != "Bar do Zé" {
		t.Fatalf("expected markup stripped from name, got %q", inserted.Name)
	}
	if inserted.Notes != "compra toda sexta" {
		t.Fatalf("expected markup stripped from notes, got %q", inserted.Notes)
	}
	if inserted.Document != "12.345.678/0001-90" {
		t.Fatalf("expected document preserved, got %q", inserted.Document)
	}
}

func TestCustomerServiceCreateCustomerRequiresName(t *testing.T) {
	svc, err := NewCustomerService(CustomerServiceDeps{Customers: &stubCustomerRepo{}})
	if err != nil {
		t.Fatalf("new customer service: %v", err)
	}
	if _, err := svc.CreateCustomer(context.Background(), CustomerCreateCommand{
		Name: "<script>only markup</script>",
	}); !errors.Is(err, ErrCustomerInvalidInput) {
		t.Fatalf("expected invalid input when name empties after sanitisation, got %v", err)
	}
}

func TestCustomerServiceUpdatePreservesCreatedAt(t *testing.T) {
	now := time.Date(2025, 6, 4, 11, 0, 0, 0, time.UTC)
	created := now.Add(-48 * time.Hour)
	var updated domain.Customer
	repo := &stubCustomerRepo{
		findFn: func(context.Context, string) (domain.Customer, error) {
			return domain.Customer{ID: "cust_1", Name: "Bar do Zé", CreatedAt: created}, nil
		},
		updateFn: func(_ context.Context, customer domain.Customer) error {
			updated = customer
			return nil
		},
	}

	svc, err := NewCustomerService(CustomerServiceDeps{
		Customers: repo,
		Clock:     func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new customer service: %v", err)
	}

	if _, err := svc.UpdateCustomer(context.Background(), CustomerUpdateCommand{
		CustomerID: "cust_1",
		Name:       "Bar do Zé Ltda",
		City:       "Fortaleza",
	}); err != nil {
		t.Fatalf("update customer: %v", err)
	}
	if !updated.CreatedAt.Equal(created) {
		t.Fatalf("expected createdAt preserved, got %v", updated.CreatedAt)
	}
	if !updated.UpdatedAt.Equal(now) {
		t.Fatalf("expected updatedAt from clock, got %v", updated.UpdatedAt)
	}
	if updated.City != "Fortaleza" {
		t.Fatalf("expected city applied, got %q", updated.City)
	}
}

func TestCustomerServiceMapsNotFound(t *testing.T) {
	repo := &stubCustomerRepo{
		findFn: func(context.Context, string) (domain.Customer, error) {
			return domain.Customer{}, &notFoundRepoError{msg: "customers.get: missing"}
		},
	}
	svc, err := NewCustomerService(CustomerServiceDeps{Customers: repo})
	if err != nil {
		t.Fatalf("new customer service: %v", err)
	}
	if _, err := svc.GetCustomer(context.Background(), "cust_missing"); !errors.Is(err, ErrCustomerNotFound) {
		t.Fatalf("expected customer not found, got %v", err)
	}
}
