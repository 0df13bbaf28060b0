package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/gelomax/api/internal/domain"
	"github.com/gelomax/api/internal/repositories"
)

const (
	eventCustomerCreated = "customers.created"
	eventCustomerUpdated = "customers.updated"
	eventCustomerDeleted = "customers.deleted"

	maxCustomerFieldLength = 500
)

var (
	// ErrCustomerInvalidInput signals the caller provided invalid arguments.
	ErrCustomerInvalidInput = errors.New("customers: invalid input")
	// ErrCustomerNotFound indicates the customer could not be located.
	ErrCustomerNotFound = errors.New("customers: customer not found")
	// ErrCustomerUnavailable indicates a transient persistence outage.
	ErrCustomerUnavailable = errors.New("customers: temporarily unavailable")
)

// CustomerServiceDeps bundles the collaborators required to construct a customer service.
type CustomerServiceDeps struct {
	Customers   repositories.CustomerRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type customerService struct {
	repo     repositories.CustomerRepository
	sanitize *bluemonday.Policy
	clock    func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

// NewCustomerService wires dependencies into a concrete CustomerService implementation.
func NewCustomerService(deps CustomerServiceDeps) (CustomerService, error) {
	if deps.Customers == nil {
		return nil, errors.New("customer service: customer repository is required")
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

	return &customerService{
		repo:     deps.Customers,
		sanitize: bluemonday.StrictPolicy(),
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *customerService) CreateCustomer(ctx context.Context, cmd CustomerCreateCommand) (domain.Customer, error) {
	fields, err := s.cleanFields(cmd.Name, cmd.Document, cmd.Phone, cmd.Email, cmd.Address, cmd.City, cmd.Notes)
	if err != nil {
		return domain.Customer{}, err
	}

	now := s.clock()
	customer := domain.Customer{
		ID:        s.newID(),
		Name:      fields.name,
		Document:  fields.document,
		Phone:     fields.phone,
		Email:     fields.email,
		Address:   fields.address,
		City:      fields.city,
		Notes:     fields.notes,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Insert(ctx, customer); err != nil {
		return domain.Customer{}, s.mapError(err)
	}

	s.logger(ctx, eventCustomerCreated, map[string]any{
		"customer_id": customer.ID,
	})
	return customer, nil
}

func (s *customerService) UpdateCustomer(ctx context.Context, cmd CustomerUpdateCommand) (domain.Customer, error) {
	customerID := strings.TrimSpace(cmd.CustomerID)
	if customerID == "" {
		return domain.Customer{}, fmt.Errorf("%w: customer id is required", ErrCustomerInvalidInput)
	}
	fields, err := s.cleanFields(cmd.Name, cmd.Document, cmd.Phone, cmd.Email, cmd.Address, cmd.City, cmd.Notes)
	if err != nil {
		return domain.Customer{}, err
	}

	existing, err := s.repo.FindByID(ctx, customerID)
	if err != nil {
		return domain.Customer{}, s.mapError(err)
	}

	updated := existing
	updated.Name = fields.name
	updated.Document = fields.document
	updated.Phone = fields.phone
	updated.Email = fields.email
	updated.Address = fields.address
	updated.City = fields.city
	updated.Notes = fields.notes
	updated.UpdatedAt = s.clock()

	if err := s.repo.Update(ctx, updated); err != nil {
		return domain.Customer{}, s.mapError(err)
	}

	s.logger(ctx, eventCustomerUpdated, map[string]any{
		"customer_id": updated.ID,
	})
	return updated, nil
}

func (s *customerService) DeleteCustomer(ctx context.Context, customerID string) error {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return fmt.Errorf("%w: customer id is required", ErrCustomerInvalidInput)
	}
	if err := s.repo.Delete(ctx, customerID); err != nil {
		return s.mapError(err)
	}
	s.logger(ctx, eventCustomerDeleted, map[string]any{
		"customer_id": customerID,
	})
	return nil
}

func (s *customerService) GetCustomer(ctx context.Context, customerID string) (domain.Customer, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return domain.Customer{}, fmt.Errorf("%w: customer id is required", ErrCustomerInvalidInput)
	}
	customer, err := s.repo.FindByID(ctx, customerID)
	if err != nil {
		return domain.Customer{}, s.mapError(err)
	}
	return customer, nil
}

func (s *customerService) ListCustomers(ctx context.Context, query CustomerListQuery) (domain.CursorPage[domain.Customer], error) {
	page, err := s.repo.List(ctx, repositories.CustomerListFilter{
		Search: strings.TrimSpace(query.Search),
		Pagination: domain.Pagination{
			PageSize:  query.PageSize,
			PageToken: strings.TrimSpace(query.PageToken),
		},
	})
	if err != nil {
		return domain.CursorPage[domain.Customer]{}, s.mapError(err)
	}
	return page, nil
}

type customerFields struct {
	name     string
	document string
	phone    string
	email    string
	address  string
	city     string
	notes    string
}

func (s *customerService) cleanFields(name, document, phone, email, address, city, notes string) (customerFields, error) {
	fields := customerFields{
		name:     s.cleanField(name),
		document: s.cleanField(document),
		phone:    s.cleanField(phone),
		email:    s.cleanField(email),
		address:  s.cleanField(address),
		city:     s.cleanField(city),
		notes:    s.cleanField(notes),
	}
	if fields.name == "" {
		return customerFields{}, fmt.Errorf("%w: name is required", ErrCustomerInvalidInput)
	}
	return fields, nil
}

func (s *customerService) cleanField(value string) string {
	cleaned := strings.TrimSpace(s.sanitize.Sanitize(value))
	if len(cleaned) > maxCustomerFieldLength {
		cleaned = cleaned[:maxCustomerFieldLength]
	}
	return cleaned
}

func (s *customerService) mapError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCustomerNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrCustomerUnavailable, err)
		}
	}
	return err
}
