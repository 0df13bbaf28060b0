package storage

import (
	"fmt"
	"strings"
	"time"
)

// DocumentKind identifies the type of fiscal document being archived.
type DocumentKind string

const (
	DocumentXML DocumentKind = "xml"
	DocumentPDF DocumentKind = "pdf"
)

// InvoicePathParams provide the identifiers needed to compose archive object keys.
type InvoicePathParams struct {
	Unit          string
	InvoiceNumber string
	EmittedAt     time.Time
	Kind          DocumentKind
}

// BuildInvoicePath resolves the archive object path for a fiscal document.
// Documents are grouped by unit and emission month so retention sweeps can
// operate on whole prefixes.
func BuildInvoicePath(params InvoicePathParams) (string, error) {
	unit, err := validateSegment("unit", params.Unit)
	if err != nil {
		return "", err
	}
	number, err := validateSegment("invoiceNumber", params.InvoiceNumber)
	if err != nil {
		return "", err
	}
	if params.EmittedAt.IsZero() {
		return "", fmt.Errorf("storage: emittedAt is required")
	}

	var ext string
	switch params.Kind {
	case DocumentXML:
		ext = "xml"
	case DocumentPDF:
		ext = "pdf"
	default:
		return "", fmt.Errorf("storage: unsupported document kind %q", params.Kind)
	}

	emitted := params.EmittedAt.UTC()
	return fmt.Sprintf("invoices/%s/%04d/%02d/%s.%s",
		strings.ToLower(unit), emitted.Year(), int(emitted.Month()), number, ext), nil
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}
