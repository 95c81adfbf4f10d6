package custody

import (
	"context"
	"fmt"
	"strings"
)

// =============================================================================
// DOCUMENT NUMBERING - Sequential references for undocumented payments
// =============================================================================

// Document prefixes for vendor-payment categories that carry no external
// document. Counters are persisted per prefix and globally monotonic, so
// references never repeat across sessions.
const (
	PrefixUnauthorized = "DNA"
	PrefixReturn       = "DEV"
	PrefixReception    = "REC"
)

// autoNumberPrefixes maps the document types that get a system-assigned
// reference to their prefix. Invoices and sales notes carry their own
// external numbers.
var autoNumberPrefixes = map[DocumentType]string{
	DocUnauthorized: PrefixUnauthorized,
	DocReturn:       PrefixReturn,
	DocReception:    PrefixReception,
}

// AutoNumbered reports whether the document type gets a system-assigned
// sequential reference.
func AutoNumbered(dt DocumentType) bool {
	_, ok := autoNumberPrefixes[dt]
	return ok
}

// nextDocumentReference assigns the next reference for an auto-numbered
// document type, formatted as <PREFIX>-<4-digit zero-padded counter>.
func nextDocumentReference(ctx context.Context, store Store, dt DocumentType) (string, error) {
	prefix, ok := autoNumberPrefixes[dt]
	if !ok {
		return "", &ValidationError{Field: "document_type", Message: fmt.Sprintf("%s is not auto-numbered", dt)}
	}
	n, err := store.NextDocumentNumber(ctx, prefix)
	if err != nil {
		return "", storeErr(err)
	}
	return fmt.Sprintf("%s-%04d", prefix, n), nil
}

// PaymentConcept builds the stored concept string for a vendor payment:
// "<document type> <document number> - <vendor>".
func PaymentConcept(dt DocumentType, number, vendor string) string {
	return strings.TrimSpace(fmt.Sprintf("%s %s - %s", dt, strings.TrimSpace(number), strings.TrimSpace(vendor)))
}

// NormalizeConcept produces the stable group-by key used for vendor
// payment reporting: trimmed, case-folded, inner whitespace collapsed.
func NormalizeConcept(concept string) string {
	return strings.ToLower(strings.Join(strings.Fields(concept), " "))
}
