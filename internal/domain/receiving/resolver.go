package receiving

import (
	"fmt"
	"strings"

	"github.com/erp/receiving/internal/domain/shared"
	"golang.org/x/text/cases"
)

// ResolveBarcode returns the first line of the order whose barcode equals code
// exactly. Matching is case-sensitive and the input is not normalized.
func ResolveBarcode(detail *OrderDetail, code string) (*OrderLine, error) {
	if detail != nil && code != "" {
		for i := range detail.Lines {
			line := &detail.Lines[i]
			if line.Barcode != nil && *line.Barcode == code {
				return line, nil
			}
		}
	}
	return nil, shared.NewDomainError(CodeBarcodeNotFound, fmt.Sprintf("Barcode %q does not match any line of this order", code))
}

// SearchLines returns the lines whose product name or SKU contains query,
// ignoring case. A blank query returns every line.
func SearchLines(detail *OrderDetail, query string) []OrderLine {
	if detail == nil {
		return []OrderLine{}
	}
	query = strings.TrimSpace(query)
	if query == "" {
		out := make([]OrderLine, len(detail.Lines))
		copy(out, detail.Lines)
		return out
	}

	fold := cases.Fold()
	needle := fold.String(query)
	out := make([]OrderLine, 0)
	for _, line := range detail.Lines {
		if strings.Contains(fold.String(line.ProductName), needle) ||
			strings.Contains(fold.String(line.SKU), needle) {
			out = append(out, line)
		}
	}
	return out
}
