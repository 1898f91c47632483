package receiving

import (
	"testing"

	"github.com/erp/receiving/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveBarcode(t *testing.T) {
	a := newTestLine("Apple Juice", "AJ-1", "4006381333931", 10, 0, 2)
	b := newTestLine("Orange Juice", "OJ-1", "4006381333948", 10, 0, 2)
	dup := newTestLine("Apple Juice 6-pack", "AJ-6", "4006381333931", 10, 0, 11)
	noCode := newTestLine("Loose bolts", "BOLT", "", 10, 0, 1)
	detail := newTestDetail(a, b, dup, noCode)

	t.Run("exact match", func(t *testing.T) {
		line, err := ResolveBarcode(detail, "4006381333948")
		require.NoError(t, err)
		assert.Equal(t, b.ID, line.ID)
	})

	t.Run("first match wins on duplicates", func(t *testing.T) {
		line, err := ResolveBarcode(detail, "4006381333931")
		require.NoError(t, err)
		assert.Equal(t, a.ID, line.ID)
	})

	t.Run("no partial or normalized match", func(t *testing.T) {
		for _, code := range []string{"400638133393", " 4006381333931", "BOLT", ""} {
			_, err := ResolveBarcode(detail, code)
			assert.Equal(t, CodeBarcodeNotFound, shared.ErrorCode(err), code)
			assert.Equal(t, KindNotFound, KindOf(err))
		}
	})

	t.Run("nil detail", func(t *testing.T) {
		_, err := ResolveBarcode(nil, "4006381333931")
		assert.Equal(t, CodeBarcodeNotFound, shared.ErrorCode(err))
	})
}

func TestResolveBarcode_CaseSensitive(t *testing.T) {
	detail := newTestDetail(newTestLine("Cable", "CB-1", "abc-123", 1, 0, 1))

	_, err := ResolveBarcode(detail, "ABC-123")
	assert.Error(t, err)
}

func TestSearchLines(t *testing.T) {
	a := newTestLine("Apple Juice", "AJ-1", "1", 10, 0, 2)
	b := newTestLine("Orange Juice", "OJ-1", "2", 10, 0, 2)
	c := newTestLine("Éclair Mix", "SIGN-9", "", 10, 0, 2)
	detail := newTestDetail(a, b, c)

	tests := []struct {
		query    string
		expected []string
	}{
		{"", []string{"Apple Juice", "Orange Juice", "Éclair Mix"}},
		{"   ", []string{"Apple Juice", "Orange Juice", "Éclair Mix"}},
		{"juice", []string{"Apple Juice", "Orange Juice"}},
		{"oj-", []string{"Orange Juice"}},
		{"éCLAIR", []string{"Éclair Mix"}},
		{"milk", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			lines := SearchLines(detail, tt.query)
			names := make([]string, 0, len(lines))
			for _, l := range lines {
				names = append(names, l.ProductName)
			}
			assert.Equal(t, tt.expected, names)
		})
	}
}
