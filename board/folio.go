package board

import (
	"strconv"
	"strings"
)

// folioSentinel sorts every non-numeric or missing folio after all real ones.
const folioSentinel = int64(1) << 62

// Folio is a display code that is usually numeric but stored as text in the
// ledger. Parsed once so sorting and normalization agree everywhere.
type Folio struct {
	Numeric bool
	Number  int64
	Text    string
}

// ParseFolio attempts an integer parse of the ledger folio; on failure the
// original text is kept verbatim.
func ParseFolio(raw string) Folio {
	trimmed := strings.TrimSpace(raw)
	if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return Folio{Numeric: true, Number: n, Text: trimmed}
	}
	return Folio{Text: raw}
}

// SortKey orders folios numerically ascending with non-numeric ones last.
func (f Folio) SortKey() int64 {
	if f.Numeric {
		return f.Number
	}
	return folioSentinel
}

// String is the normalized display form: the parsed integer when numeric
// (dropping padding), otherwise the original text.
func (f Folio) String() string {
	if f.Numeric {
		return strconv.FormatInt(f.Number, 10)
	}
	return f.Text
}
