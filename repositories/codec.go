package repositories

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/LovationAdmin/aldia-api/models"
	"github.com/LovationAdmin/aldia-api/utils"
)

// encodeResult serialises a stored query result, sealing its raw page text.
// A nil result encodes to nil.
func encodeResult(r *models.QueryResult, sealer *utils.Sealer) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	stored := *r
	stored.Screenshot = ""
	sealed, err := sealer.Seal(stored.RawText)
	if err != nil {
		return nil, fmt.Errorf("failed to seal raw text: %w", err)
	}
	stored.RawText = sealed
	return json.Marshal(stored)
}

func decodeResult(data []byte, sealer *utils.Sealer) (*models.QueryResult, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var r models.QueryResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode query result: %w", err)
	}
	raw, err := sealer.Open(r.RawText)
	if err != nil {
		return nil, fmt.Errorf("failed to open raw text: %w", err)
	}
	r.RawText = raw
	return &r, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func decimalPtr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}
