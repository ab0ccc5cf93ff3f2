package app

import (
	"encoding/json"
	"fmt"

	"github.com/xZoluGames/skinfetch/internal/engine"
)

// marketParser decodes the listing payload shared by the page and probe
// endpoints. The target wraps rows in an envelope with a success flag; a
// false flag usually means throttling, so the payload counts as malformed
// and the unit is retried.
type marketParser struct{}

type marketEnvelope struct {
	Success bool         `json:"success"`
	Items   []marketItem `json:"items"`
}

type marketItem struct {
	MarketHashName string  `json:"market_hash_name"`
	Name           string  `json:"name"`
	Price          float64 `json:"price"`
	Quantity       int     `json:"quantity"`
}

func (marketParser) Parse(data []byte) ([]engine.Record, error) {
	var env marketEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode market payload: %w", err)
	}
	if !env.Success {
		return nil, fmt.Errorf("market payload flagged unsuccessful")
	}
	records := make([]engine.Record, 0, len(env.Items))
	for _, item := range env.Items {
		name := item.MarketHashName
		if name == "" {
			name = item.Name
		}
		if name == "" {
			// A row without a name has no merge identity.
			continue
		}
		records = append(records, engine.Record{
			Name:     name,
			Price:    item.Price,
			Quantity: item.Quantity,
		})
	}
	return records, nil
}
