package cmd

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCommandFetchesAndMerges(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"success": true, "items": [
			{"market_hash_name": "AK-47 | Redline", "price": 14.5, "quantity": 120},
			{"market_hash_name": "AWP | Asiimov", "price": 90.25, "quantity": 3}
		]}`)
	}))
	defer ts.Close()

	cfgPath := writeConfig(t, fmt.Sprintf(`
proxy:
  enabled: false
store:
  backend: memory
target:
  page_url: "%s/items?start={offset}&count={count}"
  total_items: 150
  page_size: 100
profiles:
  bulk:
    request_delay_ms: 1
    timeout_seconds: 5
`, ts.URL))
	getApp := captureApp(t)

	_, err := execute(t, nil, "--config", cfgPath, "run")
	require.NoError(t, err)

	// Two pages carried the same two items; the merge keys them by name.
	a := getApp()
	require.NotNil(t, a)
	records, err := a.Merge().Load(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "AK-47 | Redline", records[0].Name)
	assert.InDelta(t, 14.5, records[0].Price, 1e-9)
	assert.Equal(t, "AWP | Asiimov", records[1].Name)
	assert.InDelta(t, 90.25, records[1].Price, 1e-9)
}

func TestRunCommandFailsWithoutTarget(t *testing.T) {
	cfgPath := writeConfig(t, `
proxy:
  enabled: false
store:
  backend: memory
`)
	captureApp(t)

	_, err := execute(t, nil, "--config", cfgPath, "run")
	require.ErrorContains(t, err, "build units")
}
