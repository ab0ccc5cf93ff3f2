package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolsCommandReportsDisabledPools(t *testing.T) {
	cfgPath := writeConfig(t, `
proxy:
  enabled: false
store:
  backend: memory
`)
	captureApp(t)

	out, err := execute(t, nil, "--config", cfgPath, "pools")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "proxy pools are disabled")
}
