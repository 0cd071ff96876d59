//go:build cgo

package commands

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunDemo(t *testing.T) {
	fs := afero.NewMemMapFs()

	out, err := execute(t, fs, "run", `orders | where Status == "open" | include Lines | orderby ID`)
	require.NoError(t, err)
	assert.Contains(t, out, "250")
	assert.Contains(t, out, "[2]")
	assert.Contains(t, out, "2 row(s)")

	out, err = execute(t, fs, "run", "--demo", "customers | single ID == $0", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Linus")
	assert.Contains(t, out, "NULL")

	out, err = execute(t, fs, "run", "orders | count")
	require.NoError(t, err)
	assert.Contains(t, out, "4")

	out, err = execute(t, fs, "run", `orders | where Status == "shipped" | delete`)
	require.NoError(t, err)
	assert.Contains(t, out, "2 row(s) affected")

	_, err = execute(t, fs, "run", "orders | single")
	assert.ErrorContains(t, err, "more than one")
}
