package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandHasSubcommands(t *testing.T) {
	root := newRootCommand()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "handle", "migrate", "audit"}, names)
}

func TestReadEvent(t *testing.T) {
	raw, err := readEvent(strings.NewReader(`{"instance_id":"i-1"}`), "-")
	require.NoError(t, err)
	assert.Equal(t, `{"instance_id":"i-1"}`, string(raw))

	path := filepath.Join(t.TempDir(), "event.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"Records":[]}`), 0o600))
	raw, err = readEvent(nil, path)
	require.NoError(t, err)
	assert.Equal(t, `{"Records":[]}`, string(raw))

	_, err = readEvent(nil, filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
