package configutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Name    string `json:"name"`
	Port    int    `json:"port"`
	Nested  nested `json:"nested"`
	Require string `json:"require"`
}

type nested struct {
	Value string `json:"value"`
}

func (c testConfig) Validate() error {
	if c.Require == "" {
		return errors.New("missing required field: require")
	}
	return nil
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func TestReadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json5")
	writeFile(t, path, `{
		// json5 comments are allowed
		name: "tracker",
		port: 9222,
		nested: { value: "a" },
	}`)

	config, err := ReadConfig[testConfig](path)
	require.NoError(t, err)
	require.Equal(t, "tracker", config.Name)
	require.Equal(t, 9222, config.Port)
	require.Equal(t, "a", config.Nested.Value)
}

func TestReadConfigLocalOverride(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.json5"), `{name: "tracker", port: 9222}`)
	writeFile(t, filepath.Join(dir, "config.local.json5"), `{port: 8080}`)

	config, err := ReadConfig[testConfig](filepath.Join(dir, "config.json5"))
	require.NoError(t, err)
	require.Equal(t, "tracker", config.Name)
	require.Equal(t, 8080, config.Port)
}

func TestReadConfigMissing(t *testing.T) {
	dir := t.TempDir()
	_, err := ReadConfig[testConfig](filepath.Join(dir, "config.json5"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadValidated(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json5")
	writeFile(t, path, `{name: "tracker"}`)

	_, err := ReadValidated[testConfig](path)
	require.ErrorContains(t, err, "missing required field")

	writeFile(t, path, `{name: "tracker", require: "ok"}`)
	config, err := ReadValidated[testConfig](path)
	require.NoError(t, err)
	require.Equal(t, "ok", config.Require)
}
