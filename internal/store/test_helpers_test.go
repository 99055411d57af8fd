package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/blockdoc/internal/logging"
)

var drivers = []string{DriverCGO, DriverPure}

// pngBytes is a PNG signature followed by the start of an IHDR chunk.
var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01")

// createTestStore opens a fresh document store with its cache under a
// temporary directory.
func createTestStore(t *testing.T, driver string) *Store {
	t.Helper()
	return openTestStore(t, driver, filepath.Join(t.TempDir(), "test.docv"), t.TempDir())
}

func openTestStore(t *testing.T, driver, path, cacheBase string) *Store {
	t.Helper()
	s, err := Open(path, Options{
		Driver:    driver,
		CacheBase: cacheBase,
		Logger:    logging.Discard(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// forEachDriver runs fn once per supported SQLite driver.
func forEachDriver(t *testing.T, fn func(t *testing.T, driver string)) {
	for _, driver := range drivers {
		t.Run(driver, func(t *testing.T) {
			fn(t, driver)
		})
	}
}
