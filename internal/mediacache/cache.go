package mediacache

import (
	"encoding/base64"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/blockdoc/internal/block"
)

const (
	// Namespace is the application directory under the cache base.
	Namespace = "blockdoc"

	storeDir  = "sqlite"
	renderDir = "pyimage"

	fallbackImageExt = ".img"
)

// DefaultBase returns the user cache directory ($XDG_CACHE_HOME or the
// platform equivalent).
func DefaultBase() (string, error) {
	return os.UserCacheDir()
}

// CacheDir returns the directory holding every document cache under base.
func CacheDir(base string) string {
	return filepath.Join(base, Namespace, storeDir)
}

// RootFor returns the cache root of the document at docPath.
//
// The path is made absolute and NFC-normalized before hashing, so relative
// invocations and decomposed file names (as reported by some filesystems)
// resolve to the same root.
func RootFor(base, docPath string) string {
	key := docPath
	if abs, err := filepath.Abs(docPath); err == nil {
		key = abs
	}
	key = norm.NFC.String(filepath.ToSlash(filepath.Clean(key)))
	return filepath.Join(CacheDir(base), block.ShortDigest(key))
}

// Cache materializes media for one document.
type Cache struct {
	root   string
	logger *slog.Logger
}

// New creates a Cache rooted at root. The directory is created lazily.
func New(root string, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{root: root, logger: logger}
}

// ForDocument creates the Cache of the document at docPath under base.
func ForDocument(base, docPath string, logger *slog.Logger) *Cache {
	return New(RootFor(base, docPath), logger)
}

// Root returns the document's cache directory.
func (c *Cache) Root() string {
	return c.root
}

// ImagePath returns where MaterializeImage places an image row.
func (c *Cache) ImagePath(id int64, mime string) string {
	return filepath.Join(c.root, "image-"+strconv.FormatInt(id, 10)+ExtensionForMIME(mime))
}

// RenderPath returns where MaterializeRender places a render payload.
// The digest is taken over hash when set, otherwise over the payload itself.
func (c *Cache) RenderPath(hash, data string, format block.Format) string {
	source := hash
	if source == "" {
		source = data
	}
	name := "pyimage-" + block.ShortDigest(source) + block.ParseFormat(string(format)).Extension()
	return filepath.Join(c.root, renderDir, name)
}

// MaterializeImage writes an image row's bytes and returns the file path,
// or "" when the file could not be written.
func (c *Cache) MaterializeImage(id int64, mime string, data []byte) string {
	if c == nil {
		return ""
	}
	return c.materialize(c.ImagePath(id, mime), data)
}

// MaterializeRender writes a render payload and returns the file path, or ""
// when there is no payload or it could not be written. SVG payloads are
// written as text, anything else is base64-decoded first.
func (c *Cache) MaterializeRender(hash, data string, format block.Format) string {
	if c == nil || data == "" {
		return ""
	}
	target := c.RenderPath(hash, data, format)
	if fileExists(target) {
		return target
	}

	payload := []byte(data)
	if block.ParseFormat(string(format)) != block.FormatSVG {
		decoded, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			c.logger.Warn("render payload is not valid base64", "path", target, "error", err)
			return ""
		}
		payload = decoded
	}
	return c.materialize(target, payload)
}

func (c *Cache) materialize(target string, payload []byte) string {
	if fileExists(target) {
		return target
	}
	if err := writeOnce(target, payload); err != nil {
		c.logger.Debug("materialize failed", "path", target, "error", err)
		return ""
	}
	return target
}

// writeOnce publishes payload at target unless target already exists.
func writeOnce(target string, payload []byte) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(target)+"-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Link(tmpName, target); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil
		}
		return err
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// ExtensionForMIME returns the preferred extension for a MIME type, or
// ".img" when the type is unknown.
func ExtensionForMIME(mime string) string {
	if mime == "" {
		return fallbackImageExt
	}
	if m := mimetype.Lookup(mime); m != nil && m.Extension() != "" {
		return m.Extension()
	}
	return fallbackImageExt
}
