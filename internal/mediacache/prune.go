package mediacache

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Limits bounds the total cache under a base directory. Zero disables a limit.
type Limits struct {
	MaxBytes int64
	MaxFiles int
	MaxAge   time.Duration
}

// PruneStats reports what Prune removed and what remains.
type PruneStats struct {
	Scanned      int   `json:"scanned"`
	Removed      int   `json:"removed"`
	RemovedBytes int64 `json:"removed_bytes"`
	KeptFiles    int   `json:"kept_files"`
	KeptBytes    int64 `json:"kept_bytes"`
}

type cachedFile struct {
	path    string
	size    int64
	modTime time.Time
}

// Prune enforces limits over every document cache under base. Files older
// than MaxAge go first, then the oldest files until both MaxFiles and
// MaxBytes hold. Directories left empty are removed.
//
// Removing a file is always safe: the next load materializes it again.
func Prune(base string, limits Limits, now time.Time) (PruneStats, error) {
	var stats PruneStats
	root := CacheDir(base)

	var files []cachedFile
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == root {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, cachedFile{path: path, size: info.Size(), modTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return stats, err
	}
	stats.Scanned = len(files)

	// Oldest first; ties broken by path for a stable order.
	sort.Slice(files, func(i, j int) bool {
		if files[i].modTime.Equal(files[j].modTime) {
			return files[i].path < files[j].path
		}
		return files[i].modTime.Before(files[j].modTime)
	})

	var total int64
	for _, f := range files {
		total += f.size
	}
	count := len(files)

	remove := func(f cachedFile) error {
		if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
			return err
		}
		stats.Removed++
		stats.RemovedBytes += f.size
		total -= f.size
		count--
		return nil
	}

	kept := files[:0]
	for _, f := range files {
		if limits.MaxAge > 0 && now.Sub(f.modTime) > limits.MaxAge {
			if err := remove(f); err != nil {
				return stats, err
			}
			continue
		}
		kept = append(kept, f)
	}

	for _, f := range kept {
		overFiles := limits.MaxFiles > 0 && count > limits.MaxFiles
		overBytes := limits.MaxBytes > 0 && total > limits.MaxBytes
		if !overFiles && !overBytes {
			break
		}
		if err := remove(f); err != nil {
			return stats, err
		}
	}

	stats.KeptFiles = count
	stats.KeptBytes = total

	removeEmptyDirs(root)
	return stats, nil
}

// removeEmptyDirs deletes empty directories below root, deepest first.
func removeEmptyDirs(root string) {
	var dirs []string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err == nil && d.IsDir() && path != root {
			dirs = append(dirs, path)
		}
		return nil
	})
	for i := len(dirs) - 1; i >= 0; i-- {
		// os.Remove fails on non-empty directories, which is what we want.
		_ = os.Remove(dirs[i])
	}
}
