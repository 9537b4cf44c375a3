// SPDX-License-Identifier: MIT

// Package storage enforces each camera's on-disk quota: when a storage root
// exceeds its configured maximum size, the oldest files are deleted until it
// doesn't, and any directory left empty by that deletion is pruned. This
// lets the recorder write in an endless loop without ever managing
// retention itself.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// fileEntry is one file discovered under a storage root.
type fileEntry struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// ForceCreateDirs creates path (and any missing parents) if it doesn't
// already exist, logging nothing on success — mirrors
// StorageManager.force_create_path.
func ForceCreateDirs(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(path, 0750); err != nil {
		return fmt.Errorf("storage: create %s: %w", path, err)
	}
	return nil
}

// walkFiles recursively collects every regular file under root.
func walkFiles(root string) ([]fileEntry, error) {
	var out []fileEntry
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		out = append(out, fileEntry{Path: path, Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return out, nil
}

// folderSize returns the total size of every regular file under root.
func folderSize(root string) (int64, []fileEntry, error) {
	files, err := walkFiles(root)
	if err != nil {
		return 0, nil, err
	}
	var total int64
	for _, f := range files {
		total += f.Size
	}
	return total, files, nil
}

// EnforceQuota deletes the oldest files under root until its total size is
// at or below maxBytes, then prunes any directory left empty. Files are
// ranked newest-first by modification time (mtime is the only reliable
// creation-order proxy on Linux) and deleted from the point the running
// cumulative size first exceeds maxBytes onward, so the newest data is
// always retained.
func EnforceQuota(root string, maxBytes int64) ([]string, error) {
	total, files, err := folderSize(root)
	if err != nil {
		return nil, fmt.Errorf("storage: measure %s: %w", root, err)
	}
	if total <= maxBytes {
		return nil, nil
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].ModTime.After(files[j].ModTime)
	})

	var deleted []string
	var cumsum int64
	for _, f := range files {
		cumsum += f.Size
		if cumsum > maxBytes {
			if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
				continue
			}
			deleted = append(deleted, f.Path)
		}
	}

	if err := pruneEmptyDirs(root); err != nil {
		return deleted, err
	}
	return deleted, nil
}

// pruneEmptyDirs removes directories under (and including) root that
// contain no files or subdirectories, deepest first, mirroring
// os.walk(topdown=False) + os.rmdir in StorageManager.cleanup.
func pruneEmptyDirs(root string) error {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		if len(entries) == 0 {
			_ = os.Remove(dir)
		}
	}
	return nil
}

// ListFiles returns every file matching glob, oldest-first by modification
// time — mirrors StorageManager.get_file_list.
func ListFiles(glob string) ([]string, error) {
	matches, err := filepath.Glob(glob)
	if err != nil {
		return nil, fmt.Errorf("storage: glob %s: %w", glob, err)
	}

	type entry struct {
		path    string
		modTime time.Time
	}
	entries := make([]entry, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		entries = append(entries, entry{path: m, modTime: info.ModTime()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].modTime.Before(entries[j].modTime) })

	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.path
	}
	return out, nil
}

// FirstFile returns the oldest file matching glob whose modification time is
// not before minMtime, or "" if none match — mirrors
// StorageManager.get_first_file(glob[, min_mtime]). A zero minMtime applies
// no floor. The floor exists so a caller (the watcher's stale-frame sweep)
// can refuse to resurrect frames older than the object-detector timeout,
// avoiding a livelock with the detector's own claim-and-cleanup race.
func FirstFile(glob string, minMtime time.Time) (string, error) {
	files, err := ListFiles(glob)
	if err != nil {
		return "", err
	}
	for _, f := range files {
		if minMtime.IsZero() {
			return f, nil
		}
		info, err := os.Stat(f)
		if err != nil || info.ModTime().Before(minMtime) {
			continue
		}
		return f, nil
	}
	return "", nil
}
