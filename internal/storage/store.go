// Package storage persists the code index next to the workspace: a small
// JSON metadata header with a workspace checksum, and a zstd-compressed JSON
// snapshot of the index. Invalidation is whole-workspace via the checksum.
package storage

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/blake2b"

	"impactmap/internal/config"
	"impactmap/internal/errors"
	"impactmap/internal/index"
	"impactmap/internal/logging"
)

const (
	// FormatVersion is the on-disk index format version. A major mismatch
	// forces a rebuild.
	FormatVersion = 1

	metaFile = "index.meta"
	dataFile = "index.data"
)

// Metadata is the index.meta header
type Metadata struct {
	FormatVersion int    `json:"formatVersion"`
	WorkspacePath string `json:"workspacePath"`
	CreatedAt     int64  `json:"createdAt"`
	UpdatedAt     int64  `json:"updatedAt"`
	FileCount     int    `json:"fileCount"`
	MethodCount   int    `json:"methodCount"`
	Checksum      string `json:"checksum"`
}

// IndexStorage manages the persisted index for one workspace
type IndexStorage struct {
	workspacePath string
	dir           string
	extensions    []string
	ignoreDirs    map[string]bool
	logger        *logging.Logger
}

// NewIndexStorage creates a storage manager. extensions lists the source
// file extensions (without dots) the checksum considers; ignoreDirs names
// directories excluded from the walk.
func NewIndexStorage(workspacePath string, extensions, ignoreDirs []string, logger *logging.Logger) *IndexStorage {
	ignore := make(map[string]bool, len(ignoreDirs))
	for _, d := range ignoreDirs {
		ignore[d] = true
	}
	return &IndexStorage{
		workspacePath: workspacePath,
		dir:           filepath.Join(workspacePath, config.ToolDir),
		extensions:    extensions,
		ignoreDirs:    ignore,
		logger:        logger,
	}
}

// Exists reports whether both index files are present
func (s *IndexStorage) Exists() bool {
	return fileExists(s.metaPath()) && fileExists(s.dataPath())
}

// Save writes index.meta then index.data, each atomically (temp + rename)
func (s *IndexStorage) Save(ci *index.CodeIndex) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return errors.New(errors.IOError, "creating index directory", err)
	}

	checksum, err := s.ComputeChecksum()
	if err != nil {
		return err
	}

	now := time.Now().Unix()
	meta := &Metadata{
		FormatVersion: FormatVersion,
		WorkspacePath: s.workspacePath,
		CreatedAt:     now,
		UpdatedAt:     now,
		FileCount:     ci.FileCount(),
		MethodCount:   ci.MethodCount(),
		Checksum:      checksum,
	}
	if prev, err := s.loadMetadata(); err == nil && prev != nil {
		meta.CreatedAt = prev.CreatedAt
	}

	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return errors.New(errors.SerializationError, "encoding index metadata", err)
	}
	if err := atomicWrite(s.metaPath(), metaJSON); err != nil {
		return errors.New(errors.IOError, "writing index metadata", err)
	}

	data, err := encodeSnapshot(ci.Snapshot())
	if err != nil {
		return err
	}
	if err := atomicWrite(s.dataPath(), data); err != nil {
		return errors.New(errors.IOError, "writing index data", err)
	}

	s.logger.Info("Index saved", map[string]interface{}{
		"methods": meta.MethodCount,
		"files":   meta.FileCount,
		"dir":     s.dir,
	})

	return nil
}

// Load reads and validates the persisted index. Returns (nil, nil) when the
// index is absent, invalid, or unreadable: persisted-index faults degrade to
// "no cache" and never abort the run.
func (s *IndexStorage) Load() (*index.CodeIndex, error) {
	if !s.Exists() {
		return nil, nil
	}

	meta, err := s.loadMetadata()
	if err != nil || meta == nil {
		s.logger.Warn("Index metadata unreadable, rebuilding", map[string]interface{}{})
		return nil, nil
	}

	if reason, valid := s.validateMeta(meta); !valid {
		s.logger.Info("Persisted index invalid, rebuilding", map[string]interface{}{
			"reason": reason,
		})
		return nil, nil
	}

	raw, err := os.ReadFile(s.dataPath())
	if err != nil {
		s.logger.Warn("Index data unreadable, rebuilding", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, nil
	}

	snap, err := decodeSnapshot(raw)
	if err != nil {
		s.logger.Warn("Index data corrupt, rebuilding", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, nil
	}

	s.logger.Info("Index loaded", map[string]interface{}{
		"methods": meta.MethodCount,
	})

	return index.FromSnapshot(snap), nil
}

// Validate recomputes the checksum without loading the data file and reports
// whether the persisted index is still valid, plus a reason when not.
func (s *IndexStorage) Validate() (bool, string, error) {
	if !s.Exists() {
		return false, "no persisted index", nil
	}
	meta, err := s.loadMetadata()
	if err != nil {
		return false, "metadata unreadable", nil
	}
	reason, valid := s.validateMeta(meta)
	return valid, reason, nil
}

func (s *IndexStorage) validateMeta(meta *Metadata) (string, bool) {
	if meta.FormatVersion != FormatVersion {
		return fmt.Sprintf("format version %d != %d", meta.FormatVersion, FormatVersion), false
	}
	if meta.WorkspacePath != s.workspacePath {
		return fmt.Sprintf("workspace path %s != %s", meta.WorkspacePath, s.workspacePath), false
	}
	checksum, err := s.ComputeChecksum()
	if err != nil {
		return "checksum computation failed", false
	}
	if checksum != meta.Checksum {
		return "workspace changed since index build", false
	}
	return "", true
}

// Clear removes both index files. Missing files are not an error.
func (s *IndexStorage) Clear() error {
	for _, path := range []string{s.metaPath(), s.dataPath()} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return errors.New(errors.IOError, "removing "+path, err)
		}
	}
	return nil
}

// Info returns the persisted metadata, or nil when absent
func (s *IndexStorage) Info() (*Metadata, error) {
	if !fileExists(s.metaPath()) {
		return nil, nil
	}
	return s.loadMetadata()
}

// ComputeChecksum digests (relpath, mtime_nanos, size) for every source file
// the indexer would consider, in sorted relpath order.
func (s *IndexStorage) ComputeChecksum() (string, error) {
	type entry struct {
		rel   string
		mtime int64
		size  int64
	}

	exts := make(map[string]bool, len(s.extensions))
	for _, e := range s.extensions {
		exts[strings.ToLower(e)] = true
	}

	var entries []entry
	err := filepath.WalkDir(s.workspacePath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != s.workspacePath && (strings.HasPrefix(name, ".") || s.ignoreDirs[name]) {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
		if !exts[ext] {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.workspacePath, path)
		if err != nil {
			return err
		}
		entries = append(entries, entry{
			rel:   filepath.ToSlash(rel),
			mtime: info.ModTime().UnixNano(),
			size:  info.Size(),
		})
		return nil
	})
	if err != nil {
		return "", errors.New(errors.IOError, "walking workspace for checksum", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].rel < entries[j].rel })

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", errors.New(errors.InternalError, "initializing checksum", err)
	}
	for _, e := range entries {
		fmt.Fprintf(h, "%s|%d|%d\n", e.rel, e.mtime, e.size)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (s *IndexStorage) metaPath() string { return filepath.Join(s.dir, metaFile) }
func (s *IndexStorage) dataPath() string { return filepath.Join(s.dir, dataFile) }

func (s *IndexStorage) loadMetadata() (*Metadata, error) {
	raw, err := os.ReadFile(s.metaPath())
	if err != nil {
		return nil, err
	}
	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func encodeSnapshot(snap *index.Snapshot) ([]byte, error) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, errors.New(errors.SerializationError, "encoding index snapshot", err)
	}

	var buf bytes.Buffer
	w, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, errors.New(errors.SerializationError, "initializing compressor", err)
	}
	if _, err := w.Write(raw); err != nil {
		return nil, errors.New(errors.SerializationError, "compressing index snapshot", err)
	}
	if err := w.Close(); err != nil {
		return nil, errors.New(errors.SerializationError, "finalizing compressed snapshot", err)
	}
	return buf.Bytes(), nil
}

func decodeSnapshot(data []byte) (*index.Snapshot, error) {
	r, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var snap index.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
