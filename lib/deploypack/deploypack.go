// Copyright 2026 The Cadre Authors
// SPDX-License-Identifier: Apache-2.0

// Package deploypack builds the deployable archive for an agent: a zip
// of the deployment path plus a BLAKE3 digest identifying the build.
// The digest is what decides whether a redeploy is needed; the upload
// pipeline itself lives outside cadre.
//
// Archives are deterministic. Entries are walked in sorted order,
// timestamps are omitted, and permissions are normalized to two modes
// (regular and executable), so the same tree always produces the same
// bytes and therefore the same digest.
package deploypack

import (
	"archive/zip"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/zeebo/blake3"
)

// MetaDir is the agent-local state directory under the deploy path.
// It holds cadre's own bookkeeping (the built archive, the synced env
// file) and is always excluded from packages.
const MetaDir = ".cadre"

// ArchiveName is the package file written under MetaDir.
const ArchiveName = "package.zip"

// Package describes one built archive.
type Package struct {
	// Path is where the archive was written.
	Path string `json:"path"`

	// Digest is the hex BLAKE3 digest of the archive bytes.
	Digest string `json:"digest"`

	// Files is the number of entries in the archive.
	Files int `json:"files"`

	// Bytes is the archive size on disk.
	Bytes int64 `json:"bytes"`
}

// Build zips the tree under deployPath into
// <deployPath>/.cadre/package.zip and returns the package descriptor.
// Symlinks and other irregular files are skipped; agent deployments
// are plain file trees.
func Build(deployPath string) (*Package, error) {
	info, err := os.Stat(deployPath)
	if err != nil {
		return nil, fmt.Errorf("deploy path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("deploy path %s is not a directory", deployPath)
	}

	files, err := collectFiles(deployPath)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("deploy path %s contains no files to package", deployPath)
	}

	metaPath := filepath.Join(deployPath, MetaDir)
	if err := os.MkdirAll(metaPath, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", metaPath, err)
	}
	archivePath := filepath.Join(metaPath, ArchiveName)

	if err := writeArchive(deployPath, archivePath, files); err != nil {
		return nil, err
	}

	digest, err := Digest(archivePath)
	if err != nil {
		return nil, err
	}
	stat, err := os.Stat(archivePath)
	if err != nil {
		return nil, fmt.Errorf("stat archive: %w", err)
	}

	return &Package{
		Path:   archivePath,
		Digest: digest,
		Files:  len(files),
		Bytes:  stat.Size(),
	}, nil
}

// Digest computes the hex BLAKE3 digest of the file at path, streamed
// so memory stays constant regardless of archive size.
func Digest(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer file.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// collectFiles returns the slash-separated relative paths of every
// regular file under root, sorted, with the MetaDir subtree excluded.
func collectFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		relative, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		relative = filepath.ToSlash(relative)

		if entry.IsDir() {
			if relative == MetaDir || strings.HasPrefix(relative, MetaDir+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		files = append(files, relative)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}

// writeArchive writes the archive to a temporary file in the target
// directory and renames it into place, so a failed build never leaves
// a truncated package behind.
func writeArchive(root, archivePath string, files []string) (err error) {
	temp, err := os.CreateTemp(filepath.Dir(archivePath), ArchiveName+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating archive temp file: %w", err)
	}
	defer func() {
		if err != nil {
			temp.Close()
			os.Remove(temp.Name())
		}
	}()

	writer := zip.NewWriter(temp)
	writer.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestSpeed)
	})

	for _, relative := range files {
		if err := addEntry(writer, root, relative); err != nil {
			return err
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalizing archive: %w", err)
	}
	if err := temp.Sync(); err != nil {
		return fmt.Errorf("syncing archive: %w", err)
	}
	if err := temp.Close(); err != nil {
		return fmt.Errorf("closing archive: %w", err)
	}
	if err := os.Rename(temp.Name(), archivePath); err != nil {
		return fmt.Errorf("moving archive into place: %w", err)
	}
	return nil
}

func addEntry(writer *zip.Writer, root, relative string) error {
	source := filepath.Join(root, filepath.FromSlash(relative))
	info, err := os.Stat(source)
	if err != nil {
		return fmt.Errorf("stat %s: %w", relative, err)
	}

	header := &zip.FileHeader{
		Name:   relative,
		Method: zip.Deflate,
	}
	// Two modes only: anything with an owner-execute bit packs as
	// executable. Finer-grained permissions do not survive hosting
	// platforms anyway and would break digest determinism across
	// checkouts with different umasks.
	if info.Mode()&0o100 != 0 {
		header.SetMode(0o755)
	} else {
		header.SetMode(0o644)
	}

	entry, err := writer.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("adding %s: %w", relative, err)
	}

	file, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("opening %s: %w", relative, err)
	}
	defer file.Close()

	if _, err := io.Copy(entry, file); err != nil {
		return fmt.Errorf("compressing %s: %w", relative, err)
	}
	return nil
}
