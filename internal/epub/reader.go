package epub

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// MimetypeEPUB is the content of the mimetype file of an EPUB container.
const MimetypeEPUB = "application/epub+zip"

// Extract unpacks the EPUB archive at archivePath into dest. Entries that
// would escape dest are skipped. A corrupt entry aborts the extraction with
// ErrCannotExtractFile.
func Extract(ctx context.Context, archivePath, dest string, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("epub")

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return &PathError{Op: "open", Path: archivePath, Err: errors.Join(ErrCannotOpenFile, err)}
	}
	defer zr.Close()

	if err := validateMimetype(zr.File); err != nil {
		log.Warn("Archive is not a strict EPUB container", zap.String("file", archivePath), zap.Error(err))
	}

	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := normalizePath(f.Name)
		if !isSafePath(name) {
			log.Warn("Skipping unsafe archive entry", zap.String("entry", f.Name))
			continue
		}
		if err := extractFile(f, filepath.Join(dest, filepath.FromSlash(name))); err != nil {
			return &PathError{Op: "extract", Path: f.Name, Err: errors.Join(ErrCannotExtractFile, err)}
		}
	}
	log.Debug("Extracted archive", zap.String("file", archivePath), zap.Int("entries", len(zr.File)))
	return nil
}

func extractFile(f *zip.File, target string) error {
	if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
		return os.MkdirAll(target, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(target)
	if err != nil {
		return err
	}
	// zip reports checksum mismatches from the final Read.
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// validateMimetype checks that the mimetype entry exists, is stored
// uncompressed and names the EPUB media type.
func validateMimetype(files []*zip.File) error {
	for _, f := range files {
		if normalizePath(f.Name) != "mimetype" {
			continue
		}
		if f.Method != zip.Store {
			return ErrMimetypeCompressed
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("failed to read mimetype: %w", err)
		}
		defer rc.Close()
		content, err := io.ReadAll(rc)
		if err != nil {
			return fmt.Errorf("failed to read mimetype: %w", err)
		}
		if strings.TrimSpace(string(content)) != MimetypeEPUB {
			return ErrInvalidMimetype
		}
		return nil
	}
	return ErrMimetypeNotFound
}

// isSafePath returns false for paths that could escape the extraction
// directory.
func isSafePath(name string) bool {
	if name == "" || path.IsAbs(name) || strings.HasPrefix(name, `\`) || filepath.VolumeName(name) != "" {
		return false
	}
	for _, part := range strings.Split(strings.ReplaceAll(name, `\`, "/"), "/") {
		if part == ".." {
			return false
		}
	}
	return true
}

// normalizePath normalizes file paths (removes ./ prefix)
func normalizePath(path string) string {
	return strings.TrimPrefix(path, "./")
}
