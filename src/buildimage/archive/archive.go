// Package archive packs a staged directory tree into a compressed tarball.
package archive

import (
	"archive/tar"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/projectopenrap/buildimage/src/common/errors"
	"github.com/ulikunitz/xz"
)

// Format is the compression applied to the tarball
type Format string

const (
	FormatTGZ  Format = "tgz"
	FormatTXZ  Format = "txz"
	FormatTZST Format = "tzst"
)

// DefaultFormat is used when no format is configured
const DefaultFormat = FormatTGZ

// ValidFormats returns all supported formats
func ValidFormats() []Format {
	return []Format{FormatTGZ, FormatTXZ, FormatTZST}
}

// ParseFormat validates a format name; empty selects the default
func ParseFormat(s string) (Format, error) {
	if s == "" {
		return DefaultFormat, nil
	}
	for _, f := range ValidFormats() {
		if string(f) == s {
			return f, nil
		}
	}
	return "", errors.ErrInvalidConfig.WithMessagef("unsupported archive format %q (tgz, txz, tzst)", s)
}

// Extension returns the file extension including the dot
func (f Format) Extension() string {
	return "." + string(f)
}

// ContentType returns the MIME type used when publishing the archive
func (f Format) ContentType() string {
	switch f {
	case FormatTXZ:
		return "application/x-xz"
	case FormatTZST:
		return "application/zstd"
	default:
		return "application/gzip"
	}
}

// Info describes a written archive
type Info struct {
	Path     string
	Size     int64
	Checksum string // hex SHA-256 of the archive file
	Entries  int
}

// compressor wraps w with the format's compression stream
func (f Format) compressor(w io.Writer) (io.WriteCloser, error) {
	switch f {
	case FormatTXZ:
		return xz.NewWriter(w)
	case FormatTZST:
		return zstd.NewWriter(w)
	case FormatTGZ, "":
		return gzip.NewWriterLevel(w, gzip.DefaultCompression)
	default:
		return nil, fmt.Errorf("unsupported archive format %q", f)
	}
}

// Create archives srcDir into destPath. Entries are rooted at the base name
// of srcDir (e.g. "opencdn/CDN/version.txt") and written in lexical order.
// The archive is written to a temporary file and renamed into place.
func Create(ctx context.Context, srcDir, destPath string, format Format) (*Info, error) {
	info, err := os.Stat(srcDir)
	if err != nil {
		return nil, errors.ErrArchive.WithMessagef("stat %s", srcDir).WithCause(err)
	}
	if !info.IsDir() {
		return nil, errors.ErrArchive.WithMessagef("%s is not a directory", srcDir)
	}

	tmpPath := destPath + ".tmp"
	os.Remove(tmpPath)

	entries, err := write(ctx, srcDir, tmpPath, format)
	if err != nil {
		os.Remove(tmpPath)
		return nil, errors.ErrArchive.WithMessagef("archive %s", srcDir).WithCause(err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return nil, errors.ErrArchive.WithMessagef("rename %s", destPath).WithCause(err)
	}

	stat, err := os.Stat(destPath)
	if err != nil {
		return nil, errors.ErrArchive.WithCause(err)
	}
	sum, err := Checksum(destPath)
	if err != nil {
		return nil, errors.ErrArchive.WithMessagef("checksum %s", destPath).WithCause(err)
	}

	return &Info{
		Path:     destPath,
		Size:     stat.Size(),
		Checksum: sum,
		Entries:  entries,
	}, nil
}

func write(ctx context.Context, srcDir, path string, format Format) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	cw, err := format.compressor(f)
	if err != nil {
		return 0, err
	}
	tw := tar.NewWriter(cw)

	root := filepath.Base(srcDir)
	entries := 0

	walkErr := filepath.WalkDir(srcDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rel, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}
		name := root
		if rel != "." {
			name = root + "/" + filepath.ToSlash(rel)
		}

		if err := addEntry(tw, p, name, d); err != nil {
			return fmt.Errorf("add %s: %w", name, err)
		}
		entries++
		return nil
	})
	if walkErr != nil {
		return 0, walkErr
	}

	if err := tw.Close(); err != nil {
		return 0, err
	}
	if err := cw.Close(); err != nil {
		return 0, err
	}
	return entries, f.Close()
}

func addEntry(tw *tar.Writer, path, name string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	var link string
	if info.Mode()&os.ModeSymlink != 0 {
		if link, err = os.Readlink(path); err != nil {
			return err
		}
	}

	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return err
	}
	hdr.Name = name
	if info.IsDir() && !strings.HasSuffix(hdr.Name, "/") {
		hdr.Name += "/"
	}

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return nil
	}

	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	_, err = io.Copy(tw, src)
	return err
}

// Checksum returns the hex SHA-256 of a file
func Checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// WriteChecksumFile writes "<checksum>  <filename>" next to the archive and
// returns the checksum file path
func WriteChecksumFile(info *Info) (string, error) {
	path := info.Path + ".sha256"
	content := fmt.Sprintf("%s  %s\n", info.Checksum, filepath.Base(info.Path))
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", errors.ErrArchive.WithMessagef("write %s", path).WithCause(err)
	}
	return path, nil
}
