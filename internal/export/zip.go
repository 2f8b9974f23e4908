package export

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
)

type ZipEntry struct {
	Path string // file on disk
	Name string // name inside the archive
}

// WriteBatchZip deflates every existing entry into w and returns how many were written.
// Entries whose file is missing are skipped.
func WriteBatchZip(w io.Writer, entries []ZipEntry) (int, error) {
	zw := zip.NewWriter(w)
	n := 0
	for _, e := range entries {
		ok, err := addFile(zw, e)
		if err != nil {
			_ = zw.Close()
			return n, err
		}
		if ok {
			n++
		}
	}
	if err := zw.Close(); err != nil {
		return n, fmt.Errorf("finish zip: %w", err)
	}
	return n, nil
}

func addFile(zw *zip.Writer, e ZipEntry) (bool, error) {
	f, err := os.Open(e.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("open %s: %w", e.Path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return false, err
	}
	hdr, err := zip.FileInfoHeader(st)
	if err != nil {
		return false, err
	}
	hdr.Name = e.Name
	hdr.Method = zip.Deflate

	dst, err := zw.CreateHeader(hdr)
	if err != nil {
		return false, fmt.Errorf("zip entry %s: %w", e.Name, err)
	}
	if _, err := io.Copy(dst, f); err != nil {
		return false, fmt.Errorf("zip copy %s: %w", e.Name, err)
	}
	return true, nil
}
