package zip

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"
)

type Asset struct {
	Filename string
	Data     []byte
	Modified time.Time
}

// Archive builds a deflated zip of assets. Entry names are reduced to their
// base name and made unique with a numeric suffix.
func Archive(assets []Asset) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := Write(buf, assets); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write streams the archive into w.
func Write(w io.Writer, assets []Asset) error {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.DefaultCompression)
	})
	names := newNameSet()
	for _, asset := range assets {
		hdr := &zip.FileHeader{
			Name:   names.claim(asset.Filename),
			Method: zip.Deflate,
		}
		if !asset.Modified.IsZero() {
			hdr.Modified = asset.Modified
		}
		entry, err := zw.CreateHeader(hdr)
		if err != nil {
			return fmt.Errorf("zip: create %s: %w", hdr.Name, err)
		}
		if _, err := entry.Write(asset.Data); err != nil {
			return fmt.Errorf("zip: write %s: %w", hdr.Name, err)
		}
	}
	return zw.Close()
}

type nameSet map[string]struct{}

func newNameSet() nameSet { return nameSet{} }

func (s nameSet) claim(name string) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "file"
	}
	candidate := base
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for i := 1; ; i++ {
		if _, taken := s[candidate]; !taken {
			s[candidate] = struct{}{}
			return candidate
		}
		candidate = stem + "_" + strconv.Itoa(i) + ext
	}
}
