package archive

import (
	"compress/gzip"
	"io"
	"os"

	"github.com/n0needt0/go-goodies/log"
	"github.com/pkg/errors"
)

// Compress gzips path into path.gz and removes the source file
func Compress(path string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to open %s", path)
	}
	defer src.Close()

	out := path + ".gz"
	dst, err := os.Create(out)
	if err != nil {
		return "", errors.Wrapf(err, "failed to create %s", out)
	}

	gz := gzip.NewWriter(dst)
	if _, err := io.Copy(gz, src); err != nil {
		gz.Close()
		dst.Close()
		os.Remove(out)
		return "", errors.Wrapf(err, "failed to gzip %s", path)
	}
	if err := gz.Close(); err != nil {
		dst.Close()
		os.Remove(out)
		return "", errors.Wrapf(err, "failed to gzip %s", path)
	}
	if err := dst.Close(); err != nil {
		return "", errors.Wrapf(err, "failed to close %s", out)
	}

	src.Close()
	if err := os.Remove(path); err != nil {
		log.Warnf("failed to remove source file %s: %v", path, err)
	}
	log.Infof("compressed %s", out)
	return out, nil
}
