package sink

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/bytedance/sonic/encoder"
	flatten "github.com/jeremywohl/flatten"
	"github.com/n0needt0/go-goodies/log"
	"github.com/n0needt0/synthlog/internal/domain"
	"github.com/pkg/errors"
)

// FileSink writes one record per line, raw or wrapped in a JSON envelope
type FileSink struct {
	path    string
	framing Framing
	file    *os.File
	w       *bufio.Writer
}

func NewFileSink(path string, framing Framing) (*FileSink, error) {
	if framing != Raw && framing != NDJSON {
		return nil, errors.Errorf("file sink does not support %s framing", framing)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create %s", filepath.Dir(path))
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create %s", path)
	}
	log.Debugf("writing %s records to %s", framing, path)
	return &FileSink{path: path, framing: framing, file: f, w: bufio.NewWriterSize(f, 1<<20)}, nil
}

// Path returns the output file
func (s *FileSink) Path() string {
	return s.path
}

func (s *FileSink) Write(_ context.Context, rec domain.Record) error {
	line := rec.Line
	if s.framing == NDJSON {
		env, err := Envelope(rec)
		if err != nil {
			return err
		}
		line = env
	}
	if _, err := s.w.WriteString(line); err != nil {
		return errors.Wrapf(err, "failed to write %s", s.path)
	}
	if err := s.w.WriteByte('\n'); err != nil {
		return errors.Wrapf(err, "failed to write %s", s.path)
	}
	return nil
}

func (s *FileSink) Close() error {
	if err := s.w.Flush(); err != nil {
		s.file.Close()
		return errors.Wrapf(err, "failed to flush %s", s.path)
	}
	return s.file.Close()
}

// Envelope wraps a record in a flat JSON object. A JSON body embedded in the
// line is flattened into dotted "event." keys.
func Envelope(rec domain.Record) (string, error) {
	envelope := map[string]interface{}{
		"timestamp": rec.Timestamp.UTC().Format(time.RFC3339Nano),
		"format":    rec.Format,
		"message":   rec.Line,
	}

	if i := strings.IndexByte(rec.Line, '{'); i >= 0 && strings.HasSuffix(rec.Line, "}") {
		var body map[string]interface{}
		if err := sonic.UnmarshalString(rec.Line[i:], &body); err == nil {
			flat, err := flatten.Flatten(body, "event.", flatten.DotStyle)
			if err != nil {
				return "", errors.Wrap(err, "failed to flatten record body")
			}
			for k, v := range flat {
				envelope[k] = v
			}
		}
	}

	out, err := encoder.Encode(&envelope, encoder.SortMapKeys)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode envelope")
	}
	return string(out), nil
}
