package sink

import (
	"context"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"
	"github.com/n0needt0/go-goodies/log"
	"github.com/n0needt0/synthlog/internal/domain"
	"github.com/pkg/errors"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"
)

const recordSchema = `{"Tag":"name=parquet-go-root","Fields":[` +
	`{"Tag":"name=timestamp, type=INT64, convertedtype=TIMESTAMP_MILLIS, repetitiontype=OPTIONAL"},` +
	`{"Tag":"name=format, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN, repetitiontype=OPTIONAL"},` +
	`{"Tag":"name=message, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN, repetitiontype=OPTIONAL"}` +
	`]}`

type parquetRow struct {
	Timestamp int64  `json:"timestamp"`
	Format    string `json:"format"`
	Message   string `json:"message"`
}

// ParquetSink writes records as rows of a gzip compressed parquet file
type ParquetSink struct {
	path string
	fw   source.ParquetFile
	pw   *writer.JSONWriter
	rows int
}

func NewParquetSink(path string) (*ParquetSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create %s", filepath.Dir(path))
	}
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create parquet file %s", path)
	}
	pw, err := writer.NewJSONWriter(recordSchema, fw, 4)
	if err != nil {
		fw.Close()
		return nil, errors.Wrap(err, "failed to create parquet writer")
	}
	pw.CompressionType = parquet.CompressionCodec_GZIP
	return &ParquetSink{path: path, fw: fw, pw: pw}, nil
}

// Path returns the output file
func (s *ParquetSink) Path() string {
	return s.path
}

func (s *ParquetSink) Write(_ context.Context, rec domain.Record) error {
	row, err := sonic.MarshalString(parquetRow{
		Timestamp: rec.Timestamp.UnixMilli(),
		Format:    rec.Format,
		Message:   rec.Line,
	})
	if err != nil {
		return errors.Wrap(err, "failed to encode parquet row")
	}
	if err := s.pw.Write(row); err != nil {
		return errors.Wrap(err, "failed to write parquet row")
	}
	s.rows++
	return nil
}

func (s *ParquetSink) Close() error {
	if err := s.pw.WriteStop(); err != nil {
		s.fw.Close()
		return errors.Wrap(err, "failed to finish parquet file")
	}
	log.Debugf("wrote %d rows to %s", s.rows, s.path)
	return s.fw.Close()
}
