package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"LobCast/internal/domain/models"
	"LobCast/internal/domain/repository"
)

// levelRow is one book level in the archive, one row per (snapshot, side,
// level).
type levelRow struct {
	Timestamp int64   `parquet:"name=timestamp, type=INT64"`
	Seq       int64   `parquet:"name=seq, type=INT64"`
	Side      string  `parquet:"name=side, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Level     int32   `parquet:"name=level, type=INT32"`
	Price     float64 `parquet:"name=price, type=DOUBLE"`
	Size      float64 `parquet:"name=size, type=DOUBLE"`
}

type parquetFile struct {
	pw *writer.ParquetWriter
	fw source.ParquetFile
	mu sync.Mutex
}

func (w *parquetFile) write(row *levelRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pw.Write(row)
}

func (w *parquetFile) close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.pw.WriteStop(); err != nil {
		return err
	}
	return w.fw.Close()
}

// ParquetArchive implements Archiver with one Snappy-compressed Parquet
// file per instrument per hour. Writers rotate on Flush once their hour has
// passed.
type ParquetArchive struct {
	dir     string
	mu      sync.Mutex
	writers map[string]*parquetFile
	hours   map[string]time.Time
}

// NewParquetArchive creates an archive rooted at dir.
func NewParquetArchive(dir string) repository.Archiver {
	return &ParquetArchive{
		dir:     dir,
		writers: make(map[string]*parquetFile),
		hours:   make(map[string]time.Time),
	}
}

func (a *ParquetArchive) filePath(instrument string, ts time.Time) string {
	return filepath.Join(a.dir, instrument, ts.UTC().Format("2006-01-02T15")+".parquet")
}

func (a *ParquetArchive) getWriter(instrument string, ts time.Time) (*parquetFile, error) {
	path := a.filePath(instrument, ts)
	a.mu.Lock()
	defer a.mu.Unlock()

	if w, ok := a.writers[path]; ok {
		return w, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("archive dir: %w", err)
	}
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return nil, fmt.Errorf("archive file: %w", err)
	}
	pw, err := writer.NewParquetWriter(fw, new(levelRow), 1)
	if err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	w := &parquetFile{pw: pw, fw: fw}
	a.writers[path] = w
	a.hours[path] = ts.UTC().Truncate(time.Hour)
	return w, nil
}

// Append writes every level of both sides as rows in the snapshot's hourly
// file.
func (a *ParquetArchive) Append(ctx context.Context, s *models.Snapshot) error {
	w, err := a.getWriter(s.Instrument, s.Timestamp)
	if err != nil {
		return err
	}
	ts := s.Timestamp.UnixMilli()
	for i, lv := range s.Asks {
		row := &levelRow{Timestamp: ts, Seq: int64(s.Seq), Side: "ask", Level: int32(i), Price: lv.Price, Size: lv.Size}
		if err := w.write(row); err != nil {
			return fmt.Errorf("archive ask level: %w", err)
		}
	}
	for i, lv := range s.Bids {
		row := &levelRow{Timestamp: ts, Seq: int64(s.Seq), Side: "bid", Level: int32(i), Price: lv.Price, Size: lv.Size}
		if err := w.write(row); err != nil {
			return fmt.Errorf("archive bid level: %w", err)
		}
	}
	return nil
}

// Flush closes writers for hours that have already passed, making their
// files readable.
func (a *ParquetArchive) Flush() error {
	cutoff := time.Now().UTC().Truncate(time.Hour)
	a.mu.Lock()
	defer a.mu.Unlock()

	var firstErr error
	for path, hour := range a.hours {
		if !hour.Before(cutoff) {
			continue
		}
		if w, ok := a.writers[path]; ok {
			if err := w.close(); err != nil && firstErr == nil {
				firstErr = err
			}
			delete(a.writers, path)
		}
		delete(a.hours, path)
	}
	return firstErr
}

// Close finalizes every open file.
func (a *ParquetArchive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var firstErr error
	for path, w := range a.writers {
		if err := w.close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(a.writers, path)
		delete(a.hours, path)
	}
	return firstErr
}
