package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Report is an ordered CSV table waiting to be written.
type Report struct {
	Header []string
	Rows   [][]string
}

func NewReport(header ...string) *Report {
	return &Report{Header: header}
}

func (r *Report) Add(row ...string) {
	r.Rows = append(r.Rows, row)
}

// defaultOutputPath builds <prefix>_<yyyyMMdd_HHmmss>.csv.
func defaultOutputPath(prefix string, now time.Time) string {
	return fmt.Sprintf("%s_%s.csv", prefix, now.Format("20060102_150405"))
}

// WriteReport writes report to path as UTF-8 CSV, prefixed with a byte order
// mark when bom is set. The data goes to a temporary file in the same
// directory first and is renamed into place; the temporary file never
// outlives the call.
func WriteReport(path string, report *Report, bom bool) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary report file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err := os.Remove(tmpName); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Warnf("could not remove temporary file %s: %v", tmpName, err)
		}
	}()

	if err := encodeReport(tmp, report, bom); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set report permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close report file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move report into place: %w", err)
	}
	return nil
}

func encodeReport(dst io.Writer, report *Report, bom bool) error {
	w := dst
	var enc io.WriteCloser
	if bom {
		enc = transform.NewWriter(dst, unicode.UTF8BOM.NewEncoder())
		w = enc
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(report.Header); err != nil {
		return fmt.Errorf("failed to write report header: %w", err)
	}
	if err := cw.WriteAll(report.Rows); err != nil {
		return fmt.Errorf("failed to write report rows: %w", err)
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
	}
	return nil
}
