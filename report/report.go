package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhcgn/mail-campaign/bounce"
)

// Header is the single column title of an exported address list.
const Header = "Rejected Emails"

// ExportError reports a failed export. The destination is left untouched.
type ExportError struct {
	Path string
	Err  error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export %s: %v", e.Path, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

// Sorted returns the addresses of set in lexicographic order.
func Sorted(set bounce.AddressSet) []string {
	return set.Sorted()
}

// ExportCSV writes addresses, one per row and sorted, below the Header row.
func ExportCSV(path string, addresses []string) error {
	rows := make([][]string, 0, len(addresses))
	for _, addr := range bounce.NewAddressSet(addresses...).Sorted() {
		rows = append(rows, []string{addr})
	}
	return WriteTable(path, []string{Header}, rows)
}

// WriteTable writes header and rows as CSV. The file is written to a temporary
// sibling and renamed into place, so readers see either the old file or the
// complete new one.
func WriteTable(path string, header []string, rows [][]string) error {
	if strings.TrimSpace(path) == "" {
		return &ExportError{Path: path, Err: errors.New("destination path is empty")}
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return &ExportError{Path: path, Err: err}
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		return &ExportError{Path: path, Err: err}
	}
	if err := w.WriteAll(rows); err != nil {
		return &ExportError{Path: path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		return &ExportError{Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &ExportError{Path: path, Err: err}
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return &ExportError{Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		return &ExportError{Path: path, Err: err}
	}
	committed = true
	return nil
}

// ReadCSV reads an address list written by ExportCSV. Rows are normalized the
// way the parser normalizes candidates; blank rows are skipped.
func ReadCSV(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open address list: %w", err)
	}
	defer file.Close()
	return readAddresses(file)
}

func readAddresses(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	var out []string
	for line := 1; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read address list: %w", err)
		}
		if len(record) == 0 {
			continue
		}
		value := strings.TrimSpace(record[0])
		if line == 1 && strings.EqualFold(value, Header) {
			continue
		}
		if value == "" {
			continue
		}
		out = append(out, bounce.Normalize(value))
	}
}
