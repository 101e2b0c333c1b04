package campaign

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Columns names the contact sheet columns the campaign reads.
type Columns struct {
	Name    string
	Company string
	Email   string
}

// DefaultColumns matches the contact sheets exported from the CRM.
var DefaultColumns = Columns{
	Name:    "Nombre Contacto",
	Company: "Nombre Empresa",
	Email:   "Email Contacto",
}

func (c Columns) withDefaults() Columns {
	if c.Name == "" {
		c.Name = DefaultColumns.Name
	}
	if c.Company == "" {
		c.Company = DefaultColumns.Company
	}
	if c.Email == "" {
		c.Email = DefaultColumns.Email
	}
	return c
}

type Contact struct {
	Name    string
	Company string
	Email   string
	// Record holds every trimmed cell of the row in header order.
	Record []string
}

// ContactList is a loaded contact sheet.
type ContactList struct {
	Header   []string
	Contacts []Contact
	// Dropped counts rows without a usable email address.
	Dropped int
}

// LoadContacts reads a CSV contact sheet with a header row.
func LoadContacts(path string, cols Columns, logger *slog.Logger) (ContactList, error) {
	file, err := os.Open(path)
	if err != nil {
		return ContactList{}, fmt.Errorf("open contacts: %w", err)
	}
	defer file.Close()

	list, err := ReadContacts(file, cols)
	if err != nil {
		return ContactList{}, fmt.Errorf("load contacts %s: %w", path, err)
	}
	if list.Dropped > 0 && logger != nil {
		logger.Warn("filtered out invalid contacts", "path", path, "count", list.Dropped)
	}
	return list, nil
}

// ReadContacts parses a contact sheet. Cells are trimmed; rows whose email cell
// has no @ are dropped and counted.
func ReadContacts(r io.Reader, cols Columns) (ContactList, error) {
	cols = cols.withDefaults()

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return ContactList{}, fmt.Errorf("contact sheet is empty")
	}
	if err != nil {
		return ContactList{}, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[h] = i
	}
	emailIdx, ok := index[cols.Email]
	if !ok {
		return ContactList{}, fmt.Errorf("missing column %q", cols.Email)
	}
	nameIdx, ok := index[cols.Name]
	if !ok {
		return ContactList{}, fmt.Errorf("missing column %q", cols.Name)
	}
	companyIdx, hasCompany := index[cols.Company]

	list := ContactList{Header: header}
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return ContactList{}, fmt.Errorf("read contacts: %w", err)
		}

		row := make([]string, len(header))
		for i := range row {
			if i < len(record) {
				row[i] = strings.TrimSpace(record[i])
			}
		}

		if !strings.Contains(row[emailIdx], "@") {
			list.Dropped++
			continue
		}

		c := Contact{Name: row[nameIdx], Email: row[emailIdx], Record: row}
		if hasCompany {
			c.Company = row[companyIdx]
		}
		list.Contacts = append(list.Contacts, c)
	}

	return list, nil
}
