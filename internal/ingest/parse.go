package ingest

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/tapcard/contact-search/internal/model"
)

// Columns recognized in import files, after header normalization. Anything
// else lands in Contact.Details keyed by the normalized header.
var columnAliases = map[string]string{
	"id":            "id",
	"name":          "name",
	"full_name":     "name",
	"email":         "email",
	"email_address": "email",
	"company":       "company",
	"organization":  "company",
	"job_title":     "job_title",
	"title":         "job_title",
	"phone":         "phone",
	"phone_number":  "phone",
	"notes":         "notes",
	"message":       "message",
	"location":      "location",
	"latitude":      "latitude",
	"lat":           "latitude",
	"longitude":     "longitude",
	"lng":           "longitude",
	"submitted_at":  "submitted_at",
	"date":          "submitted_at",
}

// submittedAtFormats are tried in order when parsing the submitted_at column.
var submittedAtFormats = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
}

// ReadContactsXLSX parses the first sheet of an XLSX file into contacts
// owned by userID. The first row is the header.
func ReadContactsXLSX(path, userID string) ([]model.Contact, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("ingest: xlsx file has no sheets")
	}

	sheet := f.Sheets[0]
	var rows [][]string
	for _, row := range sheet.Rows {
		cells := make([]string, 0, len(row.Cells))
		for _, cell := range row.Cells {
			cells = append(cells, strings.TrimSpace(cell.String()))
		}
		rows = append(rows, cells)
	}

	return rowsToContacts(rows, userID)
}

// ReadContactsCSV parses a CSV file into contacts owned by userID. The
// first row is the header.
func ReadContactsCSV(path, userID string) ([]model.Contact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open csv")
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var rows [][]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "ingest: read csv")
		}
		for i := range record {
			record[i] = strings.TrimSpace(record[i])
		}
		rows = append(rows, record)
	}

	return rowsToContacts(rows, userID)
}

func rowsToContacts(rows [][]string, userID string) ([]model.Contact, error) {
	if len(rows) == 0 {
		return nil, eris.New("ingest: file is empty")
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = normalizeHeader(h)
	}
	if !hasColumn(header, "name") {
		return nil, eris.New("ingest: file has no name column")
	}

	contacts := make([]model.Contact, 0, len(rows)-1)
	for _, row := range rows[1:] {
		c := rowToContact(header, row, userID)
		if c.Name == "" {
			continue
		}
		contacts = append(contacts, c)
	}
	return contacts, nil
}

func rowToContact(header, row []string, userID string) model.Contact {
	c := model.Contact{UserID: userID}
	for i, value := range row {
		if i >= len(header) || value == "" {
			continue
		}
		switch columnAliases[header[i]] {
		case "id":
			c.ID = value
		case "name":
			c.Name = value
		case "email":
			c.Email = value
		case "company":
			c.Company = value
		case "job_title":
			c.JobTitle = value
		case "phone":
			c.Phone = value
		case "notes":
			c.Notes = value
		case "message":
			c.Message = value
		case "location":
			c.Location = value
		case "latitude":
			if v, err := strconv.ParseFloat(value, 64); err == nil {
				c.Latitude = &v
			}
		case "longitude":
			if v, err := strconv.ParseFloat(value, 64); err == nil {
				c.Longitude = &v
			}
		case "submitted_at":
			c.SubmittedAt = parseSubmittedAt(value)
		default:
			if c.Details == nil {
				c.Details = make(map[string]string)
			}
			c.Details[header[i]] = value
		}
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.SubmittedAt.IsZero() {
		c.SubmittedAt = time.Now().UTC()
	}
	return c
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.ReplaceAll(h, " ", "_")
	h = strings.ReplaceAll(h, "-", "_")
	return h
}

func hasColumn(header []string, canonical string) bool {
	for _, h := range header {
		if columnAliases[h] == canonical {
			return true
		}
	}
	return false
}

func parseSubmittedAt(value string) time.Time {
	for _, layout := range submittedAtFormats {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
