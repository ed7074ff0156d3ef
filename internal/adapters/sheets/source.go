package sheets

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/bnema/ritual-rpa/internal/domain"
	"github.com/bnema/ritual-rpa/internal/ports"
	"github.com/rs/zerolog"
)

const exportURLFormat = "https://docs.google.com/spreadsheets/d/%s/export?format=csv&gid=%s"

var (
	ErrInvalidSheetURL = errors.New("invalid spreadsheet url")
	ErrMissingColumns  = errors.New("required columns not found")
	ErrEmptySheet      = errors.New("spreadsheet has no usable rows")

	spreadsheetIDPattern = regexp.MustCompile(`/d/([a-zA-Z0-9_-]+)`)
	bareIDPattern        = regexp.MustCompile(`^[\w-]{21,}$`)
	gidPattern           = regexp.MustCompile(`[#&?]gid=(\d+)`)
)

type column string

const (
	columnName    column = "name"
	columnProfile column = "adspower_id"
	columnTarget  column = "discord_username"
)

var requiredColumns = []column{columnName, columnProfile, columnTarget}

var columnAliases = map[string]column{
	"name":             columnName,
	"account":          columnName,
	"account_name":     columnName,
	"adspower_id":      columnProfile,
	"adspower":         columnProfile,
	"profile_id":       columnProfile,
	"profile":          columnProfile,
	"id":               columnProfile,
	"discord_username": columnTarget,
	"discord":          columnTarget,
	"username":         columnTarget,
	"user":             columnTarget,
}

// Source reads the roster from a spreadsheet shared by link, through its CSV export.
type Source struct {
	exportURL string
	client    *http.Client
	logger    zerolog.Logger
}

var _ ports.RosterSource = (*Source)(nil)

func NewSource(sheetURL string, client *http.Client, logger zerolog.Logger) (*Source, error) {
	exportURL, err := ExportURL(sheetURL)
	if err != nil {
		return nil, err
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Source{exportURL: exportURL, client: client, logger: logger}, nil
}

// ExportURL turns an edit link, a bare spreadsheet id, or an existing CSV
// export link into the export address. The sheet tab comes from gid, 0 otherwise.
func ExportURL(sheetURL string) (string, error) {
	sheetURL = strings.TrimSpace(sheetURL)
	if strings.Contains(sheetURL, "format=csv") {
		return sheetURL, nil
	}

	var id string
	switch {
	case strings.HasPrefix(sheetURL, "http"):
		match := spreadsheetIDPattern.FindStringSubmatch(sheetURL)
		if match == nil {
			return "", fmt.Errorf("%w: %q", ErrInvalidSheetURL, sheetURL)
		}
		id = match[1]
	case bareIDPattern.MatchString(sheetURL):
		id = sheetURL
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSheetURL, sheetURL)
	}

	gid := "0"
	if match := gidPattern.FindStringSubmatch(sheetURL); match != nil {
		gid = match[1]
	}
	return fmt.Sprintf(exportURLFormat, id, gid), nil
}

func (s *Source) Entries(ctx context.Context) ([]domain.RosterEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.exportURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch spreadsheet: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("fetch spreadsheet: http %d (is it shared by link?)", resp.StatusCode)
	}

	entries, warnings, err := ParseCSV(resp.Body)
	for _, warning := range warnings {
		s.logger.Warn().Str("source", "sheets").Msg(warning)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int("accounts", len(entries)).Msg("loaded roster from spreadsheet")
	return entries, nil
}

// ParseCSV maps header aliases to roster columns. Blank rows are skipped and
// rows missing a required cell are dropped with a warning.
func ParseCSV(r io.Reader) ([]domain.RosterEntry, []string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, ErrEmptySheet
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}

	columns, err := mapColumns(header)
	if err != nil {
		return nil, nil, err
	}

	var (
		entries  []domain.RosterEntry
		warnings []string
	)
	for rowNum := 2; ; rowNum++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, warnings, fmt.Errorf("read row %d: %w", rowNum, err)
		}
		if blank(row) {
			continue
		}

		entry := domain.RosterEntry{
			Name:    cell(row, columns, columnName),
			Profile: cell(row, columns, columnProfile),
			Target:  strings.TrimPrefix(cell(row, columns, columnTarget), "@"),
		}
		switch {
		case entry.Name == "":
			warnings = append(warnings, fmt.Sprintf("row %d: empty account name, skipped", rowNum))
			continue
		case entry.Profile == "":
			warnings = append(warnings, fmt.Sprintf("row %d (%s): empty profile id, skipped", rowNum, entry.Name))
			continue
		case entry.Target == "":
			warnings = append(warnings, fmt.Sprintf("row %d (%s): empty discord username, skipped", rowNum, entry.Name))
			continue
		}
		entries = append(entries, entry)
	}

	if len(entries) == 0 {
		return nil, warnings, ErrEmptySheet
	}
	return entries, warnings, nil
}

func mapColumns(header []string) (map[column]int, error) {
	columns := make(map[column]int, len(requiredColumns))
	for idx, name := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		col, ok := columnAliases[key]
		if !ok {
			continue
		}
		if _, seen := columns[col]; !seen {
			columns[col] = idx
		}
	}

	var missing []string
	for _, col := range requiredColumns {
		if _, ok := columns[col]; !ok {
			missing = append(missing, string(col))
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s (found: %s)", ErrMissingColumns, strings.Join(missing, ", "), strings.Join(header, ", "))
	}
	return columns, nil
}

func cell(row []string, columns map[column]int, col column) string {
	idx := columns[col]
	if idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func blank(row []string) bool {
	for _, value := range row {
		if strings.TrimSpace(value) != "" {
			return false
		}
	}
	return true
}
