package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"backoffice/internal/model"
	"backoffice/internal/policy"

	"github.com/go-playground/validator/v10"
	"github.com/xuri/excelize/v2"
)

const (
	ExportCSV  = "csv"
	ExportXLSX = "xlsx"
)

var (
	exportHeader = []string{"Name", "Email", "Phone", "Company", "Tax Number", "Total Invoices", "Total Revenue", "Created At"}
	utf8BOM      = []byte{0xEF, 0xBB, 0xBF}
	validate     = validator.New()
)

type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

type ImportResult struct {
	Imported int      `json:"imported"`
	Errors   []string `json:"errors"`
}

// Export writes every client matching search as CSV (with a UTF-8 BOM so
// spreadsheet apps detect the encoding) or XLSX.
func (s *clientService) Export(ctx context.Context, actor policy.Actor, format, search string) (*ExportFile, error) {
	if err := authorize(s.engine, policy.ClientExport, policy.Request{Actor: actor}); err != nil {
		return nil, err
	}
	if format == "" {
		format = ExportCSV
	}
	if format != ExportCSV && format != ExportXLSX {
		return nil, invalid("format", "must be csv or xlsx")
	}

	clients, err := s.clientRepo.ListAll(ctx, strings.TrimSpace(search))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch clients: %w", err)
	}
	stats, err := s.clientRepo.InvoiceStats(ctx, clientIDs(clients))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch client invoice stats: %w", err)
	}

	rows := make([][]string, 0, len(clients))
	for _, c := range clients {
		st := stats[c.ID]
		rows = append(rows, []string{
			c.Name,
			c.Email,
			c.Phone,
			c.CompanyName,
			c.TaxNumber,
			strconv.FormatInt(st.InvoiceCount, 10),
			money(st.TotalRevenue),
			c.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}

	name := "clients_" + s.now().Format("2006-01-02_15-04-05")
	if format == ExportXLSX {
		data, err := writeXLSX("Clients", exportHeader, rows)
		if err != nil {
			return nil, err
		}
		return &ExportFile{
			Filename:    name + ".xlsx",
			ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			Data:        data,
		}, nil
	}
	data, err := writeCSV(exportHeader, rows)
	if err != nil {
		return nil, err
	}
	return &ExportFile{Filename: name + ".csv", ContentType: "text/csv; charset=utf-8", Data: data}, nil
}

// Import reads name, email, phone, company, tax_number, address from a CSV
// or XLSX file with a header row. Bad rows are reported and skipped.
func (s *clientService) Import(ctx context.Context, actor policy.Actor, filename string, data []byte) (*ImportResult, error) {
	if err := authorize(s.engine, policy.ClientImport, policy.Request{Actor: actor}); err != nil {
		return nil, err
	}

	var rows [][]string
	var err error
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".txt":
		rows, err = readCSV(data)
	case ".xlsx":
		rows, err = readXLSX(data)
	default:
		return nil, invalid("file", "must be a .csv or .xlsx file")
	}
	if err != nil {
		return nil, invalid("file", err.Error())
	}

	result := &ImportResult{Errors: []string{}}
	if len(rows) <= 1 {
		return result, nil
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		seen := map[string]bool{}
		for i, row := range rows[1:] {
			line := i + 2
			cell := func(n int) string {
				if n < len(row) {
					return strings.TrimSpace(row[n])
				}
				return ""
			}
			name, email := cell(0), cell(1)
			if name == "" || email == "" {
				result.Errors = append(result.Errors, fmt.Sprintf("Row %d: name and email are required", line))
				continue
			}
			if validate.Var(email, "email") != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("Row %d: invalid email %s", line, email))
				continue
			}
			key := strings.ToLower(email)
			taken, err := s.clientRepo.EmailTaken(txCtx, email, nil)
			if err != nil {
				return fmt.Errorf("failed to check client email: %w", err)
			}
			if taken || seen[key] {
				result.Errors = append(result.Errors, fmt.Sprintf("Row %d: email %s already exists", line, email))
				continue
			}
			seen[key] = true

			client := &model.Client{}
			applyClient(client, ClientRequest{
				Name:        name,
				Email:       email,
				Phone:       cell(2),
				CompanyName: cell(3),
				TaxNumber:   cell(4),
				Address:     cell(5),
			})
			now := s.now()
			client.FirstContactAt = &now
			if err := s.clientRepo.Create(txCtx, client); err != nil {
				return fmt.Errorf("failed to import row %d: %w", line, err)
			}
			result.Imported++
		}
		if result.Imported == 0 {
			return nil
		}
		return s.audit.Record(txCtx, &actor, Entry{
			Action:      model.ActionClientsImported,
			SubjectType: "client",
			Description: fmt.Sprintf("%d client(s) imported from %s", result.Imported, filepath.Base(filename)),
			Properties:  map[string]any{"imported": result.Imported, "errors": len(result.Errors)},
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func writeCSV(header []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(utf8BOM)
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("failed to write csv: %w", err)
	}
	return buf.Bytes(), nil
}

func writeXLSX(sheet string, header []string, rows [][]string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	write := func(n int, values []string) error {
		cellRef, err := excelize.CoordinatesToCellName(1, n)
		if err != nil {
			return err
		}
		row := make([]interface{}, len(values))
		for i, v := range values {
			row[i] = v
		}
		return f.SetSheetRow(sheet, cellRef, &row)
	}
	if err := write(1, header); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(header), 1)
	if err := f.SetCellStyle(sheet, "A1", last, bold); err != nil {
		return nil, fmt.Errorf("failed to style header: %w", err)
	}
	for i, r := range rows {
		if err := write(i+2, r); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to encode xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

func readCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("malformed csv: %w", err)
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("cannot open xlsx: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	return f.GetRows(sheet)
}
