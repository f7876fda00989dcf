package sink

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const spreadsheetMimeType = "application/vnd.google-apps.spreadsheet"

// GoogleSheets stores monthly sinks as Google spreadsheets. Objects created
// with a parent are placed in that Drive folder.
type GoogleSheets struct {
	sheets *sheets.Service
	drive  *drive.Service

	mu       sync.Mutex
	sheetIDs map[string]int64
}

// NewGoogleSheets builds the Sheets and Drive clients from a service account file
func NewGoogleSheets(ctx context.Context, credentialsFile string) (*GoogleSheets, error) {
	creds := option.WithCredentialsFile(credentialsFile)

	ss, err := sheets.NewService(ctx, creds, option.WithScopes(sheets.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets client: %w", err)
	}
	ds, err := drive.NewService(ctx, creds, option.WithScopes(drive.DriveScope))
	if err != nil {
		return nil, fmt.Errorf("failed to create drive client: %w", err)
	}

	return newGoogleSheets(ss, ds), nil
}

func newGoogleSheets(ss *sheets.Service, ds *drive.Service) *GoogleSheets {
	return &GoogleSheets{sheets: ss, drive: ds, sheetIDs: make(map[string]int64)}
}

// CreateObject creates an empty spreadsheet
func (g *GoogleSheets) CreateObject(ctx context.Context, name, parent string) (Object, error) {
	if parent != "" {
		f, err := g.drive.Files.Create(&drive.File{
			Name:     name,
			MimeType: spreadsheetMimeType,
			Parents:  []string{parent},
		}).SupportsAllDrives(true).Fields("id", "webViewLink").Context(ctx).Do()
		if err != nil {
			return Object{}, err
		}
		return Object{ID: f.Id, URL: f.WebViewLink}, nil
	}

	s, err := g.sheets.Spreadsheets.Create(&sheets.Spreadsheet{
		Properties: &sheets.SpreadsheetProperties{Title: name},
	}).Context(ctx).Do()
	if err != nil {
		return Object{}, err
	}
	return Object{ID: s.SpreadsheetId, URL: s.SpreadsheetUrl}, nil
}

// WriteHeader writes the header row, makes it bold and freezes it
func (g *GoogleSheets) WriteHeader(ctx context.Context, id string, header []string) error {
	if err := g.WriteRange(ctx, id, RowRange(1, len(header)), [][]string{header}); err != nil {
		return err
	}

	sheetID, err := g.firstSheetID(ctx, id)
	if err != nil {
		return err
	}

	requests := []*sheets.Request{
		{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:         sheetID,
					StartRowIndex:   0,
					EndRowIndex:     1,
					ForceSendFields: []string{"SheetId", "StartRowIndex"},
				},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{
						TextFormat: &sheets.TextFormat{Bold: true},
					},
				},
				Fields: "userEnteredFormat.textFormat.bold",
			},
		},
		{
			UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
				Properties: &sheets.SheetProperties{
					SheetId:         sheetID,
					GridProperties:  &sheets.GridProperties{FrozenRowCount: 1},
					ForceSendFields: []string{"SheetId"},
				},
				Fields: "gridProperties.frozenRowCount",
			},
		},
	}
	return g.batchUpdate(ctx, id, requests)
}

// ReadRange returns the values of a range as strings
func (g *GoogleSheets) ReadRange(ctx context.Context, id, a1 string) ([][]string, error) {
	resp, err := g.sheets.Spreadsheets.Values.Get(id, a1).
		ValueRenderOption("UNFORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}

	rows := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		rows[i] = make([]string, len(row))
		for j, cell := range row {
			rows[i][j] = cellString(cell)
		}
	}
	return rows, nil
}

// WriteRange overwrites a range. Values are stored as given and never parsed
// as formulas; plain numbers are sent as numbers.
func (g *GoogleSheets) WriteRange(ctx context.Context, id, a1 string, rows [][]string) error {
	values := make([][]interface{}, len(rows))
	for i, row := range rows {
		values[i] = make([]interface{}, len(row))
		for j, cell := range row {
			values[i][j] = cellValue(cell)
		}
	}

	_, err := g.sheets.Spreadsheets.Values.Update(id, a1, &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}

// cellString renders an unformatted cell; numbers never use exponent notation
func cellString(v interface{}) string {
	if f, ok := v.(float64); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

// cellValue returns s as a number when it is one in canonical form, so
// values like "007" keep their leading zeros
func cellValue(s string) interface{} {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && strconv.FormatInt(n, 10) == s {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && strconv.FormatFloat(f, 'f', -1, 64) == s {
		return f
	}
	return s
}

// DeleteRows removes rows start..end (1-based, inclusive)
func (g *GoogleSheets) DeleteRows(ctx context.Context, id string, start, end int) error {
	sheetID, err := g.firstSheetID(ctx, id)
	if err != nil {
		return err
	}

	return g.batchUpdate(ctx, id, []*sheets.Request{{
		DeleteDimension: &sheets.DeleteDimensionRequest{
			Range: &sheets.DimensionRange{
				SheetId:         sheetID,
				Dimension:       "ROWS",
				StartIndex:      int64(start - 1),
				EndIndex:        int64(end),
				ForceSendFields: []string{"SheetId", "StartIndex"},
			},
		},
	}})
}

// Rename sets the title of the first worksheet
func (g *GoogleSheets) Rename(ctx context.Context, id, name string) error {
	sheetID, err := g.firstSheetID(ctx, id)
	if err != nil {
		return err
	}

	return g.batchUpdate(ctx, id, []*sheets.Request{{
		UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
			Properties: &sheets.SheetProperties{
				SheetId:         sheetID,
				Title:           name,
				ForceSendFields: []string{"SheetId"},
			},
			Fields: "title",
		},
	}})
}

func (g *GoogleSheets) batchUpdate(ctx context.Context, id string, requests []*sheets.Request) error {
	_, err := g.sheets.Spreadsheets.BatchUpdate(id, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: requests,
	}).Context(ctx).Do()
	return err
}

func (g *GoogleSheets) firstSheetID(ctx context.Context, id string) (int64, error) {
	g.mu.Lock()
	sheetID, ok := g.sheetIDs[id]
	g.mu.Unlock()
	if ok {
		return sheetID, nil
	}

	s, err := g.sheets.Spreadsheets.Get(id).Fields("sheets.properties.sheetId").Context(ctx).Do()
	if err != nil {
		return 0, err
	}
	if len(s.Sheets) == 0 || s.Sheets[0].Properties == nil {
		return 0, fmt.Errorf("spreadsheet %s has no worksheets", id)
	}

	sheetID = s.Sheets[0].Properties.SheetId
	g.mu.Lock()
	g.sheetIDs[id] = sheetID
	g.mu.Unlock()
	return sheetID, nil
}
