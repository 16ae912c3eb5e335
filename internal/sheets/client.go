package sheets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"supply_tracker/internal/supply"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const spreadsheetMimeType = "application/vnd.google-apps.spreadsheet"

// Scopes are limited to spreadsheet read/write and file metadata lookup.
var Scopes = []string{sheets.SpreadsheetsScope, drive.DriveMetadataReadonlyScope}

type Client struct {
	service *sheets.Service
	drive   *drive.Service
}

func NewClient(ctx context.Context, source CredentialSource) (*Client, error) {
	payload, err := source.Load()
	if err != nil {
		return nil, err
	}

	creds, err := google.CredentialsFromJSON(ctx, payload, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to parse service account key: %w", supply.ErrConfiguration, err)
	}

	service, err := sheets.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	driveService, err := drive.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}

	return &Client{
		service: service,
		drive:   driveService,
	}, nil
}

// FindSpreadsheet resolves a spreadsheet name to its ID.
func (c *Client) FindSpreadsheet(ctx context.Context, name string) (string, error) {
	q := fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false",
		strings.ReplaceAll(name, "'", `\'`), spreadsheetMimeType)
	resp, err := c.drive.Files.List().
		Q(q).
		Fields("files(id, name)").
		PageSize(10).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("failed to look up spreadsheet %q: %w", name, err)
	}
	if len(resp.Files) == 0 {
		return "", fmt.Errorf("%w: spreadsheet %q not found or not shared with the service account", supply.ErrConfiguration, name)
	}
	return resp.Files[0].Id, nil
}

// FirstSheetTitle returns the title of the first tab.
func (c *Client) FirstSheetTitle(ctx context.Context, spreadsheetID string) (string, error) {
	resp, err := c.service.Spreadsheets.Get(spreadsheetID).
		Fields("sheets.properties.title").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("failed to get spreadsheet: %w", err)
	}
	if len(resp.Sheets) == 0 || resp.Sheets[0].Properties == nil {
		return "", fmt.Errorf("%w: spreadsheet %s has no sheets", supply.ErrConfiguration, spreadsheetID)
	}
	return resp.Sheets[0].Properties.Title, nil
}

func (c *Client) ReadSheet(ctx context.Context, spreadsheetID, range_ string) ([][]interface{}, error) {
	resp, err := c.service.Spreadsheets.Values.Get(spreadsheetID, range_).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet: %w", err)
	}

	return resp.Values, nil
}

func (c *Client) ClearRange(ctx context.Context, spreadsheetID, range_ string) error {
	_, err := c.service.Spreadsheets.Values.Clear(spreadsheetID, range_, &sheets.ClearValuesRequest{}).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to clear range: %w", err)
	}

	return nil
}

// UpdateRange writes values as plain strings so the sheet does not
// reinterpret dates or amounts.
func (c *Client) UpdateRange(ctx context.Context, spreadsheetID, range_ string, values [][]interface{}) error {
	valueRange := &sheets.ValueRange{
		Values: values,
	}

	_, err := c.service.Spreadsheets.Values.Update(spreadsheetID, range_, valueRange).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to update range: %w", err)
	}

	return nil
}

// BatchUpdate writes several ranges in one request.
func (c *Client) BatchUpdate(ctx context.Context, spreadsheetID string, data []*sheets.ValueRange) error {
	req := &sheets.BatchUpdateValuesRequest{
		ValueInputOption: "RAW",
		Data:             data,
	}

	_, err := c.service.Spreadsheets.Values.BatchUpdate(spreadsheetID, req).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to batch update: %w", err)
	}

	return nil
}

// isAuthError reports a rejected credential: HTTP 401/403 or a failed token
// exchange.
func isAuthError(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == 401 || gerr.Code == 403
	}
	var rerr *oauth2.RetrieveError
	return errors.As(err, &rerr)
}

// classify tags err with supply.ErrAuth when credentials were rejected and
// with fallback otherwise.
func classify(err, fallback error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, supply.ErrConfiguration) || errors.Is(err, supply.ErrAuth) {
		return err
	}
	if isAuthError(err) {
		return fmt.Errorf("%w: %w", supply.ErrAuth, err)
	}
	return fmt.Errorf("%w: %w", fallback, err)
}
