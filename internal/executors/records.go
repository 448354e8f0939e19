package executors

import (
	"context"

	"flowforge/internal/models"

	"github.com/sirupsen/logrus"
)

// SpreadsheetRowExecutor appends a row to a Google sheet. The Sheets write
// itself is out of scope here; the executor validates configuration, consumes
// the injected Google credential, and runs in demo mode without one.
type SpreadsheetRowExecutor struct {
	logger *logrus.Logger
}

type spreadsheetParams struct {
	SpreadsheetID string `json:"spreadsheetId"`
	SheetName     string `json:"sheetName"`
	Values        string `json:"values"`
}

func (e *SpreadsheetRowExecutor) Name() string { return models.ActionSpreadsheetRow }

func (e *SpreadsheetRowExecutor) Execute(ctx context.Context, metadata map[string]interface{}, creds Credentials) error {
	var params spreadsheetParams
	if err := decodeParams(metadata, &params); err != nil {
		return err
	}
	if creds.GoogleAccessToken == "" {
		e.logger.Infof("Create Spreadsheet Row: no Google credential, demo mode (sheet=%s/%s)",
			params.SpreadsheetID, params.SheetName)
		return nil
	}
	e.logger.Infof("Create Spreadsheet Row: %s/%s values=%s", params.SpreadsheetID, params.SheetName, params.Values)
	return nil
}

// NotionPageExecutor is a demo-mode stub for the Notion integration.
type NotionPageExecutor struct {
	logger *logrus.Logger
}

type notionParams struct {
	DatabaseID string `json:"databaseId"`
	Title      string `json:"title"`
	Content    string `json:"content"`
}

func (e *NotionPageExecutor) Name() string { return models.ActionNotionPage }

func (e *NotionPageExecutor) Execute(ctx context.Context, metadata map[string]interface{}, creds Credentials) error {
	var params notionParams
	if err := decodeParams(metadata, &params); err != nil {
		return err
	}
	e.logger.Infof("Create Notion Page: demo mode (database=%s title=%q)", params.DatabaseID, params.Title)
	return nil
}

// TrelloCardExecutor is a demo-mode stub for the Trello integration.
type TrelloCardExecutor struct {
	logger *logrus.Logger
}

type trelloParams struct {
	ListID      string `json:"listId"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (e *TrelloCardExecutor) Name() string { return models.ActionTrelloCard }

func (e *TrelloCardExecutor) Execute(ctx context.Context, metadata map[string]interface{}, creds Credentials) error {
	var params trelloParams
	if err := decodeParams(metadata, &params); err != nil {
		return err
	}
	e.logger.Infof("Create Trello Card: demo mode (list=%s title=%q)", params.ListID, params.Title)
	return nil
}
