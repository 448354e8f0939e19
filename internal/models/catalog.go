package models

import "gorm.io/gorm"

// Trigger-type catalog names.
const (
	TriggerWebhook     = "Webhook"
	TriggerSchedule    = "Schedule (Cron)"
	TriggerEmail       = "New Email Received"
	TriggerForm        = "New Form Submission"
	TriggerSpreadsheet = "New Row in Spreadsheet"
	TriggerDriveFile   = "New File in Drive"
)

// Action-type catalog names.
const (
	ActionSendEmail      = "Send Email"
	ActionSendSlack      = "Send Slack Message"
	ActionSpreadsheetRow = "Create Spreadsheet Row"
	ActionSendDiscord    = "Send Discord Message"
	ActionNotionPage     = "Create Notion Page"
	ActionSendSMS        = "Send SMS"
	ActionHTTPRequest    = "HTTP Request"
	ActionTrelloCard     = "Create Trello Card"
)

// CatalogTriggers returns the fixed trigger catalog in seed order.
func CatalogTriggers() []string {
	return []string{
		TriggerWebhook, TriggerSchedule, TriggerEmail,
		TriggerForm, TriggerSpreadsheet, TriggerDriveFile,
	}
}

// CatalogActions returns the fixed action catalog in seed order.
func CatalogActions() []string {
	return []string{
		ActionSendEmail, ActionSendSlack, ActionSpreadsheetRow,
		ActionSendDiscord, ActionNotionPage, ActionSendSMS,
		ActionHTTPRequest, ActionTrelloCard,
	}
}

// SeedCatalogs upserts the fixed trigger/action catalogs. Idempotent; safe to
// run at every boot.
func SeedCatalogs(db *gorm.DB) error {
	for _, name := range CatalogTriggers() {
		if err := db.Where(AvailableTrigger{Name: name}).
			FirstOrCreate(&AvailableTrigger{Name: name}).Error; err != nil {
			return err
		}
	}
	for _, name := range CatalogActions() {
		if err := db.Where(AvailableAction{Name: name}).
			FirstOrCreate(&AvailableAction{Name: name}).Error; err != nil {
			return err
		}
	}
	return nil
}
