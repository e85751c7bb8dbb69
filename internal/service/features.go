package service

import "github.com/notesync/auth-service/internal/domain"

type featureInfo struct {
	Identifier string
	Name       string
}

var featureCatalogue = map[domain.PermissionName]featureInfo{
	domain.PermissionMarkdownEditor:       {Identifier: "org.notesync.advanced-markdown-editor", Name: "Advanced Markdown"},
	domain.PermissionCodeEditor:           {Identifier: "org.notesync.code-editor", Name: "Code Editor"},
	domain.PermissionSpreadsheetEditor:    {Identifier: "org.notesync.standard-sheets", Name: "Spreadsheet"},
	domain.PermissionTaskEditor:           {Identifier: "org.notesync.simple-task-editor", Name: "Checklist"},
	domain.PermissionFocusMode:            {Identifier: "org.notesync.focus-mode", Name: "Focus Mode"},
	domain.PermissionFiles:                {Identifier: "org.notesync.files", Name: "Files"},
	domain.PermissionNoteHistory30Days:    {Identifier: "org.notesync.note-history-30", Name: "Note History (30 days)"},
	domain.PermissionNoteHistory365Days:   {Identifier: "org.notesync.note-history-365", Name: "Note History (1 year)"},
	domain.PermissionNoteHistoryUnlimited: {Identifier: "org.notesync.note-history-unlimited", Name: "Note History (unlimited)"},
	domain.PermissionTwoFactorAuth:        {Identifier: "org.notesync.two-factor-auth", Name: "Two-factor Authentication"},
	domain.PermissionDailyEmailBackup:     {Identifier: "org.notesync.daily-email-backup", Name: "Daily Email Backup"},
	domain.PermissionDailyDropboxBackup:   {Identifier: "org.notesync.daily-dropbox-backup", Name: "Daily Dropbox Backup"},
	domain.PermissionDailyGDriveBackup:    {Identifier: "org.notesync.daily-gdrive-backup", Name: "Daily Google Drive Backup"},
	domain.PermissionDailyOneDriveBackup:  {Identifier: "org.notesync.daily-onedrive-backup", Name: "Daily OneDrive Backup"},
	domain.PermissionListedCustomDomain:   {Identifier: "org.notesync.listed-custom-domain", Name: "Listed Custom Domain"},
}
