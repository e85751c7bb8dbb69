package service

import (
	"strconv"

	"github.com/notesync/auth-service/internal/domain"
)

// SettingDescription is the server side policy attached to a setting name.
type SettingDescription struct {
	EncryptionVersion domain.EncryptionVersion
	Sensitive         bool
	Permission        domain.PermissionName
}

var settingDescriptions = map[domain.SettingName]SettingDescription{
	domain.SettingMfaSecret:                    {EncryptionVersion: domain.EncryptionVersionDefault, Sensitive: true, Permission: domain.PermissionTwoFactorAuth},
	domain.SettingExtensionKey:                 {EncryptionVersion: domain.EncryptionVersionDefault},
	domain.SettingEmailBackupFrequency:         {EncryptionVersion: domain.EncryptionVersionUnencrypted, Permission: domain.PermissionDailyEmailBackup},
	domain.SettingMuteFailedBackupsEmails:      {EncryptionVersion: domain.EncryptionVersionUnencrypted},
	domain.SettingMuteFailedCloudBackupsEmails: {EncryptionVersion: domain.EncryptionVersionUnencrypted},
	domain.SettingMuteSignInEmails:             {EncryptionVersion: domain.EncryptionVersionUnencrypted},
	domain.SettingDropboxBackupToken:           {EncryptionVersion: domain.EncryptionVersionDefault, Sensitive: true, Permission: domain.PermissionDailyDropboxBackup},
	domain.SettingDropboxBackupFrequency:       {EncryptionVersion: domain.EncryptionVersionUnencrypted, Permission: domain.PermissionDailyDropboxBackup},
	domain.SettingGoogleDriveBackupToken:       {EncryptionVersion: domain.EncryptionVersionDefault, Sensitive: true, Permission: domain.PermissionDailyGDriveBackup},
	domain.SettingGoogleDriveBackupFrequency:   {EncryptionVersion: domain.EncryptionVersionUnencrypted, Permission: domain.PermissionDailyGDriveBackup},
	domain.SettingOneDriveBackupToken:          {EncryptionVersion: domain.EncryptionVersionDefault, Sensitive: true, Permission: domain.PermissionDailyOneDriveBackup},
	domain.SettingOneDriveBackupFrequency:      {EncryptionVersion: domain.EncryptionVersionUnencrypted, Permission: domain.PermissionDailyOneDriveBackup},
	domain.SettingListedAuthorSecrets:          {EncryptionVersion: domain.EncryptionVersionDefault, Sensitive: true},
	domain.SettingLogSessionUserAgent:          {EncryptionVersion: domain.EncryptionVersionUnencrypted},
}

// DescribeSetting falls back to encrypted and sensitive for names without an entry.
func DescribeSetting(name domain.SettingName) SettingDescription {
	if d, ok := settingDescriptions[name]; ok {
		return d
	}
	return SettingDescription{EncryptionVersion: domain.EncryptionVersionDefault, Sensitive: true}
}

// cloudBackupProviders maps backup token settings to the provider name carried by the event.
var cloudBackupProviders = map[domain.SettingName]string{
	domain.SettingDropboxBackupToken:     "DROPBOX",
	domain.SettingGoogleDriveBackupToken: "GOOGLE_DRIVE",
	domain.SettingOneDriveBackupToken:    "ONE_DRIVE",
}

const (
	muteEmailsValue = "muted"

	plusFileUploadLimit = 5 * 1024 * 1024 * 1024
	proFileUploadLimit  = 100 * 1024 * 1024 * 1024
)

type defaultSubscriptionSetting struct {
	Name  domain.SubscriptionSettingName
	Value string
	// KeepExisting leaves an already stored value alone, so usage counters
	// survive a renewal.
	KeepExisting bool
}

var subscriptionSettingDefaults = map[domain.SubscriptionName][]defaultSubscriptionSetting{
	domain.PlanCore: {},
	domain.PlanPlus: {
		{Name: domain.SubscriptionSettingFileUploadBytesLimit, Value: strconv.FormatInt(plusFileUploadLimit, 10)},
		{Name: domain.SubscriptionSettingFileUploadBytesUsed, Value: "0", KeepExisting: true},
	},
	domain.PlanPro: {
		{Name: domain.SubscriptionSettingFileUploadBytesLimit, Value: strconv.FormatInt(proFileUploadLimit, 10)},
		{Name: domain.SubscriptionSettingFileUploadBytesUsed, Value: "0", KeepExisting: true},
	},
}

// userSettingDefaults lists settings applied to a user when a plan is purchased.
// No plan ships user level defaults today.
var userSettingDefaults = map[domain.SubscriptionName][]SettingProps{
	domain.PlanCore: {},
	domain.PlanPlus: {},
	domain.PlanPro:  {},
}

var subscriptionSettingDescriptions = map[domain.SubscriptionSettingName]SettingDescription{
	domain.SubscriptionSettingFileUploadBytesLimit: {EncryptionVersion: domain.EncryptionVersionUnencrypted},
	domain.SubscriptionSettingFileUploadBytesUsed:  {EncryptionVersion: domain.EncryptionVersionUnencrypted},
}

func DescribeSubscriptionSetting(name domain.SubscriptionSettingName) SettingDescription {
	if d, ok := subscriptionSettingDescriptions[name]; ok {
		return d
	}
	return SettingDescription{EncryptionVersion: domain.EncryptionVersionDefault, Sensitive: true}
}
