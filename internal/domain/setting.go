package domain

import "fmt"

// EncryptionVersion tags how a stored setting value was written.
type EncryptionVersion int

const (
	EncryptionVersionUnencrypted EncryptionVersion = 0
	EncryptionVersionDefault     EncryptionVersion = 1
)

func (v EncryptionVersion) Valid() bool {
	switch v {
	case EncryptionVersionUnencrypted, EncryptionVersionDefault:
		return true
	default:
		return false
	}
}

func (v EncryptionVersion) String() string {
	switch v {
	case EncryptionVersionUnencrypted:
		return "unencrypted"
	case EncryptionVersionDefault:
		return "default"
	default:
		return fmt.Sprintf("unknown(%d)", int(v))
	}
}

type SettingName string

const (
	SettingMfaSecret                    SettingName = "MFA_SECRET"
	SettingExtensionKey                 SettingName = "EXTENSION_KEY"
	SettingEmailBackupFrequency         SettingName = "EMAIL_BACKUP_FREQUENCY"
	SettingMuteFailedBackupsEmails      SettingName = "MUTE_FAILED_BACKUPS_EMAILS"
	SettingMuteFailedCloudBackupsEmails SettingName = "MUTE_FAILED_CLOUD_BACKUPS_EMAILS"
	SettingMuteSignInEmails             SettingName = "MUTE_SIGN_IN_EMAILS"
	SettingDropboxBackupToken           SettingName = "DROPBOX_BACKUP_TOKEN"
	SettingDropboxBackupFrequency       SettingName = "DROPBOX_BACKUP_FREQUENCY"
	SettingGoogleDriveBackupToken       SettingName = "GOOGLE_DRIVE_BACKUP_TOKEN"
	SettingGoogleDriveBackupFrequency   SettingName = "GOOGLE_DRIVE_BACKUP_FREQUENCY"
	SettingOneDriveBackupToken          SettingName = "ONE_DRIVE_BACKUP_TOKEN"
	SettingOneDriveBackupFrequency      SettingName = "ONE_DRIVE_BACKUP_FREQUENCY"
	SettingListedAuthorSecrets          SettingName = "LISTED_AUTHOR_SECRETS"
	SettingLogSessionUserAgent          SettingName = "LOG_SESSION_USER_AGENT"
)

type SubscriptionSettingName string

const (
	SubscriptionSettingFileUploadBytesUsed  SubscriptionSettingName = "FILE_UPLOAD_BYTES_USED"
	SubscriptionSettingFileUploadBytesLimit SubscriptionSettingName = "FILE_UPLOAD_BYTES_LIMIT"
)

// Setting timestamps are microseconds since the Unix epoch.
type Setting struct {
	UUID                    string            `gorm:"primaryKey;size:36" json:"uuid"`
	Name                    SettingName       `gorm:"size:64;not null;uniqueIndex:idx_settings_name_user" json:"name"`
	Value                   *string           `gorm:"type:text" json:"value"`
	ServerEncryptionVersion EncryptionVersion `gorm:"not null;default:0" json:"server_encryption_version"`
	Sensitive               bool              `gorm:"not null;default:false" json:"sensitive"`
	UserUUID                string            `gorm:"size:36;not null;uniqueIndex:idx_settings_name_user" json:"user_uuid"`
	CreatedAt               int64             `gorm:"autoCreateTime:false" json:"created_at"`
	UpdatedAt               int64             `gorm:"autoUpdateTime:false" json:"updated_at"`
}

type SubscriptionSetting struct {
	UUID                    string                  `gorm:"primaryKey;size:36" json:"uuid"`
	Name                    SubscriptionSettingName `gorm:"size:64;not null;uniqueIndex:idx_subscription_settings_name_sub" json:"name"`
	Value                   *string                 `gorm:"type:text" json:"value"`
	ServerEncryptionVersion EncryptionVersion       `gorm:"not null;default:0" json:"server_encryption_version"`
	Sensitive               bool                    `gorm:"not null;default:false" json:"sensitive"`
	UserSubscriptionUUID    string                  `gorm:"size:36;not null;uniqueIndex:idx_subscription_settings_name_sub" json:"user_subscription_uuid"`
	CreatedAt               int64                   `gorm:"autoCreateTime:false" json:"created_at"`
	UpdatedAt               int64                   `gorm:"autoUpdateTime:false" json:"updated_at"`
}
