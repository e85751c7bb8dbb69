package domain

import "time"

type Session struct {
	UUID               string    `gorm:"primaryKey;size:36" json:"uuid"`
	UserUUID           string    `gorm:"size:36;index;not null" json:"user_uuid"`
	HashedAccessToken  string    `gorm:"size:128;not null" json:"-"`
	HashedRefreshToken string    `gorm:"size:128;uniqueIndex;not null" json:"-"`
	AccessExpiration   time.Time `gorm:"not null" json:"access_expiration"`
	RefreshExpiration  time.Time `gorm:"index;not null" json:"refresh_expiration"`
	APIVersion         string    `gorm:"size:16" json:"api_version"`
	UserAgent          string    `gorm:"size:512" json:"user_agent"`
	IP                 string    `gorm:"size:64" json:"ip"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
	Ephemeral          bool      `gorm:"-" json:"ephemeral"`
}

type RevokedSession struct {
	UUID      string    `gorm:"primaryKey;size:36" json:"uuid"`
	UserUUID  string    `gorm:"size:36;index;not null" json:"user_uuid"`
	Reason    string    `gorm:"size:64" json:"reason"`
	Received  bool      `gorm:"not null;default:false" json:"received"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

const (
	RevokeReasonSignOut       = "sign_out"
	RevokeReasonUserRevoked   = "user_revoked"
	RevokeReasonRevokeOthers  = "revoke_others"
	RevokeReasonReuseDetected = "reuse_detected"
	RevokeReasonAccountReset  = "account_reset"
	RevokeReasonAccountDelete = "account_deleted"
)
