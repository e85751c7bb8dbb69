// Package event carries domain events between this service and the rest of the platform.
package event

import (
	"encoding/json"
	"fmt"
	"time"
)

type Type string

const (
	TypeUserRegistered                       Type = "USER_REGISTERED"
	TypeSubscriptionPurchased                Type = "SUBSCRIPTION_PURCHASED"
	TypeSubscriptionExpired                  Type = "SUBSCRIPTION_EXPIRED"
	TypeFileUploaded                         Type = "FILE_UPLOADED"
	TypeFileRemoved                          Type = "FILE_REMOVED"
	TypeSharedSubscriptionInvitationCreated  Type = "SHARED_SUBSCRIPTION_INVITATION_CREATED"
	TypeSharedSubscriptionInvitationAccepted Type = "SHARED_SUBSCRIPTION_INVITATION_ACCEPTED"
	TypeSharedSubscriptionInvitationCanceled Type = "SHARED_SUBSCRIPTION_INVITATION_CANCELED"
	TypeOfflineSubscriptionTokenCreated      Type = "OFFLINE_SUBSCRIPTION_TOKEN_CREATED"
	TypeAccountDeletionRequested             Type = "ACCOUNT_DELETION_REQUESTED"
	TypeEmailBackupRequested                 Type = "EMAIL_BACKUP_REQUESTED"
	TypeCloudBackupRequested                 Type = "CLOUD_BACKUP_REQUESTED"
)

const origin = "notesync-auth"

type Meta struct {
	Origin        string `json:"origin"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// Event is the wire envelope. Consumers must tolerate redelivery.
type Event struct {
	Type      Type            `json:"type"`
	CreatedAt time.Time       `json:"created_at"`
	Meta      Meta            `json:"meta"`
	Payload   json.RawMessage `json:"payload"`
}

func New(t Type, createdAt time.Time, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return Event{
		Type:      t,
		CreatedAt: createdAt.UTC(),
		Meta:      Meta{Origin: origin},
		Payload:   raw,
	}, nil
}

func (e Event) Decode(dst any) error {
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

func Parse(raw []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if e.Type == "" {
		return Event{}, fmt.Errorf("decode event: missing type")
	}
	return e, nil
}

type UserRegisteredPayload struct {
	UserUUID string `json:"user_uuid"`
	Email    string `json:"email"`
}

// SubscriptionPurchasedPayload timestamps are microseconds.
type SubscriptionPurchasedPayload struct {
	UserEmail             string `json:"user_email"`
	SubscriptionID        int64  `json:"subscription_id"`
	SubscriptionName      string `json:"subscription_name"`
	SubscriptionExpiresAt int64  `json:"subscription_expires_at"`
	Timestamp             int64  `json:"timestamp"`
	Offline               bool   `json:"offline"`
}

type SubscriptionExpiredPayload struct {
	UserEmail        string `json:"user_email"`
	SubscriptionID   int64  `json:"subscription_id"`
	SubscriptionName string `json:"subscription_name"`
	Timestamp        int64  `json:"timestamp"`
	Offline          bool   `json:"offline"`
}

type FileUploadedPayload struct {
	UserUUID     string `json:"user_uuid"`
	FilePath     string `json:"file_path"`
	FileName     string `json:"file_name"`
	FileByteSize int64  `json:"file_byte_size"`
}

type FileRemovedPayload struct {
	UserUUID     string `json:"user_uuid"`
	FilePath     string `json:"file_path"`
	FileName     string `json:"file_name"`
	FileByteSize int64  `json:"file_byte_size"`
}

type SharedSubscriptionInvitationPayload struct {
	InviterEmail                     string `json:"inviter_email"`
	InviterSubscriptionID            int64  `json:"inviter_subscription_id"`
	InviteeIdentifier                string `json:"invitee_identifier"`
	InviteeIdentifierType            string `json:"invitee_identifier_type"`
	SharedSubscriptionInvitationUUID string `json:"shared_subscription_invitation_uuid"`
}

type OfflineSubscriptionTokenCreatedPayload struct {
	Token string `json:"token"`
	Email string `json:"email"`
}

type AccountDeletionRequestedPayload struct {
	UserUUID                string `json:"user_uuid"`
	RegularSubscriptionUUID string `json:"regular_subscription_uuid,omitempty"`
}

type EmailBackupRequestedPayload struct {
	UserUUID              string `json:"user_uuid"`
	MuteEmailsSettingUUID string `json:"mute_emails_setting_uuid"`
	UserHasEmailsMuted    bool   `json:"user_has_emails_muted"`
}

type CloudBackupRequestedPayload struct {
	CloudProvider         string `json:"cloud_provider"`
	CloudProviderToken    string `json:"cloud_provider_token"`
	UserUUID              string `json:"user_uuid"`
	MuteEmailsSettingUUID string `json:"mute_emails_setting_uuid"`
	UserHasEmailsMuted    bool   `json:"user_has_emails_muted"`
}
