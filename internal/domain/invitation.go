package domain

type InvitationStatus string

const (
	InvitationStatusSent     InvitationStatus = "sent"
	InvitationStatusAccepted InvitationStatus = "accepted"
	InvitationStatusDeclined InvitationStatus = "declined"
	InvitationStatusCanceled InvitationStatus = "canceled"
)

// CanTransitionTo reports whether an invitation may move from s to next. Only a
// sent invitation can be answered, and an accepted one can still be canceled by
// its inviter. Declined and canceled invitations are final.
func (s InvitationStatus) CanTransitionTo(next InvitationStatus) bool {
	switch s {
	case InvitationStatusSent:
		return next == InvitationStatusAccepted || next == InvitationStatusDeclined || next == InvitationStatusCanceled
	case InvitationStatusAccepted:
		return next == InvitationStatusCanceled
	default:
		return false
	}
}

type InviteeIdentifierType string

const (
	IdentifierTypeEmail InviteeIdentifierType = "email"
	IdentifierTypeUUID  InviteeIdentifierType = "uuid"
	IdentifierTypeHash  InviteeIdentifierType = "hash"
)

type SharedSubscriptionInvitation struct {
	UUID                  string                `gorm:"primaryKey;size:36" json:"uuid"`
	SubscriptionID        int64                 `gorm:"index;not null" json:"subscription_id"`
	InviterIdentifier     string                `gorm:"size:255;index;not null" json:"inviter_identifier"`
	InviterIdentifierType InviteeIdentifierType `gorm:"size:16;not null" json:"inviter_identifier_type"`
	InviteeIdentifier     string                `gorm:"size:255;index;not null" json:"invitee_identifier"`
	InviteeIdentifierType InviteeIdentifierType `gorm:"size:16;not null" json:"invitee_identifier_type"`
	Status                InvitationStatus      `gorm:"size:16;index;not null" json:"status"`
	CreatedAt             int64                 `gorm:"autoCreateTime:false" json:"created_at"`
	UpdatedAt             int64                 `gorm:"autoUpdateTime:false" json:"updated_at"`
}
