package domain

// Timestamps on subscription records are microseconds since the Unix epoch.

type UserSubscription struct {
	UUID             string           `gorm:"primaryKey;size:36" json:"uuid"`
	UserUUID         string           `gorm:"size:36;index;not null" json:"user_uuid"`
	PlanName         SubscriptionName `gorm:"size:64;not null" json:"plan_name"`
	SubscriptionType SubscriptionType `gorm:"size:16;not null;default:regular" json:"subscription_type"`
	SubscriptionID   int64            `gorm:"index" json:"subscription_id"`
	EndsAt           int64            `gorm:"not null" json:"ends_at"`
	Cancelled        bool             `gorm:"not null;default:false" json:"cancelled"`
	CreatedAt        int64            `gorm:"autoCreateTime:false" json:"created_at"`
	UpdatedAt        int64            `gorm:"autoUpdateTime:false" json:"updated_at"`
}

type OfflineUserSubscription struct {
	UUID           string           `gorm:"primaryKey;size:36" json:"uuid"`
	Email          string           `gorm:"size:255;index;not null" json:"email"`
	PlanName       SubscriptionName `gorm:"size:64;not null" json:"plan_name"`
	SubscriptionID int64            `gorm:"index" json:"subscription_id"`
	EndsAt         int64            `gorm:"not null" json:"ends_at"`
	Cancelled      bool             `gorm:"not null;default:false" json:"cancelled"`
	Roles          []Role           `gorm:"many2many:offline_user_roles" json:"roles,omitempty"`
	CreatedAt      int64            `gorm:"autoCreateTime:false" json:"created_at"`
	UpdatedAt      int64            `gorm:"autoUpdateTime:false" json:"updated_at"`
}

func (s *OfflineUserSubscription) HasRole(name RoleName) bool {
	for _, r := range s.Roles {
		if r.Name == name {
			return true
		}
	}
	return false
}

// OfflineSubscriptionToken grants dashboard access to an email without an account.
type OfflineSubscriptionToken struct {
	Token     string `json:"token"`
	Email     string `json:"email"`
	ExpiresAt int64  `json:"expires_at"`
}
