package domain

// FeatureDescription is derived per request from subscriptions and roles. It is never persisted.
type FeatureDescription struct {
	Identifier     string         `json:"identifier"`
	Name           string         `json:"name"`
	PermissionName PermissionName `json:"permission_name"`
	ExpiresAt      int64          `json:"expires_at"`
	RoleName       RoleName       `json:"role_name"`
}
