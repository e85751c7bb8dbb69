package app

import (
	"github.com/notesync/auth-service/internal/repository"
	"github.com/notesync/auth-service/internal/service"
)

// Maintenance is the slice of the object graph the offline CLI commands need.
// It opens the stores but starts no listeners or subscribers.
type Maintenance struct {
	Sessions    *service.SessionManager
	Users       repository.UserRepository
	Features    *service.FeatureService
	Permissions repository.PermissionRepository
}
