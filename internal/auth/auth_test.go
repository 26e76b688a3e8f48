package auth

import (
	"context"
	"sync"

	"github.com/simonsobs/soauth/internal/models"

	"github.com/google/uuid"
)

// fakeDirectory is an in-memory UserDirectory that records org syncs.
type fakeDirectory struct {
	mu      sync.Mutex
	users   map[string]*models.User
	synced  map[string][]string
	syncErr error
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		users:  make(map[string]*models.User),
		synced: make(map[string][]string),
	}
}

func (d *fakeDirectory) UpsertExternalUser(
	ctx context.Context,
	in *models.User,
) (*models.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := in.Provider + ":" + in.ExternalID
	if existing, ok := d.users[key]; ok {
		existing.Username = in.Username
		existing.Email = in.Email
		existing.FullName = in.FullName
		if in.GitHubToken != "" {
			existing.GitHubToken = in.GitHubToken
		}
		return existing, nil
	}

	user := *in
	user.ID = uuid.New().String()
	if user.Grants == nil {
		user.Grants = models.NewGrantSet()
	}
	d.users[key] = &user
	return &user, nil
}

func (d *fakeDirectory) SyncOrganizations(
	ctx context.Context,
	user *models.User,
	provider string,
	memberships []string,
) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.syncErr != nil {
		return d.syncErr
	}
	d.synced[user.ID] = append([]string(nil), memberships...)
	return nil
}
