package store

import (
	"github.com/simonsobs/soauth/internal/models"
)

// App operations
func (s *Store) CreateApp(app *models.App) error {
	return s.db.Create(app).Error
}

func (s *Store) GetApp(id string) (*models.App, error) {
	var app models.App
	if err := s.first(&app, "id = ?", id); err != nil {
		return nil, err
	}
	return &app, nil
}

// GetManagedApp returns the server's own app.
func (s *Store) GetManagedApp() (*models.App, error) {
	var app models.App
	if err := s.first(&app, "managed = ?", true); err != nil {
		return nil, err
	}
	return &app, nil
}

func (s *Store) ListApps() ([]models.App, error) {
	var apps []models.App
	if err := s.db.Order("created_at DESC").Find(&apps).Error; err != nil {
		return nil, err
	}
	return apps, nil
}

func (s *Store) ListAppsByOwner(ownerID string) ([]models.App, error) {
	var apps []models.App
	if err := s.db.Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&apps).Error; err != nil {
		return nil, err
	}
	return apps, nil
}

// GetAppsByIDs returns the apps with the given ids keyed by id.
func (s *Store) GetAppsByIDs(ids []string) (map[string]*models.App, error) {
	if len(ids) == 0 {
		return make(map[string]*models.App), nil
	}

	var apps []models.App
	if err := s.db.Where("id IN ?", ids).Find(&apps).Error; err != nil {
		return nil, err
	}

	appMap := make(map[string]*models.App, len(apps))
	for i := range apps {
		appMap[apps[i].ID] = &apps[i]
	}
	return appMap, nil
}

func (s *Store) UpdateApp(app *models.App) error {
	return s.db.Save(app).Error
}

// DeleteApp removes an app together with its refresh records and login requests.
func (s *Store) DeleteApp(id string) error {
	return s.RunInTransaction(func(tx *Store) error {
		if err := tx.db.Where("app_id = ?", id).Delete(&models.RefreshRecord{}).Error; err != nil {
			return err
		}
		if err := tx.db.Where("app_id = ?", id).Delete(&models.LoginRequest{}).Error; err != nil {
			return err
		}
		res := tx.db.Where("id = ?", id).Delete(&models.App{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrRecordNotFound
		}
		return nil
	})
}
