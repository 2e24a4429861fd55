package repo

import (
	"droidfleet/backend/app/models"

	"gorm.io/gorm"
)

type GroupRepository struct{ db *gorm.DB }

func NewGroupRepository(db *gorm.DB) *GroupRepository { return &GroupRepository{db: db} }

func (r *GroupRepository) FindByID(id uint) (*models.DeviceGroup, error) {
	var g models.DeviceGroup
	if err := r.db.First(&g, id).Error; err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *GroupRepository) ListAll() ([]models.DeviceGroup, error) {
	var out []models.DeviceGroup
	return out, r.db.Find(&out).Error
}

func (r *GroupRepository) Create(g *models.DeviceGroup) error { return r.db.Create(g).Error }
