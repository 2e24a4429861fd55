package repo

import (
	"droidfleet/backend/app/models"

	"gorm.io/gorm"
)

type ScriptRepository struct{ db *gorm.DB }

func NewScriptRepository(db *gorm.DB) *ScriptRepository { return &ScriptRepository{db: db} }

func (r *ScriptRepository) FindByID(id uint) (*models.Script, error) {
	var s models.Script
	if err := r.db.First(&s, id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *ScriptRepository) ListAll() ([]models.Script, error) {
	var out []models.Script
	return out, r.db.Find(&out).Error
}

func (r *ScriptRepository) Create(s *models.Script) error { return r.db.Create(s).Error }
