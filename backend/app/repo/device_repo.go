package repo

import (
	"droidfleet/backend/app/models"

	"gorm.io/gorm"
)

type DeviceRepository struct{ db *gorm.DB }

func NewDeviceRepository(db *gorm.DB) *DeviceRepository { return &DeviceRepository{db: db} }

func (r *DeviceRepository) FindByCode(code string) (*models.Device, error) {
	var d models.Device
	if err := r.db.Where("code = ?", code).First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *DeviceRepository) FindByID(id uint) (*models.Device, error) {
	var d models.Device
	if err := r.db.First(&d, id).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *DeviceRepository) FindByIDs(ids []uint) ([]models.Device, error) {
	var out []models.Device
	if len(ids) == 0 {
		return out, nil
	}
	return out, r.db.Where("id IN ?", ids).Find(&out).Error
}

func (r *DeviceRepository) ListAll() ([]models.Device, error) {
	var out []models.Device
	return out, r.db.Find(&out).Error
}

func (r *DeviceRepository) ListByGroup(groupID uint) ([]models.Device, error) {
	var out []models.Device
	return out, r.db.Where("group_id = ?", groupID).Find(&out).Error
}

func (r *DeviceRepository) Upsert(d *models.Device) error {
	var existing models.Device
	if err := r.db.Where("code = ?", d.Code).First(&existing).Error; err == nil {
		d.ID = existing.ID
		d.CreatedAt = existing.CreatedAt
		return r.db.Save(d).Error
	}
	return r.db.Create(d).Error
}
