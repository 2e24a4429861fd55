package repo

import (
	"time"

	"droidfleet/backend/app/models"

	"gorm.io/gorm"
)

type TaskRepository struct{ db *gorm.DB }

func NewTaskRepository(db *gorm.DB) *TaskRepository { return &TaskRepository{db: db} }

func (r *TaskRepository) Create(t *models.Task) error { return r.db.Create(t).Error }

func (r *TaskRepository) Save(t *models.Task) error { return r.db.Save(t).Error }

func (r *TaskRepository) FindByID(id uint) (*models.Task, error) {
	var t models.Task
	if err := r.db.First(&t, id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// FindDueScheduled returns tasks waiting on a scheduled time that has
// arrived. Retried tasks re-enter this set through their reset
// scheduled time.
func (r *TaskRepository) FindDueScheduled(now time.Time) ([]models.Task, error) {
	var out []models.Task
	err := r.db.
		Where("status IN ?", []models.TaskStatus{models.TaskPending, models.TaskScheduled}).
		Where("scheduled_time IS NOT NULL AND scheduled_time <= ?", now).
		Find(&out).Error
	return out, err
}

// FindActiveRecurring returns recurring tasks that are still eligible
// for cron triggering (not cancelled, not paused).
func (r *TaskRepository) FindActiveRecurring() ([]models.Task, error) {
	var out []models.Task
	err := r.db.
		Where("task_type = ?", models.TaskTypeRecurring).
		Where("status NOT IN ?", []models.TaskStatus{models.TaskCancelled, models.TaskPaused}).
		Find(&out).Error
	return out, err
}

func (r *TaskRepository) ListByStatus(status models.TaskStatus) ([]models.Task, error) {
	var out []models.Task
	return out, r.db.Where("status = ?", status).Find(&out).Error
}
