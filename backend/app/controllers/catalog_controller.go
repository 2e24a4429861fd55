package controllers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"droidfleet/backend/app/models"
	"droidfleet/backend/app/repo"
	"droidfleet/backend/app/services"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// CatalogController manages the script and group catalogs tasks draw
// their targets and payloads from.
type CatalogController struct {
	Scripts *repo.ScriptRepository
	Groups  *repo.GroupRepository
	Queue   *services.InstructionQueueService
}

func NewCatalogController(scripts *repo.ScriptRepository, groups *repo.GroupRepository, queue *services.InstructionQueueService) *CatalogController {
	return &CatalogController{Scripts: scripts, Groups: groups, Queue: queue}
}

func (c *CatalogController) CreateScript(w http.ResponseWriter, r *http.Request) {
	var s models.Script
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil || s.Name == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.ID = 0
	if err := c.Scripts.Create(&s); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

func (c *CatalogController) ListScripts(w http.ResponseWriter, r *http.Request) {
	scripts, err := c.Scripts.ListAll()
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, scripts)
}

func (c *CatalogController) GetScript(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	script, err := c.Scripts.FindByID(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, errors.Wrapf(services.ErrScriptNotFound, "script %d", id))
		} else {
			w.WriteHeader(http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, script)
}

func (c *CatalogController) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var g models.DeviceGroup
	if err := json.NewDecoder(r.Body).Decode(&g); err != nil || g.Name == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	g.ID = 0
	if err := c.Groups.Create(&g); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (c *CatalogController) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := c.Groups.ListAll()
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

// GroupTasks returns the recent task IDs dispatched to the group.
func (c *CatalogController) GroupTasks(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if _, err := c.Groups.FindByID(uint(id)); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, errors.Wrapf(services.ErrGroupNotFound, "group %d", id))
		} else {
			w.WriteHeader(http.StatusInternalServerError)
		}
		return
	}
	limit := int64(20)
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.ParseInt(l, 10, 64); err == nil && n > 0 {
			limit = n
		}
	}
	ids, err := c.Queue.GroupTasks(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task_ids": ids})
}
