package router

import (
	"net/http"

	"droidfleet/backend/app/controllers"
	"droidfleet/backend/app/middleware"
)

func NewRouter(authCtrl *controllers.AuthController, deviceCtrl *controllers.DeviceController, taskCtrl *controllers.TaskController, queueCtrl *controllers.QueueController, catalogCtrl *controllers.CatalogController, mw *middleware.Auth) http.Handler {
	mux := http.NewServeMux()

	// public
	mux.HandleFunc("POST /api/login", authCtrl.Login)
	mux.HandleFunc("POST /api/device/register", deviceCtrl.Register)

	// device endpoints (device or operator token)
	mux.Handle("POST /api/device/heartbeat", mw.RequireAuth(http.HandlerFunc(deviceCtrl.Heartbeat)))
	mux.Handle("GET /api/device/poll", mw.RequireAuth(http.HandlerFunc(deviceCtrl.Poll)))
	mux.Handle("POST /api/device/report", mw.RequireAuth(http.HandlerFunc(taskCtrl.Report)))

	// operator endpoints
	mux.Handle("POST /api/tasks", mw.RequireAdmin(http.HandlerFunc(taskCtrl.Create)))
	mux.Handle("GET /api/tasks/{id}", mw.RequireAdmin(http.HandlerFunc(taskCtrl.Get)))
	mux.Handle("POST /api/tasks/{id}/pause", mw.RequireAdmin(http.HandlerFunc(taskCtrl.Pause)))
	mux.Handle("POST /api/tasks/{id}/resume", mw.RequireAdmin(http.HandlerFunc(taskCtrl.Resume)))
	mux.Handle("POST /api/tasks/{id}/cancel", mw.RequireAdmin(http.HandlerFunc(taskCtrl.Cancel)))
	mux.Handle("POST /api/tasks/{id}/retry", mw.RequireAdmin(http.HandlerFunc(taskCtrl.Retry)))

	mux.Handle("GET /api/devices", mw.RequireAdmin(http.HandlerFunc(deviceCtrl.List)))
	mux.Handle("GET /api/devices/{code}/metrics", mw.RequireAdmin(http.HandlerFunc(deviceCtrl.Metrics)))
	mux.Handle("GET /api/devices/{code}/queue", mw.RequireAdmin(http.HandlerFunc(queueCtrl.Preview)))
	mux.Handle("POST /api/devices/{code}/queue/clear", mw.RequireAdmin(http.HandlerFunc(queueCtrl.Clear)))

	mux.Handle("POST /api/scripts", mw.RequireAdmin(http.HandlerFunc(catalogCtrl.CreateScript)))
	mux.Handle("GET /api/scripts", mw.RequireAdmin(http.HandlerFunc(catalogCtrl.ListScripts)))
	mux.Handle("GET /api/scripts/{id}", mw.RequireAdmin(http.HandlerFunc(catalogCtrl.GetScript)))
	mux.Handle("POST /api/groups", mw.RequireAdmin(http.HandlerFunc(catalogCtrl.CreateGroup)))
	mux.Handle("GET /api/groups", mw.RequireAdmin(http.HandlerFunc(catalogCtrl.ListGroups)))
	mux.Handle("GET /api/groups/{id}/tasks", mw.RequireAdmin(http.HandlerFunc(catalogCtrl.GroupTasks)))

	mux.Handle("POST /api/instructions", mw.RequireAdmin(http.HandlerFunc(queueCtrl.Enqueue)))
	mux.Handle("POST /api/instructions/{id}/cancel", mw.RequireAdmin(http.HandlerFunc(queueCtrl.Cancel)))
	mux.Handle("GET /api/instructions/{id}/status", mw.RequireAdmin(http.HandlerFunc(queueCtrl.Status)))

	return mux
}
