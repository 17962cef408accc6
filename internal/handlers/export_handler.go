package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"datalake-export-scheduler/internal/services"
)

// Handler holds service dependencies
type Handler struct {
	exportService *services.ExportService
}

func NewHandler(exportService *services.ExportService) *Handler {
	return &Handler{
		exportService: exportService,
	}
}

type Response struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp string      `json:"timestamp,omitempty"`
	Error     string      `json:"error,omitempty"`
}

type ConfigRequest struct {
	CronSchedule      string `json:"cronSchedule,omitempty"`
	UpdateConcurrency int    `json:"updateConcurrency,omitempty"`
}

func (h *Handler) StartExportHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		sendErrorResponse(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	err := h.exportService.Start()
	if err != nil {
		sendErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	sendSuccessResponse(w, "Export service started", nil)
}

func (h *Handler) StopExportHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		sendErrorResponse(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	err := h.exportService.Stop()
	if err != nil {
		sendErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	sendSuccessResponse(w, "Export service stopped", nil)
}

func (h *Handler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendErrorResponse(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := h.exportService.GetStatus()
	sendSuccessResponse(w, "", status)
}

func (h *Handler) ConfigHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		sendErrorResponse(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var configReq ConfigRequest
	err := json.NewDecoder(r.Body).Decode(&configReq)
	if err != nil {
		sendErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	err = h.exportService.UpdateConfig(configReq.CronSchedule, configReq.UpdateConcurrency)
	if err != nil {
		sendErrorResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}

	status := h.exportService.GetStatus()
	sendSuccessResponse(w, "Configuration updated", status)
}

func (h *Handler) TriggerExportHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		sendErrorResponse(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	err := h.exportService.TriggerExport()
	if err != nil {
		sendErrorResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}

	sendSuccessResponse(w, "Export cycle completed", nil)
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	sendSuccessResponse(w, "Service is running", nil)
}

func (h *Handler) RootHandler(w http.ResponseWriter, r *http.Request) {
	endpoints := map[string]string{
		"health":        "GET /health",
		"startExport":   "POST /api/export/start",
		"stopExport":    "POST /api/export/stop",
		"status":        "GET /api/export/status",
		"updateConfig":  "PUT /api/export/config",
		"triggerExport": "POST /api/export/trigger",
	}

	response := Response{
		Success: true,
		Message: "Catalog Datalake Export Scheduler with Auto Schema Migration",
		Data:    map[string]interface{}{"endpoints": endpoints},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func sendSuccessResponse(w http.ResponseWriter, message string, data interface{}) {
	response := Response{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

func sendErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	response := Response{
		Success: false,
		Error:   message,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}
