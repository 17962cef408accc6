package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"datalake-export-scheduler/internal/models"
)

// ExportService drives the periodic export: for every configured blueprint
// it fetches the blueprint document, reconciles the destination table schema
// and streams entity pages into the table. One blueprint failing never stops
// the others.
type ExportService struct {
	catalog    Catalog
	warehouse  Warehouse
	schema     *SchemaService
	migration  *MigrationService
	blueprints []models.BlueprintConfig

	isRunning         bool
	mutex             sync.RWMutex
	cron              *cron.Cron
	cronSchedule      string
	updateConcurrency int
	status            map[string]*models.ExportStatus
	lastRunTime       time.Time
	nextRunTime       time.Time

	log *zap.SugaredLogger
}

// NewExportService creates a new export service.
func NewExportService(
	catalog Catalog,
	warehouse Warehouse,
	schema *SchemaService,
	migration *MigrationService,
	blueprints []models.BlueprintConfig,
	cronSchedule string,
	updateConcurrency int,
	log *zap.SugaredLogger,
) *ExportService {
	return &ExportService{
		catalog:           catalog,
		warehouse:         warehouse,
		schema:            schema,
		migration:         migration,
		blueprints:        blueprints,
		cron:              cron.New(),
		cronSchedule:      cronSchedule,
		updateConcurrency: updateConcurrency,
		status:            make(map[string]*models.ExportStatus),
		log:               log,
	}
}

// Start schedules the export loop and kicks off an immediate first run.
func (s *ExportService) Start() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.isRunning {
		return fmt.Errorf("export already running")
	}

	s.log.Infow("Starting export service", "schedule", s.cronSchedule)

	entryID, err := s.cron.AddFunc(s.cronSchedule, func() {
		s.mutex.Lock()
		s.lastRunTime = time.Now()
		s.mutex.Unlock()

		s.log.Infow("Cron triggered", "at", time.Now().Format(time.RFC3339))
		s.exportAll(context.Background())
	})
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.cron.Start()
	s.isRunning = true

	entries := s.cron.Entries()
	if len(entries) > 0 {
		s.nextRunTime = entries[0].Next
		s.log.Infow("Next export scheduled", "at", s.nextRunTime.Format(time.RFC3339))
	}

	s.log.Infow("Export service started", "entryID", entryID)

	// Run immediately on start
	go func() {
		s.log.Info("Running initial export...")
		s.exportAll(context.Background())

		s.mutex.Lock()
		entries := s.cron.Entries()
		if len(entries) > 0 {
			s.nextRunTime = entries[0].Next
		}
		s.mutex.Unlock()
	}()

	return nil
}

// Stop halts the schedule and waits for a running export cycle to finish.
func (s *ExportService) Stop() error {
	s.mutex.Lock()
	if !s.isRunning {
		s.mutex.Unlock()
		return fmt.Errorf("export is not running")
	}
	ctx := s.cron.Stop()
	s.isRunning = false
	s.mutex.Unlock()

	// A running cycle records status under the mutex, so wait for it to
	// finish without holding the lock.
	<-ctx.Done()

	s.log.Info("Export service stopped")
	return nil
}

func (s *ExportService) IsRunning() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.isRunning
}

// exportAll exports every configured blueprint in sequence. Failures are
// recorded in the per-blueprint status and the loop continues.
func (s *ExportService) exportAll(ctx context.Context) {
	s.log.Infow("Starting export cycle", "blueprints", len(s.blueprints))

	for _, cfg := range s.blueprints {
		if err := s.exportBlueprint(ctx, cfg); err != nil {
			s.log.Errorw("Export failed for blueprint", "blueprint", cfg.Identifier, "error", err)
			continue
		}
	}

	s.log.Info("Export cycle completed")
}

// exportBlueprint runs one blueprint end to end: blueprint fetch → schema
// derivation → table reconciliation → paged entity reconciliation.
func (s *ExportService) exportBlueprint(ctx context.Context, cfg models.BlueprintConfig) error {
	// Cancelling on return releases the entity page producer when the
	// export aborts mid-stream.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runID := uuid.New().String()
	s.log.Infow("Exporting blueprint", "blueprint", cfg.Identifier, "runID", runID)
	s.setStatus(cfg.Identifier, &models.ExportStatus{
		Blueprint:   cfg.Identifier,
		RunID:       runID,
		Status:      "exporting",
		LastRunTime: time.Now(),
	})

	blueprint, err := s.catalog.GetBlueprint(ctx, cfg.Identifier)
	if err != nil {
		s.failStatus(cfg.Identifier, err)
		return fmt.Errorf("failed to fetch blueprint: %w", err)
	}

	columns := s.schema.DeriveSchema(blueprint)

	outcome, err := s.migration.Reconcile(ctx, cfg.Identifier, columns)
	if err != nil {
		s.failStatus(cfg.Identifier, err)
		return fmt.Errorf("failed to reconcile table: %w", err)
	}
	s.updateStatus(cfg.Identifier, func(st *models.ExportStatus) {
		st.Migration = string(outcome.Action)
	})

	var total, inserted, updated int
	pages, errCh := s.catalog.SearchEntities(ctx, cfg.Identifier, cfg.SearchQuery, cfg.IncludeEntities, cfg.ExcludeEntities)
	for page := range pages {
		if len(page) == 0 {
			continue
		}
		ins, upd, err := s.reconcileRows(ctx, cfg.Identifier, page)
		if err != nil {
			s.failStatus(cfg.Identifier, err)
			return fmt.Errorf("failed to reconcile rows: %w", err)
		}
		total += len(page)
		inserted += ins
		updated += upd
		s.log.Infow("Exported entities so far", "blueprint", cfg.Identifier, "total", total)
	}
	if err := <-errCh; err != nil {
		s.failStatus(cfg.Identifier, err)
		return fmt.Errorf("entity search failed: %w", err)
	}

	s.updateStatus(cfg.Identifier, func(st *models.ExportStatus) {
		st.Status = "success"
		st.TotalEntities = total
		st.Inserted = inserted
		st.Updated = updated
		st.ErrorMessage = ""
	})

	if total > 0 {
		s.log.Infow("Completed blueprint export", "blueprint", cfg.Identifier, "entities", total, "inserted", inserted, "updated", updated)
	} else {
		s.log.Infow("No entities found for blueprint", "blueprint", cfg.Identifier)
	}
	return nil
}

// TriggerExport runs one export cycle outside the schedule.
func (s *ExportService) TriggerExport() error {
	s.log.Info("Manual export triggered")
	s.exportAll(context.Background())
	return nil
}

// UpdateConfig adjusts the schedule and update fan-out at runtime.
func (s *ExportService) UpdateConfig(cronSchedule string, updateConcurrency int) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	needsRestart := false

	if cronSchedule != "" && cronSchedule != s.cronSchedule {
		s.cronSchedule = cronSchedule
		needsRestart = s.isRunning
	}

	if updateConcurrency > 0 {
		s.updateConcurrency = updateConcurrency
	}

	s.log.Infow("Configuration updated", "schedule", s.cronSchedule, "updateConcurrency", s.updateConcurrency)

	if needsRestart {
		s.log.Info("Schedule changed - restart service to apply new schedule")
	}

	return nil
}

// GetStatus reports the service state and the latest run of each blueprint.
func (s *ExportService) GetStatus() map[string]interface{} {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	statusCopy := make(map[string]models.ExportStatus)
	for k, v := range s.status {
		if v != nil {
			statusCopy[k] = *v
		}
	}

	var lastRun, nextRun string
	if !s.lastRunTime.IsZero() {
		lastRun = s.lastRunTime.Format(time.RFC3339)
	}
	if !s.nextRunTime.IsZero() {
		nextRun = s.nextRunTime.Format(time.RFC3339)
	}

	return map[string]interface{}{
		"isRunning":         s.isRunning,
		"cronSchedule":      s.cronSchedule,
		"migrationPolicy":   string(s.migration.policy),
		"updateConcurrency": s.updateConcurrency,
		"lastRun":           lastRun,
		"nextRun":           nextRun,
		"blueprints":        statusCopy,
	}
}

func (s *ExportService) setStatus(blueprint string, st *models.ExportStatus) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.status[blueprint] = st
}

func (s *ExportService) updateStatus(blueprint string, apply func(*models.ExportStatus)) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.status[blueprint] == nil {
		s.status[blueprint] = &models.ExportStatus{Blueprint: blueprint}
	}
	apply(s.status[blueprint])
}

func (s *ExportService) failStatus(blueprint string, err error) {
	s.updateStatus(blueprint, func(st *models.ExportStatus) {
		st.Status = "error"
		st.ErrorMessage = err.Error()
	})
}
