package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"datalake-export-scheduler/internal/models"
)

// MigrationService reconciles a derived destination schema against the live
// table under the configured policy. Columns are matched by name only; a
// type change on a pre-existing column is never detected or applied.
type MigrationService struct {
	warehouse Warehouse
	policy    models.MigrationPolicy
	log       *zap.SugaredLogger
}

func NewMigrationService(warehouse Warehouse, policy models.MigrationPolicy, log *zap.SugaredLogger) *MigrationService {
	return &MigrationService{
		warehouse: warehouse,
		policy:    policy,
		log:       log,
	}
}

// Reconcile brings the table's schema in line with desired, as far as the
// policy allows. A fetch or alteration failure on an existing table falls
// back to table creation; if that also fails, the table's migration is
// aborted and the error surfaces to the caller.
func (s *MigrationService) Reconcile(ctx context.Context, tableID string, desired []models.ColumnDefinition) (models.MigrationOutcome, error) {
	s.log.Infow("Reconciling table schema", "table", tableID, "policy", s.policy)

	existing, err := s.warehouse.GetTableColumns(ctx, tableID)
	if err != nil {
		// Lookup failures are treated as absence: recreating from the
		// derived schema is always a safe recovery.
		action := models.MigrationCreated
		if !errors.Is(err, ErrTableNotFound) {
			s.log.Warnw("Schema lookup failed, falling back to table creation", "table", tableID, "error", err)
			action = models.MigrationRecreated
		} else {
			s.log.Debugw("No existing table found", "table", tableID)
		}
		return s.createTable(ctx, tableID, desired, action)
	}

	if s.policy == models.PolicyWeak {
		s.log.Infow("Table exists, no changes made in weak mode", "table", tableID)
		return models.MigrationOutcome{Action: models.MigrationUnchanged}, nil
	}

	added, removed := diffColumns(existing, desired)

	if len(added) == 0 && len(removed) == 0 {
		s.log.Infow("Table schema is up to date", "table", tableID)
		return models.MigrationOutcome{Action: models.MigrationUnchanged}, nil
	}

	outcome := models.MigrationOutcome{
		AddedFields:   models.ColumnNames(added),
		RemovedFields: models.ColumnNames(removed),
	}

	live := existing
	if len(added) > 0 {
		live = append(append([]models.ColumnDefinition{}, live...), added...)
		s.log.Infow("Adding fields to table", "table", tableID, "fields", outcome.AddedFields)
		if err := s.warehouse.AlterTableColumns(ctx, tableID, live); err != nil {
			s.log.Errorw("Failed to add fields", "table", tableID, "error", err)
			return s.createTable(ctx, tableID, desired, models.MigrationRecreated)
		}
		outcome.Action = models.MigrationAddedFields
	}

	if len(removed) > 0 {
		if s.policy == models.PolicyHard {
			s.log.Infow("Removing fields from table", "table", tableID, "fields", outcome.RemovedFields)
			if err := s.warehouse.AlterTableColumns(ctx, tableID, stripColumns(live, outcome.RemovedFields)); err != nil {
				s.log.Errorw("Failed to remove fields", "table", tableID, "error", err)
				return s.createTable(ctx, tableID, desired, models.MigrationRecreated)
			}
			outcome.Action = models.MigrationRemovedFields
		} else {
			s.log.Infow("Fields would be removed in hard mode", "table", tableID, "fields", outcome.RemovedFields)
		}
	}

	return outcome, nil
}

func (s *MigrationService) createTable(ctx context.Context, tableID string, columns []models.ColumnDefinition, action models.MigrationAction) (models.MigrationOutcome, error) {
	if err := s.warehouse.CreateTable(ctx, tableID, columns); err != nil {
		return models.MigrationOutcome{}, fmt.Errorf("failed to create table %s: %w", tableID, err)
	}
	s.log.Infow("Created table", "table", tableID, "columns", len(columns))
	return models.MigrationOutcome{Action: action}, nil
}

// diffColumns splits desired into columns missing from existing, and returns
// the existing columns no longer present in desired. Order follows the
// desired schema for additions and the live schema for removals.
func diffColumns(existing, desired []models.ColumnDefinition) (added, removed []models.ColumnDefinition) {
	existingNames := make(map[string]bool, len(existing))
	for _, c := range existing {
		existingNames[c.Name] = true
	}
	desiredNames := make(map[string]bool, len(desired))
	for _, c := range desired {
		desiredNames[c.Name] = true
	}

	for _, c := range desired {
		if !existingNames[c.Name] {
			added = append(added, c)
		}
	}
	for _, c := range existing {
		if !desiredNames[c.Name] {
			removed = append(removed, c)
		}
	}
	return added, removed
}

func stripColumns(columns []models.ColumnDefinition, names []string) []models.ColumnDefinition {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}

	kept := make([]models.ColumnDefinition, 0, len(columns))
	for _, c := range columns {
		if !drop[c.Name] {
			kept = append(kept, c)
		}
	}
	return kept
}
