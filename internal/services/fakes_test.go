package services

import (
	"context"
	"fmt"
	"sync"

	"datalake-export-scheduler/internal/models"
)

type executedUpdate struct {
	SQL    string
	Params []QueryParameter
}

// fakeWarehouse is an in-memory Warehouse for service tests.
type fakeWarehouse struct {
	mu sync.Mutex

	columns     []models.ColumnDefinition
	tableExists bool
	identifiers []string

	getErr    error
	createErr error
	alterErr  error
	insertErr error
	scanErr   error
	// updateErrs maps the identifier parameter value to a forced error.
	updateErrs map[string]error

	createCalls int
	alterCalls  [][]models.ColumnDefinition
	inserted    []models.Row
	insertRowErrs []InsertError
	updates       []executedUpdate
}

func (f *fakeWarehouse) GetTableColumns(ctx context.Context, tableID string) ([]models.ColumnDefinition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	if !f.tableExists {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, tableID)
	}
	return append([]models.ColumnDefinition{}, f.columns...), nil
}

func (f *fakeWarehouse) CreateTable(ctx context.Context, tableID string, columns []models.ColumnDefinition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return f.createErr
	}
	f.tableExists = true
	f.columns = append([]models.ColumnDefinition{}, columns...)
	return nil
}

func (f *fakeWarehouse) AlterTableColumns(ctx context.Context, tableID string, columns []models.ColumnDefinition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alterCalls = append(f.alterCalls, append([]models.ColumnDefinition{}, columns...))
	if f.alterErr != nil {
		return f.alterErr
	}
	f.columns = append([]models.ColumnDefinition{}, columns...)
	return nil
}

func (f *fakeWarehouse) BulkInsert(ctx context.Context, tableID string, rows []models.Row) ([]InsertError, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	f.inserted = append(f.inserted, rows...)
	return f.insertRowErrs, nil
}

func (f *fakeWarehouse) ExecuteUpdate(ctx context.Context, sql string, params []QueryParameter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, executedUpdate{SQL: sql, Params: params})
	for _, p := range params {
		if p.Name != "identifier" {
			continue
		}
		if err, ok := f.updateErrs[fmt.Sprint(p.Value)]; ok {
			return err
		}
	}
	return nil
}

func (f *fakeWarehouse) ScanColumn(ctx context.Context, tableID, column string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	return append([]string{}, f.identifiers...), nil
}

func (f *fakeWarehouse) TableRef(tableID string) string {
	return fmt.Sprintf("test-project.test_dataset.%s", tableID)
}

func (f *fakeWarehouse) updatedIdentifiers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for _, u := range f.updates {
		for _, p := range u.Params {
			if p.Name == "identifier" {
				ids = append(ids, fmt.Sprint(p.Value))
			}
		}
	}
	return ids
}

// fakeCatalog serves one blueprint and a fixed sequence of entity pages.
type fakeCatalog struct {
	blueprint    *models.Blueprint
	blueprintErr error
	pages        [][]models.Entity
	searchErr    error
}

func (f *fakeCatalog) GetBlueprint(ctx context.Context, identifier string) (*models.Blueprint, error) {
	if f.blueprintErr != nil {
		return nil, f.blueprintErr
	}
	return f.blueprint, nil
}

func (f *fakeCatalog) SearchEntities(ctx context.Context, blueprint string, query models.SearchQuery, include, exclude []string) (<-chan []models.Entity, <-chan error) {
	pages := make(chan []models.Entity)
	errCh := make(chan error, 1)
	go func() {
		defer close(pages)
		defer close(errCh)
		for _, page := range f.pages {
			select {
			case pages <- page:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
		if f.searchErr != nil {
			errCh <- f.searchErr
		}
	}()
	return pages, errCh
}
