package matrix

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/opsboard/pkg/audit"
	"github.com/platinummonkey/opsboard/pkg/catalog"
	"github.com/platinummonkey/opsboard/pkg/observability"
	"github.com/platinummonkey/opsboard/pkg/permcache"
	"github.com/platinummonkey/opsboard/pkg/rbac"
)

var (
	// ErrUnknownModule is returned for a module code missing from the catalog
	ErrUnknownModule = errors.New("unknown module")

	// ErrUnknownPage is returned for a page code missing from the catalog
	ErrUnknownPage = errors.New("unknown page")

	// ErrUnknownResource is returned for a resource code missing from the catalog
	ErrUnknownResource = errors.New("unknown resource")

	// ErrUnknownColumn is returned when a column is outside the resource's universe
	ErrUnknownColumn = errors.New("unknown column")
)

// Store is the subset of rbac.Store the editor reads and writes
type Store interface {
	ListResourcePermissions(ctx context.Context, roleCode string) ([]rbac.ResourcePermission, error)
	ListPagePermissions(ctx context.Context, roleCode string) ([]rbac.PagePermission, error)
	UpsertResourcePermission(ctx context.Context, perm rbac.ResourcePermission) error
	BatchUpsertPagePermissions(ctx context.Context, perms []rbac.PagePermission) error
}

// Editor edits the permission matrix of one role. It keeps a local view of
// the role's rows that is patched before each write is persisted; a failed
// write discards the patch and reloads the view from the store.
type Editor struct {
	store    Store
	catalog  *catalog.Catalog
	roleCode string
	cache    *permcache.Cache
	logger   logrus.FieldLogger
	metrics  *observability.Metrics
	audit    audit.Logger

	mu        sync.RWMutex
	pages     map[string]rbac.PagePermission
	resources map[string]rbac.ResourcePermission
}

// Option configures an Editor
type Option func(*Editor)

// WithCache patches cache after successful writes and invalidates it after failed ones
func WithCache(cache *permcache.Cache) Option {
	return func(e *Editor) { e.cache = cache }
}

// WithLogger sets the editor's logger
func WithLogger(logger logrus.FieldLogger) Option {
	return func(e *Editor) { e.logger = logger }
}

// WithMetrics records writes and rollbacks in m
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Editor) { e.metrics = m }
}

// WithAudit records every write, successful or not, in logger
func WithAudit(logger audit.Logger) Option {
	return func(e *Editor) { e.audit = logger }
}

// NewEditor creates an editor for roleCode. Call Load before reading the view.
func NewEditor(store Store, cat *catalog.Catalog, roleCode string, opts ...Option) *Editor {
	e := &Editor{
		store:     store,
		catalog:   cat,
		roleCode:  roleCode,
		pages:     map[string]rbac.PagePermission{},
		resources: map[string]rbac.ResourcePermission{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = observability.OrStandard(e.logger).WithField("role", roleCode)
	if e.audit == nil {
		e.audit = audit.Nop()
	}
	return e
}

// RoleCode returns the role being edited
func (e *Editor) RoleCode() string {
	return e.roleCode
}

// Load replaces the local view with the role's rows from the store
func (e *Editor) Load(ctx context.Context) error {
	var (
		resources []rbac.ResourcePermission
		pages     []rbac.PagePermission
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		resources, err = e.store.ListResourcePermissions(gctx, e.roleCode)
		return err
	})
	g.Go(func() error {
		var err error
		pages, err = e.store.ListPagePermissions(gctx, e.roleCode)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to load permission matrix for role %s: %w", e.roleCode, err)
	}

	pageMap := make(map[string]rbac.PagePermission, len(pages))
	for _, p := range pages {
		pageMap[p.PageCode] = p
	}
	resourceMap := make(map[string]rbac.ResourcePermission, len(resources))
	for _, r := range resources {
		resourceMap[r.ResourceCode] = r
	}

	e.mu.Lock()
	e.pages = pageMap
	e.resources = resourceMap
	e.mu.Unlock()
	return nil
}

// Page returns the page row in the local view
func (e *Editor) Page(code string) (rbac.PagePermission, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.pages[code]
	return p, ok
}

// Resource returns the resource row in the local view
func (e *Editor) Resource(code string) (rbac.ResourcePermission, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.resources[code]
	return r, ok
}

// ModuleState reports whether action is enabled on all, some or none of the
// module's pages. A page without a row counts as disabled.
func (e *Editor) ModuleState(moduleCode string, action rbac.Action) (State, error) {
	module, ok := e.catalog.Module(moduleCode)
	if !ok {
		return StateNone, fmt.Errorf("%w: %s", ErrUnknownModule, moduleCode)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	enabled := 0
	for _, code := range module.PageCodes() {
		if e.pages[code].Get(action) {
			enabled++
		}
	}
	switch {
	case enabled == 0:
		return StateNone, nil
	case enabled == len(module.Pages):
		return StateAll, nil
	default:
		return StateSome, nil
	}
}

// ToggleModule sets action on every page of the module to the negation of
// "all pages currently have it" and persists the pages in one batch. It
// returns the value written.
func (e *Editor) ToggleModule(ctx context.Context, moduleCode string, action rbac.Action) (bool, error) {
	if !action.Valid() {
		return false, fmt.Errorf("%w: action %q", rbac.ErrInvalidPermission, action)
	}
	module, ok := e.catalog.Module(moduleCode)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownModule, moduleCode)
	}
	codes := module.PageCodes()
	if len(codes) == 0 {
		return false, nil
	}

	e.mu.Lock()
	allEnabled := true
	for _, code := range codes {
		allEnabled = allEnabled && e.pages[code].Get(action)
	}
	value := !allEnabled
	restore := e.savePagesLocked(codes)
	updated := e.patchPagesLocked(codes, action, value)
	e.mu.Unlock()

	if err := e.persistPages(ctx, "module", moduleCode, updated, restore); err != nil {
		return false, err
	}
	return value, nil
}

// TogglePage flips action on a single page
func (e *Editor) TogglePage(ctx context.Context, pageCode string, action rbac.Action) (bool, error) {
	if !action.Valid() {
		return false, fmt.Errorf("%w: action %q", rbac.ErrInvalidPermission, action)
	}
	if _, ok := e.catalog.ModuleOfPage(pageCode); !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownPage, pageCode)
	}

	e.mu.Lock()
	value := !e.pages[pageCode].Get(action)
	restore := e.savePagesLocked([]string{pageCode})
	updated := e.patchPagesLocked([]string{pageCode}, action, value)
	e.mu.Unlock()

	if err := e.persistPages(ctx, "page", pageCode, updated, restore); err != nil {
		return false, err
	}
	return value, nil
}

// ToggleResource flips action on a resource, keeping its columns
func (e *Editor) ToggleResource(ctx context.Context, resourceCode string, action rbac.Action) (bool, error) {
	if !action.Valid() {
		return false, fmt.Errorf("%w: action %q", rbac.ErrInvalidPermission, action)
	}
	if _, ok := e.catalog.Resource(resourceCode); !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownResource, resourceCode)
	}

	var value bool
	err := e.updateResource(ctx, "resource", resourceCode, func(perm *rbac.ResourcePermission) error {
		value = !perm.Get(action)
		perm.Flags = perm.With(action, value)
		return nil
	})
	if err != nil {
		return false, err
	}
	return value, nil
}

// ToggleColumn flips one column of a resource's allowed columns
func (e *Editor) ToggleColumn(ctx context.Context, resourceCode, column string) (rbac.ColumnSelection, error) {
	universe, ok := e.catalog.Columns(resourceCode)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownResource, resourceCode)
	}

	var sel rbac.ColumnSelection
	err := e.updateResource(ctx, "columns", resourceCode, func(perm *rbac.ResourcePermission) error {
		if !contains(universe, column) {
			return fmt.Errorf("%w: %s.%s", ErrUnknownColumn, resourceCode, column)
		}
		sel = ToggleColumn(perm.Columns(), column, universe)
		perm.AllowedColumns = sel
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sel, nil
}

// ToggleAllColumns flips a resource between every column and none
func (e *Editor) ToggleAllColumns(ctx context.Context, resourceCode string) (rbac.ColumnSelection, error) {
	if _, ok := e.catalog.Resource(resourceCode); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownResource, resourceCode)
	}

	var sel rbac.ColumnSelection
	err := e.updateResource(ctx, "columns", resourceCode, func(perm *rbac.ResourcePermission) error {
		sel = ToggleAll(perm.Columns())
		perm.AllowedColumns = sel
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sel, nil
}

// SetColumns replaces a resource's allowed columns. Explicit columns must
// belong to the resource; a set covering all of them is stored as Wildcard.
func (e *Editor) SetColumns(ctx context.Context, resourceCode string, sel rbac.ColumnSelection) (rbac.ColumnSelection, error) {
	universe, ok := e.catalog.Columns(resourceCode)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownResource, resourceCode)
	}
	if unknown := unknownColumns(sel, universe); len(unknown) > 0 {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, resourceCode, strings.Join(unknown, ","))
	}

	sel = Canonical(sel, universe)
	err := e.updateResource(ctx, "columns", resourceCode, func(perm *rbac.ResourcePermission) error {
		perm.AllowedColumns = sel
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sel, nil
}

// savePagesLocked captures the current rows for codes and returns a function
// that puts them back. mu must be held when calling either.
func (e *Editor) savePagesLocked(codes []string) func() {
	saved := make(map[string]rbac.PagePermission, len(codes))
	for _, code := range codes {
		if p, ok := e.pages[code]; ok {
			saved[code] = p
		}
	}
	return func() {
		for _, code := range codes {
			if p, ok := saved[code]; ok {
				e.pages[code] = p
			} else {
				delete(e.pages, code)
			}
		}
	}
}

// patchPagesLocked writes the optimistic page rows into the view. mu must be held.
func (e *Editor) patchPagesLocked(codes []string, action rbac.Action, value bool) []rbac.PagePermission {
	updated := make([]rbac.PagePermission, 0, len(codes))
	for _, code := range codes {
		perm := e.pages[code]
		perm.RoleCode = e.roleCode
		perm.PageCode = code
		perm.Flags = perm.With(action, value)
		e.pages[code] = perm
		updated = append(updated, perm)
	}
	return updated
}

func (e *Editor) persistPages(ctx context.Context, kind, subject string, updated []rbac.PagePermission, restore func()) error {
	err := e.store.BatchUpsertPagePermissions(ctx, updated)
	e.metrics.MatrixWrite(kind, err)
	after := make(map[string]interface{}, len(updated))
	for _, perm := range updated {
		after[perm.PageCode] = perm.Flags
	}
	e.record(ctx, kind, subject, after, err)
	if err != nil {
		e.rollback(ctx, kind, err, restore)
		return fmt.Errorf("failed to save %s permissions: %w", kind, err)
	}

	if e.cache != nil {
		e.cache.PatchPagePermissions(e.roleCode, updated)
	}
	return nil
}

func (e *Editor) updateResource(ctx context.Context, kind, resourceCode string, apply func(*rbac.ResourcePermission) error) error {
	e.mu.Lock()
	prev, existed := e.resources[resourceCode]
	perm := prev
	if !existed {
		perm = rbac.ResourcePermission{
			RoleCode:       e.roleCode,
			ResourceCode:   resourceCode,
			AllowedColumns: rbac.NoColumns(),
		}
	}
	if err := apply(&perm); err != nil {
		e.mu.Unlock()
		return err
	}
	e.resources[resourceCode] = perm
	e.mu.Unlock()

	err := e.store.UpsertResourcePermission(ctx, perm)
	e.metrics.MatrixWrite(kind, err)
	e.record(ctx, kind, resourceCode, map[string]interface{}{
		"flags":   perm.Flags,
		"columns": fmt.Sprint(perm.Columns()),
	}, err)
	if err != nil {
		e.rollback(ctx, kind, err, func() {
			if existed {
				e.resources[resourceCode] = prev
			} else {
				delete(e.resources, resourceCode)
			}
		})
		return fmt.Errorf("failed to save permission for %s: %w", resourceCode, err)
	}

	if e.cache != nil {
		e.cache.PatchResourcePermission(perm)
	}
	return nil
}

var auditEventTypes = map[string]audit.EventType{
	"module":   audit.EventTypeModuleToggle,
	"page":     audit.EventTypePagePermission,
	"resource": audit.EventTypeResourcePermission,
	"columns":  audit.EventTypeColumnToggle,
}

func (e *Editor) record(ctx context.Context, kind, subject string, after map[string]interface{}, cause error) {
	status := audit.EventStatusSuccess
	if cause != nil {
		status = audit.EventStatusFailure
	}

	event := audit.NewEvent(ctx, auditEventTypes[kind], status)
	event.RoleCode = e.roleCode
	event.Subject = subject
	event.Message = fmt.Sprintf("Permission matrix %s write", kind)
	event.Changes = &audit.ChangeDetails{After: after}
	if cause != nil {
		event.ErrorMessage = cause.Error()
	}

	if err := e.audit.Log(ctx, event); err != nil {
		e.logger.WithError(err).WithField("kind", kind).Warn("Failed to record audit event")
	}
}

// rollback discards the optimistic view by reloading it from the store. When
// the reload fails too, restore puts back the rows saved before the patch.
func (e *Editor) rollback(ctx context.Context, kind string, cause error, restore func()) {
	log := e.logger.WithError(cause).WithField("kind", kind)
	log.Warn("Permission write failed, reloading matrix")

	if e.cache != nil {
		e.cache.Invalidate()
	}
	if err := e.Load(ctx); err != nil {
		log.WithField("reload_error", err).Error("Failed to reload permission matrix")
		e.mu.Lock()
		restore()
		e.mu.Unlock()
	}
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
