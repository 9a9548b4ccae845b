package admin

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/opsboard/pkg/authz"
	"github.com/platinummonkey/opsboard/pkg/httputil"
	"github.com/platinummonkey/opsboard/pkg/matrix"
	"github.com/platinummonkey/opsboard/pkg/observability"
	"github.com/platinummonkey/opsboard/pkg/permcache"
	"github.com/platinummonkey/opsboard/pkg/rbac"
)

// Pages of the administration module guarding the admin API
const (
	PageRoles       = "admin.roles"
	PagePermissions = "admin.permissions"
	PageUsers       = "admin.users"
)

// Handlers provides HTTP handlers for administration operations
type Handlers struct {
	service  *Service
	cache    *permcache.Cache
	guard    *authz.Middleware
	resolver []authz.Option
	metrics  *observability.Metrics
	logger   logrus.FieldLogger
}

// HandlersConfig holds handler configuration
type HandlersConfig struct {
	// Cache answers /rbac/check. Required for that route.
	Cache *permcache.Cache

	// Guard protects every route with the admin.* page permissions. Routes
	// are unprotected when nil.
	Guard *authz.Middleware

	// ResolverOptions apply to /rbac/check decisions
	ResolverOptions []authz.Option

	Metrics *observability.Metrics
	Logger  logrus.FieldLogger
}

// NewHandlers creates new administration handlers
func NewHandlers(service *Service, cfg HandlersConfig) *Handlers {
	return &Handlers{
		service:  service,
		cache:    cfg.Cache,
		guard:    cfg.Guard,
		resolver: cfg.ResolverOptions,
		metrics:  cfg.Metrics,
		logger:   observability.OrStandard(cfg.Logger),
	}
}

// RegisterRoutes registers all administration routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	// Role management
	h.handle(router, "/rbac/roles", h.CreateRole, PageRoles, rbac.ActionEdit, "POST")
	h.handle(router, "/rbac/roles", h.ListRoles, PageRoles, rbac.ActionView, "GET")
	h.handle(router, "/rbac/roles/{code}", h.GetRole, PageRoles, rbac.ActionView, "GET")
	h.handle(router, "/rbac/roles/{code}", h.DeleteRole, PageRoles, rbac.ActionDelete, "DELETE")

	// User role assignments
	h.handle(router, "/rbac/users", h.ListAssignments, PageUsers, rbac.ActionView, "GET")
	h.handle(router, "/rbac/users/{email}/role", h.GetAssignment, PageUsers, rbac.ActionView, "GET")
	h.handle(router, "/rbac/users/{email}/role", h.AssignRole, PageUsers, rbac.ActionEdit, "PUT")
	h.handle(router, "/rbac/users/{email}/role", h.RemoveRole, PageUsers, rbac.ActionDelete, "DELETE")

	// Permission rows
	h.handle(router, "/rbac/roles/{code}/permissions", h.GetPermissions, PagePermissions, rbac.ActionView, "GET")
	h.handle(router, "/rbac/roles/{code}/permissions/resources/{resource}", h.PutResourcePermission, PagePermissions, rbac.ActionEdit, "PUT")
	h.handle(router, "/rbac/roles/{code}/permissions/pages", h.PutPagePermissions, PagePermissions, rbac.ActionEdit, "PUT")
	h.handle(router, "/rbac/roles/{code}/permissions/pages/{page}", h.PutPagePermission, PagePermissions, rbac.ActionEdit, "PUT")

	// Permission matrix
	h.handle(router, "/rbac/roles/{code}/modules/{module}", h.GetModuleState, PagePermissions, rbac.ActionView, "GET")
	h.handle(router, "/rbac/roles/{code}/modules/{module}/toggle", h.ToggleModule, PagePermissions, rbac.ActionEdit, "POST")
	h.handle(router, "/rbac/roles/{code}/pages/{page}/toggle", h.TogglePage, PagePermissions, rbac.ActionEdit, "POST")
	h.handle(router, "/rbac/roles/{code}/resources/{resource}/toggle", h.ToggleResource, PagePermissions, rbac.ActionEdit, "POST")
	h.handle(router, "/rbac/roles/{code}/resources/{resource}/columns", h.SetColumns, PagePermissions, rbac.ActionEdit, "PUT")
	h.handle(router, "/rbac/roles/{code}/resources/{resource}/columns/{column}/toggle", h.ToggleColumn, PagePermissions, rbac.ActionEdit, "POST")
	h.handle(router, "/rbac/roles/{code}/resources/{resource}/columns/toggle", h.ToggleAllColumns, PagePermissions, rbac.ActionEdit, "POST")

	// Permission checking
	h.handle(router, "/rbac/check", h.Check, PageUsers, rbac.ActionView, "GET")

	// Audit trail
	h.handle(router, "/rbac/audit", h.SearchAudit, PageAudit, rbac.ActionView, "GET")
}

func (h *Handlers) handle(router *mux.Router, path string, fn http.HandlerFunc, page string, action rbac.Action, method string) {
	var handler http.Handler = fn
	if h.guard != nil {
		handler = h.guard.Require(page, action)(handler)
	}
	router.Handle(path, handler).Methods(method)
}

type createRoleRequest struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	Department string `json:"department"`
	Position   string `json:"position"`
}

// CreateRole creates a role from an explicit code, or derives the code from
// department and position labels
func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if strings.TrimSpace(req.Code) == "" {
		if strings.TrimSpace(req.Department) == "" && strings.TrimSpace(req.Position) == "" {
			httputil.WriteBadRequest(w, "code or department/position is required")
			return
		}
		role, err := h.service.CreateRoleFromLabels(r.Context(), req.Department, req.Position, req.Name)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		httputil.WriteCreated(w, role)
		return
	}

	role := &rbac.Role{Code: req.Code, Name: req.Name, Department: req.Department}
	if err := h.service.CreateRole(r.Context(), role); err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, role)
}

// ListRoles lists all roles
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if roles == nil {
		roles = []rbac.Role{}
	}
	httputil.WriteSuccess(w, roles)
}

// GetRole gets a role by code
func (h *Handlers) GetRole(w http.ResponseWriter, r *http.Request) {
	code, ok := httputil.ParsePathStringOrError(w, r, "code")
	if !ok {
		return
	}

	role, err := h.service.GetRole(r.Context(), code)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

// DeleteRole deletes a role under the configured deletion policy
func (h *Handlers) DeleteRole(w http.ResponseWriter, r *http.Request) {
	code, ok := httputil.ParsePathStringOrError(w, r, "code")
	if !ok {
		return
	}

	if err := h.service.DeleteRole(r.Context(), code); err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// ListAssignments lists every user role assignment
func (h *Handlers) ListAssignments(w http.ResponseWriter, r *http.Request) {
	assignments, err := h.service.ListAssignments(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if assignments == nil {
		assignments = []rbac.UserRoleAssignment{}
	}
	httputil.WriteSuccess(w, assignments)
}

// GetAssignment gets the role assigned to a user
func (h *Handlers) GetAssignment(w http.ResponseWriter, r *http.Request) {
	email, ok := httputil.ParsePathStringOrError(w, r, "email")
	if !ok {
		return
	}

	assignment, err := h.service.GetAssignment(r.Context(), email)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, assignment)
}

type assignRoleRequest struct {
	RoleCode string `json:"role_code"`
}

// AssignRole sets the role of a user, replacing any previous one
func (h *Handlers) AssignRole(w http.ResponseWriter, r *http.Request) {
	email, ok := httputil.ParsePathStringOrError(w, r, "email")
	if !ok {
		return
	}

	var req assignRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.RoleCode, "role_code") {
		return
	}

	assignment, err := h.service.AssignUserRole(r.Context(), email, req.RoleCode)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, assignment)
}

// RemoveRole removes the role of a user
func (h *Handlers) RemoveRole(w http.ResponseWriter, r *http.Request) {
	email, ok := httputil.ParsePathStringOrError(w, r, "email")
	if !ok {
		return
	}

	if err := h.service.RemoveUserRole(r.Context(), email); err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// ResourcePermissionBody is the wire form of a resource permission row.
// AllowedColumns is ["*"] for every column.
type ResourcePermissionBody struct {
	RoleCode     string `json:"role_code,omitempty"`
	ResourceCode string `json:"resource_code,omitempty"`
	rbac.Flags
	AllowedColumns []string `json:"allowed_columns"`
}

// PermissionsResponse lists every permission row of a role
type PermissionsResponse struct {
	RoleCode  string                   `json:"role_code"`
	Resources []ResourcePermissionBody `json:"resources"`
	Pages     []rbac.PagePermission    `json:"pages"`
}

// GetPermissions returns every permission row of a role
func (h *Handlers) GetPermissions(w http.ResponseWriter, r *http.Request) {
	code, ok := httputil.ParsePathStringOrError(w, r, "code")
	if !ok {
		return
	}
	ctx := r.Context()

	if _, err := h.service.GetRole(ctx, code); err != nil {
		h.writeError(w, r, err)
		return
	}

	resources, err := h.service.ListResourcePermissions(ctx, code)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	pages, err := h.service.ListPagePermissions(ctx, code)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := PermissionsResponse{
		RoleCode:  code,
		Resources: make([]ResourcePermissionBody, 0, len(resources)),
		Pages:     pages,
	}
	if resp.Pages == nil {
		resp.Pages = []rbac.PagePermission{}
	}
	for _, perm := range resources {
		resp.Resources = append(resp.Resources, resourceBody(perm))
	}
	httputil.WriteSuccess(w, resp)
}

// PutResourcePermission replaces one resource permission row
func (h *Handlers) PutResourcePermission(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	code, resource := vars["code"], vars["resource"]
	if !h.requireRole(w, r, code) {
		return
	}

	var body ResourcePermissionBody
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}

	perm := rbac.ResourcePermission{
		RoleCode:       code,
		ResourceCode:   resource,
		Flags:          body.Flags,
		AllowedColumns: columnsFromList(body.AllowedColumns),
	}
	if err := h.service.UpsertResourcePermission(r.Context(), perm); err != nil {
		h.writeError(w, r, err)
		return
	}

	stored, err := h.storedResource(r, code, resource)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, stored)
}

func (h *Handlers) storedResource(r *http.Request, code, resource string) (ResourcePermissionBody, error) {
	perms, err := h.service.ListResourcePermissions(r.Context(), code)
	if err != nil {
		return ResourcePermissionBody{}, err
	}
	for _, perm := range perms {
		if perm.ResourceCode == resource {
			return resourceBody(perm), nil
		}
	}
	return ResourcePermissionBody{}, rbac.ErrNotFound
}

// PutPagePermission replaces one page permission row
func (h *Handlers) PutPagePermission(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if !h.requireRole(w, r, vars["code"]) {
		return
	}

	var flags rbac.Flags
	if !httputil.ParseJSONOrError(w, r, &flags) {
		return
	}

	perm := rbac.PagePermission{RoleCode: vars["code"], PageCode: vars["page"], Flags: flags}
	if err := h.service.UpsertPagePermission(r.Context(), perm); err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, perm)
}

// PutPagePermissions replaces several page permission rows in one transaction
func (h *Handlers) PutPagePermissions(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	if !h.requireRole(w, r, code) {
		return
	}

	var perms []rbac.PagePermission
	if !httputil.ParseJSONOrError(w, r, &perms) {
		return
	}
	for i := range perms {
		perms[i].RoleCode = code
	}

	if err := h.service.BatchUpsertPagePermissions(r.Context(), perms); err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, perms)
}

// ModuleStateResponse reports how many pages of a module carry an action
type ModuleStateResponse struct {
	Module  string      `json:"module"`
	Action  rbac.Action `json:"action"`
	State   string      `json:"state"`
	Enabled *bool       `json:"enabled,omitempty"`
}

// GetModuleState reports whether none, some or all pages of a module carry
// the action given by the action query parameter
func (h *Handlers) GetModuleState(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	action := rbac.Action(httputil.ParseQueryString(r, "action", string(rbac.ActionView)))

	editor, err := h.service.Editor(r.Context(), vars["code"], matrix.WithMetrics(h.metrics))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	state, err := editor.ModuleState(vars["module"], action)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, ModuleStateResponse{Module: vars["module"], Action: action, State: state.String()})
}

// ToggleModule flips an action across every page of a module
func (h *Handlers) ToggleModule(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	action := rbac.Action(httputil.ParseQueryString(r, "action", string(rbac.ActionView)))

	editor, err := h.service.Editor(r.Context(), vars["code"], matrix.WithMetrics(h.metrics))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	enabled, err := editor.ToggleModule(r.Context(), vars["module"], action)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	state, err := editor.ModuleState(vars["module"], action)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, ModuleStateResponse{
		Module:  vars["module"],
		Action:  action,
		State:   state.String(),
		Enabled: &enabled,
	})
}

// PageToggleResponse is a page row after a toggle
type PageToggleResponse struct {
	rbac.PagePermission
	Action  rbac.Action `json:"action"`
	Enabled bool        `json:"enabled"`
}

// TogglePage flips an action on one page
func (h *Handlers) TogglePage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	action := rbac.Action(httputil.ParseQueryString(r, "action", string(rbac.ActionView)))

	editor, err := h.service.Editor(r.Context(), vars["code"], matrix.WithMetrics(h.metrics))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	enabled, err := editor.TogglePage(r.Context(), vars["page"], action)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	perm, _ := editor.Page(vars["page"])
	httputil.WriteSuccess(w, PageToggleResponse{PagePermission: perm, Action: action, Enabled: enabled})
}

// ToggleResource flips an action on a resource permission, keeping its columns
func (h *Handlers) ToggleResource(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	action := rbac.Action(httputil.ParseQueryString(r, "action", string(rbac.ActionView)))

	editor, err := h.service.Editor(r.Context(), vars["code"], matrix.WithMetrics(h.metrics))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if _, err := editor.ToggleResource(r.Context(), vars["resource"], action); err != nil {
		h.writeError(w, r, err)
		return
	}

	perm, _ := editor.Resource(vars["resource"])
	httputil.WriteSuccess(w, resourceBody(perm))
}

type setColumnsRequest struct {
	Columns []string `json:"columns"`
}

// SetColumns replaces the allowed columns of a resource permission.
// ["*"] selects every column.
func (h *Handlers) SetColumns(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req setColumnsRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	editor, err := h.service.Editor(r.Context(), vars["code"], matrix.WithMetrics(h.metrics))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if _, err := editor.SetColumns(r.Context(), vars["resource"], columnsFromList(req.Columns)); err != nil {
		h.writeError(w, r, err)
		return
	}

	perm, _ := editor.Resource(vars["resource"])
	httputil.WriteSuccess(w, resourceBody(perm))
}

// ToggleColumn flips one column of a resource permission
func (h *Handlers) ToggleColumn(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	editor, err := h.service.Editor(r.Context(), vars["code"], matrix.WithMetrics(h.metrics))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if _, err := editor.ToggleColumn(r.Context(), vars["resource"], vars["column"]); err != nil {
		h.writeError(w, r, err)
		return
	}

	perm, _ := editor.Resource(vars["resource"])
	httputil.WriteSuccess(w, resourceBody(perm))
}

// ToggleAllColumns switches a resource permission between every column and none
func (h *Handlers) ToggleAllColumns(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	editor, err := h.service.Editor(r.Context(), vars["code"], matrix.WithMetrics(h.metrics))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if _, err := editor.ToggleAllColumns(r.Context(), vars["resource"]); err != nil {
		h.writeError(w, r, err)
		return
	}

	perm, _ := editor.Resource(vars["resource"])
	httputil.WriteSuccess(w, resourceBody(perm))
}

// CheckResponse is the decision for one identity on one code
type CheckResponse struct {
	Email          string      `json:"email"`
	Role           string      `json:"role,omitempty"`
	Code           string      `json:"code"`
	Action         rbac.Action `json:"action"`
	Allowed        bool        `json:"allowed"`
	Bypassed       bool        `json:"bypassed"`
	AllowedColumns []string    `json:"allowed_columns"`
}

// Check resolves a decision for the email, code and action query parameters
func (h *Handlers) Check(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		httputil.WriteError(w, http.StatusNotImplemented, "unavailable", "permission cache not configured")
		return
	}

	email := httputil.ParseQueryString(r, "email", "")
	code := httputil.ParseQueryString(r, "code", "")
	if !httputil.RequireNonEmpty(w, email, "email") || !httputil.RequireNonEmpty(w, code, "code") {
		return
	}
	action := rbac.Action(httputil.ParseQueryString(r, "action", string(rbac.ActionView)))
	if !action.Valid() {
		httputil.WriteBadRequest(w, "invalid action")
		return
	}
	legacy, err := httputil.ParseQueryBool(r, "legacy_superuser", false)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	resolver := authz.NewResolver(h.cache, rbac.Identity{Email: email, LegacySuperuser: legacy}, h.resolver...)
	resolver.Load(r.Context())

	httputil.WriteSuccess(w, CheckResponse{
		Email:          email,
		Role:           resolver.Role(),
		Code:           code,
		Action:         action,
		Allowed:        resolver.Can(code, action),
		Bypassed:       resolver.IsBypassed(),
		AllowedColumns: columnsToList(resolver.AllowedColumns(code)),
	})
}

func (h *Handlers) requireRole(w http.ResponseWriter, r *http.Request, code string) bool {
	if _, err := h.service.GetRole(r.Context(), code); err != nil {
		h.writeError(w, r, err)
		return false
	}
	return true
}

var serviceErrors = []httputil.ErrorStatus{
	{Target: rbac.ErrDuplicateKey, Status: http.StatusConflict, Code: "duplicate"},
	{Target: rbac.ErrRoleInUse, Status: http.StatusConflict, Code: "role_in_use"},
	{Target: rbac.ErrNotFound, Status: http.StatusNotFound, Code: "not_found"},
	{Target: rbac.ErrInvalidRole, Status: http.StatusBadRequest, Code: "invalid_role"},
	{Target: rbac.ErrInvalidPermission, Status: http.StatusBadRequest, Code: "invalid_permission"},
	{Target: matrix.ErrUnknownModule, Status: http.StatusBadRequest, Code: "unknown_module"},
	{Target: matrix.ErrUnknownPage, Status: http.StatusBadRequest, Code: "unknown_page"},
	{Target: matrix.ErrUnknownResource, Status: http.StatusBadRequest, Code: "unknown_resource"},
	{Target: matrix.ErrUnknownColumn, Status: http.StatusBadRequest, Code: "unknown_column"},
	{Target: ErrAuditUnavailable, Status: http.StatusNotImplemented, Code: "unavailable"},
}

// writeError maps service errors onto HTTP statuses
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if httputil.WriteMappedError(w, err, serviceErrors) {
		return
	}
	observability.WithTraceContext(r.Context(), h.logger).
		WithError(err).
		WithField("path", r.URL.Path).
		Error("Administration request failed")
	httputil.WriteInternalError(w)
}

func resourceBody(perm rbac.ResourcePermission) ResourcePermissionBody {
	return ResourcePermissionBody{
		RoleCode:       perm.RoleCode,
		ResourceCode:   perm.ResourceCode,
		Flags:          perm.Flags,
		AllowedColumns: columnsToList(perm.Columns()),
	}
}

func columnsToList(sel rbac.ColumnSelection) []string {
	if explicit, ok := sel.(rbac.ExplicitColumns); ok {
		return explicit.Columns()
	}
	if sel != nil && sel.IsWildcard() {
		return []string{rbac.WildcardColumn}
	}
	return []string{}
}

func columnsFromList(cols []string) rbac.ColumnSelection {
	for _, c := range cols {
		if c == rbac.WildcardColumn {
			return rbac.AllColumns()
		}
	}
	return rbac.ColumnsOf(cols...)
}
