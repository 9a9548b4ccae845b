// Package cli implements the opsboard-rbac command line.
//
// Every command reads its configuration from OPSBOARD_* environment
// variables, overridable with the persistent flags:
//
//	opsboard-rbac migrate --db-driver sqlite3 --db-url file:opsboard.db
//	opsboard-rbac role create --department Sales --position "Team Lead"
//	opsboard-rbac assign jane@example.com SALES_TEAM_LEAD
//	opsboard-rbac module toggle SALES_TEAM_LEAD orders --action edit
//	opsboard-rbac check jane@example.com orders.list --action edit
//	opsboard-rbac serve
package cli
