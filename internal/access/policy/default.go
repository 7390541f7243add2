package policy

import "medorder/internal/access/models"

var (
	sellerOrAdmin = models.RoleSet{models.RoleSeller, models.RoleAdmin}
	adminOnly     = models.RoleSet{models.RoleAdmin}
)

// DefaultEntries is the built-in route table for the order-management
// dashboards plus this service's audit API.
func DefaultEntries() []Entry {
	return []Entry{
		{Pattern: "/products/manage", Roles: sellerOrAdmin},
		{Pattern: "/inventory", Roles: sellerOrAdmin},
		{Pattern: "/orders/received", Roles: sellerOrAdmin},
		{Pattern: "/orders/pending", Roles: adminOnly},
		{Pattern: "/orders/all", Roles: adminOnly},
		{Pattern: "/users", Roles: adminOnly},
		{Pattern: "/settings", Roles: adminOnly},
		{Pattern: "/settings/menu", Roles: adminOnly},
		{Pattern: "/api/audit/modifications", Roles: sellerOrAdmin},
		{Pattern: "/api/audit/events", Roles: sellerOrAdmin},
		{Pattern: "/api/audit/updates", Roles: sellerOrAdmin},
		{Pattern: "/api/audit/deletions/orders", Roles: sellerOrAdmin},
		{Pattern: "/api/audit/deletions/products", Roles: sellerOrAdmin},
	}
}

// Default returns the built-in policy.
func Default() *Policy {
	return MustNew(DefaultEntries())
}
