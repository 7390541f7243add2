// Package navigation computes the dashboard menu a role may see. Visibility
// is derived from the route policy, so a menu item is shown exactly when the
// enforcement boundary would let the request through.
package navigation

import (
	"medorder/internal/access/models"
	"medorder/internal/access/policy"
)

// Section groups items in the navigation bar.
type Section string

const (
	SectionCommon Section = "common"
	SectionSeller Section = "seller"
	SectionAdmin  Section = "admin"
)

// Item is one link in the navigation bar.
type Item struct {
	Label   string  `json:"label"`
	Href    string  `json:"href"`
	Section Section `json:"section"`
}

// DefaultItems is the dashboard menu in display order.
func DefaultItems() []Item {
	return []Item{
		{Label: "Dashboard", Href: "/dashboard", Section: SectionCommon},
		{Label: "Products", Href: "/products", Section: SectionCommon},
		{Label: "Orders", Href: "/orders", Section: SectionCommon},
		{Label: "Manage Products", Href: "/products/manage", Section: SectionSeller},
		{Label: "Inventory", Href: "/inventory", Section: SectionSeller},
		{Label: "Received Orders", Href: "/orders/received", Section: SectionSeller},
		{Label: "Pending Orders", Href: "/orders/pending", Section: SectionAdmin},
		{Label: "All Orders", Href: "/orders/all", Section: SectionAdmin},
		{Label: "Users", Href: "/users", Section: SectionAdmin},
		{Label: "Settings", Href: "/settings", Section: SectionAdmin},
		{Label: "Notifications", Href: "/notifications", Section: SectionCommon},
	}
}

// Menu filters a fixed item list through a policy.
type Menu struct {
	items  []Item
	policy *policy.Policy
}

func New(pol *policy.Policy, items []Item) *Menu {
	return &Menu{items: append([]Item(nil), items...), policy: pol}
}

// Visible returns the items role may open, in display order.
func (m *Menu) Visible(role models.Role) []Item {
	out := make([]Item, 0, len(m.items))
	for _, item := range m.items {
		if m.policy.Decide(role, item.Href).Permitted {
			out = append(out, item)
		}
	}
	return out
}
