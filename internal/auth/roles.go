package auth

// Role is the access level carried by a caller
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleCashier Role = "cashier"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	_, ok := permissions[r]
	return ok
}

// Capability names one guarded group of ledger operations
type Capability string

const (
	CapCatalogRead   Capability = "catalog:read"
	CapCatalogWrite  Capability = "catalog:write"
	CapCheckout      Capability = "checkout"
	CapSalesRead     Capability = "sales:read"
	CapSalesReverse  Capability = "sales:reverse"
	CapCreditOpen    Capability = "credit:open"
	CapCreditPay     Capability = "credit:pay"
	CapCreditSettle  Capability = "credit:settle"
	CapCreditCancel  Capability = "credit:cancel"
	CapCreditRead    Capability = "credit:read"
	CapDashboardRead Capability = "dashboard:read"
)

var permissions = map[Role]map[Capability]bool{
	RoleAdmin: {
		CapCatalogRead:   true,
		CapCatalogWrite:  true,
		CapCheckout:      true,
		CapSalesRead:     true,
		CapSalesReverse:  true,
		CapCreditOpen:    true,
		CapCreditPay:     true,
		CapCreditSettle:  true,
		CapCreditCancel:  true,
		CapCreditRead:    true,
		CapDashboardRead: true,
	},
	RoleCashier: {
		CapCatalogRead:   true,
		CapCheckout:      true,
		CapCreditOpen:    true,
		CapCreditPay:     true,
		CapCreditRead:    true,
		CapDashboardRead: true,
	},
}

// Allows reports whether role grants capability
func Allows(role Role, capability Capability) bool {
	return permissions[role][capability]
}
