package apiclient

import (
	"net/url"
	"strings"
)

// Endpoint paths exposed by the backend. Parameterized variants are built
// with the *Path helpers below.
const (
	EndpointAuthLogin  = "/auth/login"
	EndpointUsers      = "/users"
	EndpointCompanies  = "/companies"
	EndpointProducts   = "/products"
	EndpointCategories = "/categories"
	EndpointInventory  = "/inventory"
)

// UserPath returns /users/:id.
func UserPath(id string) string {
	return EndpointUsers + "/" + url.PathEscape(id)
}

// CompanyPath returns /companies/:id.
func CompanyPath(id string) string {
	return EndpointCompanies + "/" + url.PathEscape(id)
}

// ProductPath returns /products/:id.
func ProductPath(id string) string {
	return EndpointProducts + "/" + url.PathEscape(id)
}

// CategoryPath returns /categories/:id.
func CategoryPath(id string) string {
	return EndpointCategories + "/" + url.PathEscape(id)
}

// InventoryPath returns /inventory/:id.
func InventoryPath(id string) string {
	return EndpointInventory + "/" + url.PathEscape(id)
}

// InventoryAdjustPath returns /inventory/:id/adjust.
func InventoryAdjustPath(id string) string {
	return InventoryPath(id) + "/adjust"
}

// joinURL glues a base URL and a path without doubling or dropping the
// separating slash. An absolute url wins over the base.
func joinURL(base, path string) string {
	if base == "" {
		return path
	}
	if strings.Contains(path, "://") {
		return path
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(path, "/")
}
