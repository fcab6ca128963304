// Package navigation describes the navigate(route, params) capability the
// sync core uses, and the deep link format carried by push messages.
package navigation

import (
	"context"
	"errors"
	"strings"
)

// Route names understood by the navigation tree.
const (
	RouteHome          = "HomeScreen"
	RouteProductList   = "ProductListScreen"
	RouteProductDetail = "ProductDetailScreen"
	RouteUnauthorized  = "UnauthorizeScreen"
	RouteLogin         = "LoginScreen"
)

// Link types carried by push messages.
const (
	LinkCategory = "category"
	LinkBrand    = "brand"
	LinkProduct  = "product"
)

// Errors returned by ParseLink.
var (
	ErrMalformedLink   = errors.New("malformed link")
	ErrUnsupportedLink = errors.New("unsupported link type")
)

// Params are the route parameters passed alongside a route name.
type Params map[string]any

// Navigator performs a navigation. Implementations are supplied by the host UI.
type Navigator interface {
	Navigate(ctx context.Context, route string, params Params) error
}

// NavigatorFunc adapts a function to the Navigator interface.
type NavigatorFunc func(ctx context.Context, route string, params Params) error

// Navigate calls f.
func (f NavigatorFunc) Navigate(ctx context.Context, route string, params Params) error {
	return f(ctx, route, params)
}

// Target is a resolved navigation request.
type Target struct {
	Route  string
	Params Params
}

// ParseLink resolves a "<type>-<id>" link. The link is split at the first
// dash so ids may themselves contain dashes.
func ParseLink(link string) (Target, error) {
	kind, id, ok := strings.Cut(strings.TrimSpace(link), "-")
	if !ok || kind == "" || id == "" {
		return Target{}, ErrMalformedLink
	}

	switch kind {
	case LinkCategory:
		return listTarget("categorybanner", id), nil
	case LinkBrand:
		return listTarget("brandbanner", id), nil
	case LinkProduct:
		return Target{
			Route:  RouteProductDetail,
			Params: Params{"id": id},
		}, nil
	default:
		return Target{}, ErrUnsupportedLink
	}
}

func listTarget(listType, id string) Target {
	return Target{
		Route: RouteProductList,
		Params: Params{
			"type":      listType,
			"id":        id,
			"childerns": []string{},
			"title":     nil,
		},
	}
}
