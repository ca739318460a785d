package cache

import (
	"net/url"
	"sort"
	"strings"
	"time"
)

// Family prefixes. Every key of a resource family starts with its prefix, so a
// single InvalidatePrefix call evicts all cached variants of that family.
// These strings are a stable contract for operational tooling.
const (
	FamilyBasel         = "basel:"
	FamilyAngle         = "angle:"
	FamilyNotifications = "notifications:"
)

// Namespaces of the cached read endpoints.
const (
	NamespaceBaselStandards  = FamilyBasel + "standards"
	NamespaceBaselChapters   = FamilyBasel + "chapters"
	NamespaceAngleCategories = FamilyAngle + "categories"
	NamespaceAnglePodcasts   = FamilyAngle + "podcasts"
	NamespaceNotifications   = FamilyNotifications + "list"
)

// Default TTLs per namespace.
const (
	DefaultBaselStandardsTTL  = 5 * time.Minute
	DefaultBaselChaptersTTL   = 5 * time.Minute
	DefaultAngleCategoriesTTL = 5 * time.Minute
	DefaultAnglePodcastsTTL   = 2 * time.Minute
	DefaultNotificationsTTL   = 30 * time.Second
)

// Key identifies one cached query result.
type Key struct {
	// Namespace is the resource namespace (e.g. "angle:podcasts")
	Namespace string

	// Params are the discriminating query parameters (e.g. {"categoryId": "42"})
	Params url.Values
}

// NewKey creates a key for a namespace with optional name/value discriminators.
// Pairs with an odd trailing name are ignored.
func NewKey(namespace string, pairs ...string) Key {
	k := Key{Namespace: namespace}
	for i := 0; i+1 < len(pairs); i += 2 {
		if k.Params == nil {
			k.Params = url.Values{}
		}
		k.Params.Add(pairs[i], pairs[i+1])
	}
	return k
}

// String generates a deterministic cache key string.
// Format: namespace:param1=val1:param2=val2
//
// Params are sorted by name and values are query-escaped, so ":" inside a
// value can never collide with the separator. Params with no non-empty value
// are dropped: an empty filter selects the same result as no filter.
//
// Example:
//
//	angle:podcasts:categoryId=42
func (k Key) String() string {
	parts := []string{k.Namespace}

	if len(k.Params) > 0 {
		names := make([]string, 0, len(k.Params))
		for name := range k.Params {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			values := make([]string, 0, len(k.Params[name]))
			for _, v := range k.Params[name] {
				if v == "" {
					continue
				}
				values = append(values, url.QueryEscape(v))
			}
			if len(values) == 0 {
				continue
			}
			sort.Strings(values)
			parts = append(parts, url.QueryEscape(name)+"="+strings.Join(values, ","))
		}
	}

	return strings.Join(parts, ":")
}
