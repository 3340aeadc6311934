package alloc

import (
	"sort"

	"github.com/opsdesk/opsdesk/internal/errs"
)

// appPrefixes is the fixed registry of known app keys and their display-ID
// prefixes. Allocation for anything outside this table is rejected before a
// single record is read.
var appPrefixes = map[string]string{
	"examcoach":  "EC",
	"mathdrills": "MD",
	"writinglab": "WL",
}

// PrefixFor returns the display-ID prefix for a registered app key.
func PrefixFor(app string) (string, error) {
	prefix, ok := appPrefixes[app]
	if !ok {
		return "", errs.New(errs.InvalidArgument, "unknown app: %q", app)
	}
	return prefix, nil
}

// KnownPrefix reports whether prefix belongs to a registered app.
func KnownPrefix(prefix string) bool {
	for _, p := range appPrefixes {
		if p == prefix {
			return true
		}
	}
	return false
}

// KnownApps returns the registered app keys, sorted for stable display.
func KnownApps() []string {
	apps := make([]string, 0, len(appPrefixes))
	for app := range appPrefixes {
		apps = append(apps, app)
	}
	sort.Strings(apps)
	return apps
}

// Prefixes returns every registered prefix, sorted.
func Prefixes() []string {
	prefixes := make([]string, 0, len(appPrefixes))
	for _, p := range appPrefixes {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)
	return prefixes
}
