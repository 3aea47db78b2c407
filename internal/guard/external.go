// Package guard enforces the external-content invariant: nothing fetched
// from an external source may reach persistent storage. Every write path
// into the commit engine and every memory upsert calls the guard first.
package guard

import (
	"fmt"

	"holograph/internal/logging"
)

// ExternalPersistenceError reports blocked external items on a write path.
type ExternalPersistenceError struct {
	Count    int
	ItemType string
	URLs     []string
}

func (e *ExternalPersistenceError) Error() string {
	return fmt.Sprintf("refusing to persist %d external %s item(s): %v",
		e.Count, e.ItemType, e.URLs)
}

// Report summarizes a guard scan.
type Report struct {
	Total    int
	External int
	URLs     []string
}

// Item is the structural view the guard scans. Callers adapt their concrete
// types; any marker below flags the item as external:
//
//	provenance.url, source_url, external == true,
//	metadata.external == true, metadata.url
type Item struct {
	ProvenanceURL    string
	SourceURL        string
	External         bool
	MetadataExternal bool
	MetadataURL      string
}

// externalURL returns the offending URL (or a generic marker) if the item is
// external, and whether it is.
func (it Item) externalURL() (string, bool) {
	switch {
	case it.ProvenanceURL != "":
		return it.ProvenanceURL, true
	case it.SourceURL != "":
		return it.SourceURL, true
	case it.External:
		return "<external flag>", true
	case it.MetadataExternal:
		return "<metadata external flag>", true
	case it.MetadataURL != "":
		return it.MetadataURL, true
	}
	return "", false
}

// ForbidExternalPersistence scans items for external markers. When
// raiseOnExternal is set and any item is external, it returns an
// ExternalPersistenceError naming the count, item type, and offending URLs.
// An audit event is recorded on every block.
func ForbidExternalPersistence(items []Item, itemType string, raiseOnExternal bool) (Report, error) {
	report := Report{Total: len(items)}
	for _, it := range items {
		if url, external := it.externalURL(); external {
			report.External++
			report.URLs = append(report.URLs, url)
		}
	}

	if report.External > 0 {
		logging.Audit(logging.AuditExternalPersistenceBlocked, logging.SeverityHigh, itemType,
			"blocked external content on write path",
			map[string]any{
				"count":     report.External,
				"item_type": itemType,
				"urls":      report.URLs,
			})
		if raiseOnExternal {
			return report, &ExternalPersistenceError{
				Count:    report.External,
				ItemType: itemType,
				URLs:     report.URLs,
			}
		}
	}
	return report, nil
}

// FilterExternalItems splits items into internal and external sets for
// display paths that may show external content without persisting it.
func FilterExternalItems(items []Item) (internal, external []Item) {
	for _, it := range items {
		if _, ext := it.externalURL(); ext {
			external = append(external, it)
		} else {
			internal = append(internal, it)
		}
	}
	return internal, external
}
