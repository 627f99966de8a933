package domain

// Identifiable is the minimal contract every stored entity satisfies.
type Identifiable interface {
	EntityID() string
}

// CollectionKey names one of the independently-addressable entity collections.
type CollectionKey string

const (
	KeyPatterns CollectionKey = "patterns"
	KeyFolders  CollectionKey = "folders"
	KeyCaptures CollectionKey = "captures"
	KeyInsights CollectionKey = "insights"
	KeyTags     CollectionKey = "tags"
)

// AllKeys returns every collection key in a stable order.
func AllKeys() []CollectionKey {
	return []CollectionKey{KeyPatterns, KeyFolders, KeyCaptures, KeyInsights, KeyTags}
}

// Valid reports whether k names a known collection.
func (k CollectionKey) Valid() bool {
	switch k {
	case KeyPatterns, KeyFolders, KeyCaptures, KeyInsights, KeyTags:
		return true
	}
	return false
}
