package domain

// TagType classifies a tag.
type TagType string

const (
	// TagServiceCategory groups patterns by the kind of product they come from.
	TagServiceCategory TagType = "service-category"
	// TagPatternType groups patterns by UX pattern kind.
	TagPatternType TagType = "pattern-type"
	// TagCustom is a user-defined tag.
	TagCustom TagType = "custom"
)

// Tag is a label attached to patterns.
type Tag struct {
	ID    string  `json:"id"`
	Label string  `json:"label"`
	Type  TagType `json:"type"`
	Color string  `json:"color,omitempty"` // hex string
}

// Pattern is the top-level organizational unit: one UX flow or screen collection.
type Pattern struct {
	ID           string `json:"id"`
	FolderID     string `json:"folder_id"`
	Name         string `json:"name"`
	ServiceName  string `json:"service_name"`
	Summary      string `json:"summary"`
	Tags         []Tag  `json:"tags,omitempty"`
	Author       string `json:"author"`
	IsFavorite   bool   `json:"is_favorite"`
	CaptureCount int    `json:"capture_count"` // derived cache, not authoritative
	CreatedAt    int64  `json:"created_at"`    // unix millis
	UpdatedAt    int64  `json:"updated_at"`
}

// Folder groups patterns; ParentID forms a tree. Cycle prevention is the
// caller's job before issuing a move, the store does not enforce it.
type Folder struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	Name        string `json:"name"`
	ParentID    string `json:"parent_id,omitempty"`
	CreatedAt   int64  `json:"created_at"`
}

// Capture is a single screenshot attached to a pattern. Order is authoritative
// for display sequence; position in the stored list is not.
type Capture struct {
	ID        string `json:"id"`
	PatternID string `json:"pattern_id"`
	ImageURL  string `json:"image_url"`
	Order     int    `json:"order"`
	CreatedAt int64  `json:"created_at"`
}

// Insight is a positioned annotation (pin + note) on a capture. X and Y are
// percentage coordinates in [0,100] relative to the capture image.
type Insight struct {
	ID        string  `json:"id"`
	CaptureID string  `json:"capture_id"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Note      string  `json:"note"`
	CreatedAt int64   `json:"created_at"`
}

// EntityID implements Identifiable.
func (t Tag) EntityID() string     { return t.ID }
func (p Pattern) EntityID() string { return p.ID }
func (f Folder) EntityID() string  { return f.ID }
func (c Capture) EntityID() string { return c.ID }
func (i Insight) EntityID() string { return i.ID }

// Clone returns a deep copy.
func (t Tag) Clone() Tag { return t }

// Clone returns a deep copy, including the tag list.
func (p Pattern) Clone() Pattern {
	out := p
	if p.Tags != nil {
		out.Tags = make([]Tag, len(p.Tags))
		copy(out.Tags, p.Tags)
	}
	return out
}

// Clone returns a deep copy.
func (f Folder) Clone() Folder { return f }

// Clone returns a deep copy.
func (c Capture) Clone() Capture { return c }

// Clone returns a deep copy.
func (i Insight) Clone() Insight { return i }
