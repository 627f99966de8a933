package workspace

import "encoding/json"

// State is the ephemeral cross-component UI state: search, filters and the
// current selection. It is persisted across restarts but is not authoritative
// application data.
type State struct {
	SearchTerm        string   `json:"search_term"`
	FolderFilter      string   `json:"folder_filter,omitempty"`
	FavoriteOnly      bool     `json:"favorite_only"`
	TagFilters        []string `json:"tag_filters"`
	SelectedPatternID string   `json:"selected_pattern_id,omitempty"`
	SelectedCaptureID string   `json:"selected_capture_id,omitempty"`
	SelectedInsightID string   `json:"selected_insight_id,omitempty"`
}

// DefaultState returns the initial state.
func DefaultState() State {
	return State{TagFilters: []string{}}
}

// clone returns a copy safe to hand to listeners.
func (s State) clone() State {
	out := s
	out.TagFilters = append([]string(nil), s.TagFilters...)
	if out.TagFilters == nil {
		out.TagFilters = []string{}
	}
	return out
}

// equal compares key by key; TagFilters element-wise.
func (s State) equal(o State) bool {
	if s.SearchTerm != o.SearchTerm ||
		s.FolderFilter != o.FolderFilter ||
		s.FavoriteOnly != o.FavoriteOnly ||
		s.SelectedPatternID != o.SelectedPatternID ||
		s.SelectedCaptureID != o.SelectedCaptureID ||
		s.SelectedInsightID != o.SelectedInsightID {
		return false
	}
	if len(s.TagFilters) != len(o.TagFilters) {
		return false
	}
	for i := range s.TagFilters {
		if s.TagFilters[i] != o.TagFilters[i] {
			return false
		}
	}
	return true
}

// decode parses a persisted payload, tolerating malformed input: bad JSON
// falls back to defaults, and a tag_filters field that is not a list is
// coerced to an empty list rather than rejected.
func decode(data []byte) State {
	type persisted struct {
		SearchTerm        string          `json:"search_term"`
		FolderFilter      string          `json:"folder_filter"`
		FavoriteOnly      bool            `json:"favorite_only"`
		TagFilters        json.RawMessage `json:"tag_filters"`
		SelectedPatternID string          `json:"selected_pattern_id"`
		SelectedCaptureID string          `json:"selected_capture_id"`
		SelectedInsightID string          `json:"selected_insight_id"`
	}

	var p persisted
	if err := json.Unmarshal(data, &p); err != nil {
		return DefaultState()
	}

	st := State{
		SearchTerm:        p.SearchTerm,
		FolderFilter:      p.FolderFilter,
		FavoriteOnly:      p.FavoriteOnly,
		TagFilters:        []string{},
		SelectedPatternID: p.SelectedPatternID,
		SelectedCaptureID: p.SelectedCaptureID,
		SelectedInsightID: p.SelectedInsightID,
	}
	if len(p.TagFilters) > 0 {
		var tags []string
		if err := json.Unmarshal(p.TagFilters, &tags); err == nil && tags != nil {
			st.TagFilters = tags
		}
	}
	return st
}
