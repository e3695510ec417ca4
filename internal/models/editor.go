package models

// Editorial verdicts.
const (
	ResolutionApprove = "approve"
	ResolutionDeny    = "deny"
)

// EditorResult is the structured reply of the editor service.
// Post is set if and only if Resolution is approve.
type EditorResult struct {
	Resolution string     `json:"resolution"`
	Reason     string     `json:"reason,omitempty"`
	Post       *PostDraft `json:"post,omitempty"`
}

// PostDraft is the publishable part of an approved EditorResult.
type PostDraft struct {
	Title        string `json:"title"`
	Body         string `json:"body"`
	Illustration string `json:"illustration,omitempty"`
}

// Approved reports whether the editor accepted the group.
func (r *EditorResult) Approved() bool {
	return r != nil && r.Resolution == ResolutionApprove
}
