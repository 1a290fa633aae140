package domain

// MutationResponse is the outcome handed back to the UI for every optimistic
// mutation. On failure State holds the reverted state and Reverted is set.
type MutationResponse struct {
	OK       bool        `json:"ok"`
	State    interface{} `json:"state,omitempty"`
	Error    string      `json:"error,omitempty"`
	Reverted bool        `json:"reverted,omitempty"`
}
