package models

// ArtifactPayload is a transient, pre-storage artifact produced by a tool.
// It is converted to an ArtifactRef once stored.
type ArtifactPayload struct {
	Content      []byte `json:"-"`
	OriginalName string `json:"original_name,omitempty"`
	MediaType    string `json:"media_type,omitempty"`
	Description  string `json:"description,omitempty"`
}

// ArtifactRef is the post-storage handle for an artifact. SHA256 is the
// content-address; StoredPath always resolves strictly inside the
// artifact store's base directory.
type ArtifactRef struct {
	SHA256       string `json:"sha256"`
	StoredPath   string `json:"stored_path"`
	OriginalName string `json:"original_name,omitempty"`
	MediaType    string `json:"media_type,omitempty"`
	Description  string `json:"description,omitempty"`
	SizeBytes    int64  `json:"size_bytes"`
}

// ToolResult is the outcome of executing a Tool.
type ToolResult struct {
	Success bool   `json:"success"`
	Content string `json:"content"`

	Data map[string]any `json:"data,omitempty"`

	// ArtifactPayloads are produced-but-not-yet-stored artifacts; the
	// orchestrator persists each through the artifact store and clears
	// this list, populating Artifacts instead.
	ArtifactPayloads []ArtifactPayload `json:"-"`
	Artifacts        []ArtifactRef     `json:"artifacts,omitempty"`

	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// PolicyDecision is the result of a Policy Engine authorization check.
type PolicyDecision struct {
	Allowed              bool   `json:"allowed"`
	Reason               string `json:"reason"`
	RequiresConfirmation bool   `json:"requires_confirmation"`
}
