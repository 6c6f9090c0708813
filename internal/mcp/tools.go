package mcp

// ListAnnotatedInput defines the input schema for the list_annotated tool.
type ListAnnotatedInput struct {
	Annotation string `json:"annotation" jsonschema:"annotation identity, e.g. example.com/app/api.Audit"`
	Kind       string `json:"kind,omitempty" jsonschema:"filter by element kind: class, method, field, constructor, package"`
	Limit      int    `json:"limit,omitempty" jsonschema:"maximum number of elements, default 100"`
}

// ListAnnotatedOutput defines the output schema for the list_annotated tool.
type ListAnnotatedOutput struct {
	Annotation string          `json:"annotation"`
	Elements   []ElementOutput `json:"elements" jsonschema:"annotated elements in index order"`
	// Truncated is set when more elements matched than the limit allows.
	Truncated bool `json:"truncated,omitempty"`
}

// ElementOutput is one annotated element.
type ElementOutput struct {
	Kind        string   `json:"kind" jsonschema:"class, method, field, constructor or package"`
	Name        string   `json:"name" jsonschema:"unqualified declaration name"`
	Location    string   `json:"location" jsonschema:"index location, e.g. example.com/app/svc.Stuff#Run()"`
	Position    string   `json:"position,omitempty" jsonschema:"file:line:column of the declaration"`
	Annotations []string `json:"annotations,omitempty" jsonschema:"annotations present on the element"`
}

// ListAnnotationsInput defines the input schema for the list_annotations tool (no parameters).
type ListAnnotationsInput struct{}

// ListAnnotationsOutput defines the output schema for the list_annotations tool.
type ListAnnotationsOutput struct {
	Annotations []string `json:"annotations" jsonschema:"annotation identities with an index on the classpath"`
}

// IndexStatusInput defines the input schema for the index_status tool (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	Project ProjectInfo `json:"project"`
	Stats   IndexStats  `json:"stats"`
	// LastBuild is absent when no ledger is attached or nothing was built yet.
	LastBuild *BuildInfo `json:"last_build,omitempty"`
	Queries   QueryStats `json:"queries"`
}

// QueryStats summarizes the tool calls answered since the server started.
type QueryStats struct {
	Total          int64            `json:"total"`
	ZeroResults    int64            `json:"zero_results" jsonschema:"list_annotated calls that found nothing"`
	Tools          map[string]int64 `json:"tools"`
	TopAnnotations []string         `json:"top_annotations" jsonschema:"most queried annotations, most frequent first"`
	Misses         []string         `json:"misses" jsonschema:"recent annotations that matched nothing, oldest first"`
}

// ProjectInfo contains information about the indexed module.
type ProjectInfo struct {
	Name     string `json:"name"`
	RootPath string `json:"root_path"`
	Type     string `json:"type"`
}

// IndexStats contains statistics about the index.
type IndexStats struct {
	Files       int `json:"files"`
	Resources   int `json:"resources"`
	Locations   int `json:"locations"`
	Annotations int `json:"annotations" jsonschema:"annotation identities visible on the classpath"`
}

// BuildInfo describes one recorded build run.
type BuildInfo struct {
	ID          string `json:"id"`
	Mode        string `json:"mode"`
	Status      string `json:"status"`
	Message     string `json:"message,omitempty"`
	Files       int    `json:"files"`
	Annotations int    `json:"annotations"`
	StartedAt   string `json:"started_at"`
	FinishedAt  string `json:"finished_at,omitempty"`
}
