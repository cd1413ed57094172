package protocol

// CompletionReferenceType discriminates what a completion/complete request
// is completing an argument for.
type CompletionReferenceType string

const (
	RefTypePrompt   CompletionReferenceType = "ref/prompt"
	RefTypeResource CompletionReferenceType = "ref/resource"
)

// CompletionReference is a union over a prompt-name or resource-URI
// reference; Type selects which field is meaningful.
type CompletionReference struct {
	Type CompletionReferenceType `json:"type"`
	Name string                  `json:"name,omitempty"`
	URI  string                  `json:"uri,omitempty"`
}

// CompletionArgument names the argument being completed and its
// partially-typed current value.
type CompletionArgument struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// CompleteParams is the payload of a 'completion/complete' request.
type CompleteParams struct {
	Ref      CompletionReference `json:"ref"`
	Argument CompletionArgument  `json:"argument"`
}

// Completion holds the suggestions for a completion/complete request.
type Completion struct {
	Values  []string `json:"values"`
	Total   *int     `json:"total,omitempty"`
	HasMore bool     `json:"hasMore,omitempty"`
}

// CompleteResult is the result of 'completion/complete'.
type CompleteResult struct {
	Completion Completion `json:"completion"`
}
