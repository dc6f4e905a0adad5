package validate

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// reviewSchema is the contract for submitted reviews: tool and date are
// required strings, a few well-known fields are typed when present, and
// everything else passes through untouched. Clients never supply _id.
const reviewSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"properties": {
		"_id": false,
		"tool": {"type": "string", "minLength": 1},
		"date": {"type": "string", "minLength": 1},
		"rating": {"type": "number", "minimum": 1, "maximum": 5},
		"author": {"type": "string"},
		"comment": {"type": "string"}
	},
	"required": ["tool", "date"],
	"additionalProperties": true
}`

// ReviewValidator checks raw request bodies against the review schema.
type ReviewValidator struct {
	schema *jsonschema.Schema
}

// NewReviewValidator compiles the review schema once, up front.
func NewReviewValidator() (*ReviewValidator, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(reviewSchema))
	if err != nil {
		return nil, fmt.Errorf("NewReviewValidator: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("review.json", doc); err != nil {
		return nil, fmt.Errorf("NewReviewValidator: %w", err)
	}
	sch, err := c.Compile("review.json")
	if err != nil {
		return nil, fmt.Errorf("NewReviewValidator: %w", err)
	}
	return &ReviewValidator{schema: sch}, nil
}

// Validate decodes body and checks it against the review schema,
// returning the decoded document on success.
func (v *ReviewValidator) Validate(body []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("body is not a JSON object: %w", err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return nil, err
	}
	return doc, nil
}
