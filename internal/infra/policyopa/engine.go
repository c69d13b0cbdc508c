package policyopa

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sort"

	"bloodlink/internal/domain"

	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage/inmem"
)

const (
	defaultQuery = "data.bloodlink.upload.result"
	policyModule = "bloodlink/upload.rego"
)

// DefaultPolicySource is the built-in upload gate: size and media-type
// restrictions belong here, not in the hash engine.
const DefaultPolicySource = `package bloodlink.upload

deny[d] {
	input.size_bytes <= 0
	d := {"code": "EMPTY_FILE", "message": "file is empty"}
}

deny[d] {
	input.size_bytes > data.limits.max_bytes
	d := {"code": "FILE_TOO_LARGE", "message": sprintf("file exceeds %d bytes", [data.limits.max_bytes])}
}

deny[d] {
	count(data.limits.media_types) > 0
	not allowed_media_type
	d := {"code": "MEDIA_TYPE_NOT_ALLOWED", "message": sprintf("media type %s is not accepted", [input.media_type])}
}

allowed_media_type {
	data.limits.media_types[_] == input.media_type
}

result := {"allow": count(deny) == 0, "deny": [d | d := deny[_]]}
`

// Limits parameterize the policy through the data document.
type Limits struct {
	MaxBytes   int64
	MediaTypes []string
}

type Engine struct {
	query    rego.PreparedEvalQuery
	policyID string
}

func NewEngine(ctx context.Context, source string, limits Limits, policyID string) (*Engine, error) {
	if source == "" {
		source = DefaultPolicySource
	}
	mediaTypes := make([]any, 0, len(limits.MediaTypes))
	for _, mt := range limits.MediaTypes {
		mediaTypes = append(mediaTypes, mt)
	}
	store := inmem.NewFromObject(map[string]any{
		"limits": map[string]any{
			"max_bytes":   limits.MaxBytes,
			"media_types": mediaTypes,
		},
	})

	r := rego.New(
		rego.Query(defaultQuery),
		rego.Module(policyModule, source),
		rego.Store(store),
		rego.StrictBuiltinErrors(true),
	)
	prepared, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, err
	}
	return &Engine{query: prepared, policyID: policyID}, nil
}

// NewEngineFromPath loads a policy module from disk, falling back to the
// built-in source rules only when path is empty.
func NewEngineFromPath(ctx context.Context, path string, limits Limits, policyID string) (*Engine, error) {
	source := ""
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		source = string(raw)
	}
	return NewEngine(ctx, source, limits, policyID)
}

func (e *Engine) PolicyID() string {
	if e == nil {
		return ""
	}
	return e.policyID
}

func (e *Engine) Evaluate(ctx context.Context, input domain.UploadInput) (domain.PolicyResult, error) {
	if e == nil {
		return domain.PolicyResult{}, errors.New("policy engine is nil")
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return domain.PolicyResult{}, err
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return domain.PolicyResult{}, errors.New("empty policy result")
	}
	result, err := decodeResult(results[0].Expressions[0].Value)
	if err != nil {
		return domain.PolicyResult{}, err
	}
	sort.Slice(result.Deny, func(i, j int) bool {
		if result.Deny[i].Code == result.Deny[j].Code {
			return result.Deny[i].Message < result.Deny[j].Message
		}
		return result.Deny[i].Code < result.Deny[j].Code
	})
	return result, nil
}

func decodeResult(value any) (domain.PolicyResult, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return domain.PolicyResult{}, err
	}
	var result domain.PolicyResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return domain.PolicyResult{}, err
	}
	return result, nil
}
