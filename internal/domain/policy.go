package domain

import "context"

// UploadInput is the policy input for one upload attempt.
type UploadInput struct {
	SizeBytes int64  `json:"size_bytes"`
	MediaType string `json:"media_type"`
	FileName  string `json:"file_name"`
}

type PolicyDenial struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type PolicyResult struct {
	Allow bool           `json:"allow"`
	Deny  []PolicyDenial `json:"deny"`
}

// UploadPolicy gates the upload path (size and media-type restrictions live
// here, not in the hash engine).
type UploadPolicy interface {
	Evaluate(ctx context.Context, input UploadInput) (PolicyResult, error)
}
