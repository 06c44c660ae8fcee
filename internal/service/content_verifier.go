package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/noah-isme/judging-integrity-api/pkg/contentstore"
)

var (
	// ErrContentNotAccessible indicates the content store could not return the blob.
	ErrContentNotAccessible = errors.New("content not accessible")
	// ErrContentTampered indicates the blob was retrieved but does not hash to its identifier.
	ErrContentTampered = errors.New("content does not match its hash")
	// ErrContentParse indicates the blob was retrieved but is not a score document.
	ErrContentParse = errors.New("content could not be parsed")
)

const scoreDocumentSchema = `{
  "type": "object",
  "properties": {
    "projectId": {"type": ["integer", "string"]},
    "judgeId": {"type": ["integer", "string"]},
    "hackathonId": {"type": ["integer", "string"]},
    "criteria": {"type": "object", "additionalProperties": {"type": "number"}},
    "totalScore": {"type": ["number", "null"]},
    "timestamp": {"type": "string"},
    "signature": {"type": "string"},
    "signerAddress": {"type": "string"}
  }
}`

// RetrievedContent is a fetched and decoded score document.
type RetrievedContent struct {
	Hash     string
	Raw      map[string]interface{}
	Document ScoreDocument
}

// ContentVerifier retrieves score documents by content hash.
type ContentVerifier interface {
	Retrieve(ctx context.Context, hash string) (RetrievedContent, error)
}

type contentVerifier struct {
	store   contentstore.Fetcher
	schema  *jsonschema.Schema
	timeout time.Duration
}

// NewContentVerifier wraps a content store fetcher. A positive timeout bounds each fetch.
func NewContentVerifier(store contentstore.Fetcher, timeout time.Duration) (ContentVerifier, error) {
	schema, err := jsonschema.CompileString("score-document.json", scoreDocumentSchema)
	if err != nil {
		return nil, fmt.Errorf("compile score document schema: %w", err)
	}
	return &contentVerifier{store: store, schema: schema, timeout: timeout}, nil
}

func (v *contentVerifier) Retrieve(ctx context.Context, hash string) (RetrievedContent, error) {
	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	data, err := v.store.Fetch(ctx, hash)
	if errors.Is(err, contentstore.ErrHashMismatch) {
		return RetrievedContent{}, fmt.Errorf("%w: %s", ErrContentTampered, hash)
	}
	if err != nil {
		return RetrievedContent{}, fmt.Errorf("%w: %v", ErrContentNotAccessible, err)
	}

	var raw interface{}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	if err := decoder.Decode(&raw); err != nil {
		return RetrievedContent{}, fmt.Errorf("%w: %s is not JSON: %v", ErrContentParse, describeContent(data), err)
	}
	object, ok := raw.(map[string]interface{})
	if !ok {
		return RetrievedContent{}, fmt.Errorf("%w: expected a JSON object", ErrContentParse)
	}
	if err := v.schema.Validate(raw); err != nil {
		return RetrievedContent{}, fmt.Errorf("%w: %v", ErrContentParse, err)
	}

	var doc ScoreDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return RetrievedContent{}, fmt.Errorf("%w: %v", ErrContentParse, err)
	}

	return RetrievedContent{Hash: hash, Raw: object, Document: doc}, nil
}

func describeContent(data []byte) string {
	mime := mimetype.Detect(data).String()
	if idx := strings.Index(mime, ";"); idx >= 0 {
		mime = mime[:idx]
	}
	return mime
}
