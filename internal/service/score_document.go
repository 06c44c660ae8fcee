package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/judging-integrity-api/internal/models"
)

// DocumentID is an identifier inside a published score document. Older
// publishers wrote ids as strings, so both "12" and 12 decode.
type DocumentID uint

// UnmarshalJSON accepts a JSON number or a numeric string.
func (id *DocumentID) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*id = 0
		return nil
	}

	raw := string(trimmed)
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
	}

	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid document id %q", raw)
	}
	*id = DocumentID(value)
	return nil
}

// ScoreDocument is the immutable record published to the content store when a
// score is finalized.
type ScoreDocument struct {
	ProjectID     DocumentID         `json:"projectId"`
	JudgeID       DocumentID         `json:"judgeId"`
	HackathonID   DocumentID         `json:"hackathonId,omitempty"`
	Criteria      map[string]float64 `json:"criteria,omitempty"`
	TotalScore    *float64           `json:"totalScore"`
	Timestamp     time.Time          `json:"timestamp"`
	Signature     string             `json:"signature,omitempty"`
	SignerAddress string             `json:"signerAddress,omitempty"`
}

// signedFields is the portion of a document covered by the judge's signature.
type signedFields struct {
	ProjectID   DocumentID         `json:"projectId"`
	JudgeID     DocumentID         `json:"judgeId"`
	HackathonID DocumentID         `json:"hackathonId,omitempty"`
	Criteria    map[string]float64 `json:"criteria,omitempty"`
	TotalScore  *float64           `json:"totalScore"`
	Timestamp   time.Time          `json:"timestamp"`
}

// SignedMessage returns the canonical bytes a judge signs: the document
// without its signature fields, with map keys in sorted order.
func (d ScoreDocument) SignedMessage() []byte {
	payload, _ := json.Marshal(signedFields{
		ProjectID:   d.ProjectID,
		JudgeID:     d.JudgeID,
		HackathonID: d.HackathonID,
		Criteria:    d.Criteria,
		TotalScore:  d.TotalScore,
		Timestamp:   d.Timestamp.UTC(),
	})
	return payload
}

// NewScoreDocument builds the published form of a finalized score.
func NewScoreDocument(score models.Score, hackathonID uint, timestamp time.Time, signature string) ScoreDocument {
	criteria := map[string]float64{}
	for name, value := range score.Criteria() {
		if value != nil {
			criteria[name] = *value
		}
	}

	doc := ScoreDocument{
		ProjectID:     DocumentID(score.ProjectID),
		JudgeID:       DocumentID(score.JudgeID),
		HackathonID:   DocumentID(hackathonID),
		Criteria:      criteria,
		Timestamp:     timestamp.UTC(),
		Signature:     signature,
		SignerAddress: score.Judge.WalletAddress,
	}
	if score.TotalScore != nil {
		total := *score.TotalScore
		doc.TotalScore = &total
	}
	return doc
}
