package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/judging-integrity-api/pkg/contentstore"
)

func TestDocumentIDDecodesNumbersAndStrings(t *testing.T) {
	var doc struct {
		A DocumentID `json:"a"`
		B DocumentID `json:"b"`
		C DocumentID `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":12,"b":" 34 ","c":null}`), &doc))
	require.Equal(t, DocumentID(12), doc.A)
	require.Equal(t, DocumentID(34), doc.B)
	require.Zero(t, doc.C)

	require.Error(t, json.Unmarshal([]byte(`{"a":"twelve"}`), &doc))
	require.Error(t, json.Unmarshal([]byte(`{"a":-1}`), &doc))
}

func TestContentVerifierRetrieve(t *testing.T) {
	store := contentstore.NewMemory()
	verifier, err := NewContentVerifier(store, time.Second)
	require.NoError(t, err)
	ctx := context.Background()

	hash, err := store.Put(ctx, []byte(`{"projectId":"3","judgeId":4,"totalScore":12.5,"timestamp":"2026-03-14T09:00:00Z","extra":"kept"}`))
	require.NoError(t, err)

	content, err := verifier.Retrieve(ctx, hash)
	require.NoError(t, err)
	require.Equal(t, DocumentID(3), content.Document.ProjectID)
	require.Equal(t, DocumentID(4), content.Document.JudgeID)
	require.InDelta(t, 12.5, *content.Document.TotalScore, 1e-9)
	require.True(t, content.Document.Timestamp.Equal(fixtureEpoch))
	require.Equal(t, "kept", content.Raw["extra"])

	missing, err := contentstore.HashOf([]byte("absent"))
	require.NoError(t, err)
	_, err = verifier.Retrieve(ctx, missing)
	require.ErrorIs(t, err, ErrContentNotAccessible)

	arrayHash, err := store.Put(ctx, []byte(`[1,2,3]`))
	require.NoError(t, err)
	_, err = verifier.Retrieve(ctx, arrayHash)
	require.ErrorIs(t, err, ErrContentParse)

	badTime, err := store.Put(ctx, []byte(`{"projectId":1,"judgeId":1,"totalScore":1,"timestamp":"yesterday"}`))
	require.NoError(t, err)
	_, err = verifier.Retrieve(ctx, badTime)
	require.ErrorIs(t, err, ErrContentParse)
}

func TestContentVerifierFlagsTamperedContent(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := contentstore.NewRedis(client, "judging:content:", 0)
	verifier, err := NewContentVerifier(store, time.Second)
	require.NoError(t, err)
	ctx := context.Background()

	hash, err := store.Put(ctx, []byte(`{"projectId":3,"judgeId":4,"totalScore":12.5,"timestamp":"2026-03-14T09:00:00Z"}`))
	require.NoError(t, err)
	require.NoError(t, server.Set("judging:content:"+hash, `{"projectId":3,"judgeId":4,"totalScore":50,"timestamp":"2026-03-14T09:00:00Z"}`))

	_, err = verifier.Retrieve(ctx, hash)
	require.ErrorIs(t, err, ErrContentTampered)
	require.NotErrorIs(t, err, ErrContentNotAccessible)
}
