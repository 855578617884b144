package convert

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/and161185/zknotes/internal/model"
	"github.com/and161185/zknotes/internal/request"
)

func TestToUserResponse_FieldNames(t *testing.T) {
	t.Parallel()
	id := uuid.Must(uuid.NewV4())
	out := ToUserResponse(model.UserView{
		ID:             id,
		Username:       "alice",
		SignatureSalt:  []byte{1},
		EncryptionSalt: []byte{2},
		PublicKey:      []byte{3},
	})
	raw, err := json.Marshal(out)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, id.String(), m["id"])
	assert.Equal(t, "alice", m["username"])
	assert.Equal(t, "AQ==", m["signatureSaltB64"])
	assert.Equal(t, "Ag==", m["encryptionSaltB64"])
	assert.Equal(t, "Aw==", m["publicKeyB64"])
}

func TestChallenge_Decode(t *testing.T) {
	t.Parallel()
	in := model.Challenge{SignatureSalt: []byte("salt"), Nonce: []byte("nonce")}
	got, err := FromChallengeResponse(ToChallengeResponse(in))
	require.NoError(t, err)
	assert.Equal(t, in, got)

	_, err = FromChallengeResponse(ChallengeResponse{SignatureSaltB64: "!!", NonceB64: "AA=="})
	require.Error(t, err)
}

func TestSignupRequest_ValidateDelegates(t *testing.T) {
	t.Parallel()
	_, err := SignupRequest{Username: "bad name"}.Validate()
	var ve *request.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "username", ve.Field)
}

func TestNote_RoundTripAndBadID(t *testing.T) {
	t.Parallel()
	n := model.Note{
		ID:               uuid.Must(uuid.NewV4()),
		EncryptedTitle:   model.EncryptedBlob("t"),
		EncryptedContent: model.EncryptedBlob("c"),
		Timestamp:        time.Date(2025, 1, 2, 3, 4, 5, 6000, time.UTC),
	}
	got, err := FromNoteResponse(ToNoteResponse(n))
	require.NoError(t, err)
	assert.Equal(t, n.ID, got.ID)
	assert.Equal(t, n.EncryptedTitle, got.EncryptedTitle)
	assert.True(t, n.Timestamp.Equal(got.Timestamp))

	_, err = FromNoteResponse(NoteResponse{ID: "nope"})
	require.Error(t, err)
}

func TestNotePageResponse_HasMore(t *testing.T) {
	t.Parallel()
	p := ToNotePageResponse(model.NotePage{Items: []model.Note{{}}, Page: 1, PageSize: 1, TotalCount: 2})
	assert.True(t, p.HasMore)
	assert.Len(t, p.Items, 1)

	p = ToNotePageResponse(model.NotePage{Page: 2, PageSize: 1, TotalCount: 2})
	assert.False(t, p.HasMore)
	assert.NotNil(t, p.Items, "empty page encodes as [] not null")
}

func TestNoteCursorPageResponse_OmitsCursorOnLastPage(t *testing.T) {
	t.Parallel()
	raw, err := json.Marshal(ToNoteCursorPageResponse(model.NoteCursorPage{PageSize: 5}))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "nextCursor")

	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	id := uuid.Must(uuid.NewV4())
	out := ToNoteCursorPageResponse(model.NoteCursorPage{PageSize: 5, HasMore: true, NextCursor: ts, NextCursorID: id})
	require.NotNil(t, out.NextCursor)
	assert.True(t, ts.Equal(*out.NextCursor))
	assert.Equal(t, id.String(), out.NextCursorID)
}
