package params

import (
	"encoding/json"
	"testing"

	"github.com/haileyok/didlog/hasher"
	"github.com/haileyok/didlog/types"
	"github.com/stretchr/testify/require"
)

const (
	k1 = "z6MkhaXgBZDvotDkL5257faiztiGiC2QtKLGpbnnEGta2doK"
	k2 = "z6MkrJVnaZkeFzdQyMZu1cgjg7k1pZZ6pvBQ7XJPt4swbTQ2"
)

func genesis(t *testing.T) Parameters {
	t.Helper()
	p, err := Parameters{}.Merge(&Delta{
		Method:     StringPtr("did:tdw:0.3"),
		SCID:       StringPtr("Qmscid"),
		UpdateKeys: SlicePtr([]string{k1}),
	})
	require.NoError(t, err)
	return p
}

func TestMergeCarriesForward(t *testing.T) {
	p := genesis(t)

	p2, err := p.Merge(&Delta{Portable: BoolPtr(true)})
	require.NoError(t, err)
	require.Equal(t, "did:tdw:0.3", p2.Method)
	require.Equal(t, "Qmscid", p2.SCID)
	require.Equal(t, []string{k1}, p2.UpdateKeys)
	require.True(t, p2.Portable)

	p3, err := p2.Merge(&Delta{UpdateKeys: SlicePtr([]string{k2})})
	require.NoError(t, err)
	require.Equal(t, []string{k2}, p3.UpdateKeys)
	require.True(t, p3.Portable)

	// snapshot is untouched
	require.Equal(t, []string{k1}, p2.UpdateKeys)
}

func TestMergeRejectsSCIDChange(t *testing.T) {
	p := genesis(t)

	_, err := p.Merge(&Delta{SCID: StringPtr("Qmother")})
	require.ErrorIs(t, err, types.ErrInvalidLog)

	_, err = p.Merge(&Delta{SCID: StringPtr("Qmscid")})
	require.NoError(t, err)
}

func TestMergeRequiresUpdateKeys(t *testing.T) {
	_, err := Parameters{}.Merge(&Delta{SCID: StringPtr("Qmscid")})
	require.ErrorIs(t, err, types.ErrInvalidLog)

	_, err = genesis(t).Merge(&Delta{UpdateKeys: SlicePtr(nil)})
	require.ErrorIs(t, err, types.ErrInvalidLog)
}

func TestDeactivationFreezes(t *testing.T) {
	p, err := genesis(t).Merge(&Delta{Deactivated: BoolPtr(true), UpdateKeys: SlicePtr(nil)})
	require.NoError(t, err)
	require.True(t, p.Deactivated)
	require.Empty(t, p.UpdateKeys)
	require.False(t, p.IsAuthorizedForNextUpdate(k1))

	_, err = p.Merge(&Delta{Portable: BoolPtr(true)})
	require.ErrorIs(t, err, types.ErrAlreadyDeactivated)
}

func TestAuthorizationWithoutPreRotation(t *testing.T) {
	p := genesis(t)
	require.False(t, p.IsPreRotationActive())
	require.True(t, p.IsAuthorizedForNextUpdate(k1))
	require.False(t, p.IsAuthorizedForNextUpdate(k2))
}

func TestAuthorizationWithPreRotation(t *testing.T) {
	hashes, err := NextKeyHashesFor([]string{k2, k2})
	require.NoError(t, err)
	require.Len(t, hashes, 1)

	h, err := hasher.HashString(k2)
	require.NoError(t, err)
	require.Equal(t, h, hashes[0])

	p, err := genesis(t).Merge(&Delta{NextKeyHashes: SlicePtr(hashes)})
	require.NoError(t, err)
	require.True(t, p.IsPreRotationActive())

	require.True(t, p.IsAuthorizedForNextUpdate(k2))
	// the current key is not committed to, so it can no longer sign
	require.False(t, p.IsAuthorizedForNextUpdate(k1))

	off, err := p.Merge(&Delta{NextKeyHashes: SlicePtr(nil)})
	require.NoError(t, err)
	require.False(t, off.IsPreRotationActive())
	require.True(t, off.IsAuthorizedForNextUpdate(k1))
}

func TestDeltaJSON(t *testing.T) {
	d := Delta{Deactivated: BoolPtr(true), UpdateKeys: SlicePtr(nil)}
	b, err := json.Marshal(d)
	require.NoError(t, err)
	require.JSONEq(t, `{"deactivated":true,"updateKeys":[]}`, string(b))

	var back Delta
	require.NoError(t, json.Unmarshal([]byte(`{"portable":false}`), &back))
	require.NotNil(t, back.Portable)
	require.False(t, *back.Portable)
	require.Nil(t, back.UpdateKeys)
}

func TestDedupeAndSameSet(t *testing.T) {
	require.Equal(t, []string{"a", "b", "c"}, Dedupe([]string{"a", "b"}, []string{"b", "c", "a"}))
	require.Nil(t, Dedupe())
	require.True(t, SameSet([]string{"a", "b", "a"}, []string{"b", "a"}))
	require.False(t, SameSet([]string{"a"}, []string{"a", "b"}))
}
