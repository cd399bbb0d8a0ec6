package types

import (
	"bytes"
	"crypto/rand"
	"testing"
	"time"

	"frostsign/frost/core/frost"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPubKey(t *testing.T) []byte {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return priv.PubKey().SerializeCompressed()
}

func TestMusigIDKeyDistinguishesKindAndRune(t *testing.T) {
	pk := testPubKey(t)
	user, err := NewUserID(pk, "840000:1")
	require.NoError(t, err)
	issuer, err := NewIssuerID(pk, "840000:1")
	require.NoError(t, err)
	other, err := NewUserID(pk, "840000:2")
	require.NoError(t, err)

	assert.NotEqual(t, user.Key(), issuer.Key())
	assert.NotEqual(t, user.Key(), other.Key())
	assert.NotContains(t, user.Key(), "/")
	assert.Contains(t, user.String(), "rune=840000:1")
}

func TestMusigIDRejectsBadKey(t *testing.T) {
	_, err := NewUserID([]byte{0x02, 0x01}, "")
	assert.ErrorIs(t, err, ErrInvalidMusigID)

	bad := bytes.Repeat([]byte{0x05}, 33)
	_, err = NewIssuerID(bad, "")
	assert.ErrorIs(t, err, ErrInvalidMusigID)

	var id MusigID
	assert.ErrorIs(t, id.Validate(), ErrInvalidMusigID)
}

func TestSigningMetadataValidate(t *testing.T) {
	assert.ErrorIs(t, SigningMetadata{}.Validate(), ErrInvalidPurpose)
	assert.NoError(t, SigningMetadata{Purpose: PurposeAuthorization}.Validate())
	assert.ErrorIs(t, SigningMetadata{Purpose: 9}.Validate(), ErrInvalidPurpose)
}

func TestParseTweak(t *testing.T) {
	tw, err := ParseTweak(nil)
	require.NoError(t, err)
	assert.Nil(t, tw)
	assert.Nil(t, tw.Bytes())

	_, err = ParseTweak([]byte{1, 2})
	assert.ErrorIs(t, err, ErrInvalidTweak)

	tw, err = ParseTweak(bytes.Repeat([]byte{0x11}, 32))
	require.NoError(t, err)
	assert.Equal(t, byte(0x11), tw[31])
}

func TestSignRound1RequestDecodeRequiresSession(t *testing.T) {
	id, err := NewUserID(testPubKey(t), "")
	require.NoError(t, err)

	req := &SignRound1Request{
		MusigID:     id,
		MessageHash: []byte("hash"),
		Metadata:    SigningMetadata{Purpose: PurposeMessage},
	}
	raw, err := req.MarshalBinary()
	require.NoError(t, err)

	var decoded SignRound1Request
	assert.ErrorIs(t, decoded.UnmarshalBinary(raw), ErrMalformedRecord)

	req.SessionID = "s-1"
	req.Tweak = &TweakBytes{0x11}
	raw, err = req.MarshalBinary()
	require.NoError(t, err)
	require.NoError(t, decoded.UnmarshalBinary(raw))
	assert.Equal(t, req.MusigID, decoded.MusigID)
	assert.Equal(t, *req.Tweak, *decoded.Tweak)
	assert.Equal(t, PurposeMessage, decoded.Metadata.Purpose)
}

func TestSignerKeyStatePersistsSecrets(t *testing.T) {
	secret, pkg, err := frost.DkgPart1(1, 3, 2, rand.Reader)
	require.NoError(t, err)

	state := &SignerKeyState{
		Phase:          KeyPhaseDkgRound2,
		Round1Secret:   secret,
		Round1Packages: map[frost.Identifier]*frost.Round1Package{2: pkg},
	}
	raw, err := state.MarshalBinary()
	require.NoError(t, err)

	var decoded SignerKeyState
	require.NoError(t, decoded.UnmarshalBinary(raw))
	assert.Equal(t, KeyPhaseDkgRound2, decoded.Phase)
	require.NotNil(t, decoded.Round1Secret)
	assert.True(t, decoded.Round1Secret.Polynomial.Coefficients[1].Equals(&secret.Polynomial.Coefficients[1]))
	require.Contains(t, decoded.Round1Packages, frost.Identifier(2))

	decoded.Zeroize()
	assert.True(t, decoded.Round1Secret.Polynomial.Coefficients[0].IsZero())
}

func TestSessionStateCreatedAt(t *testing.T) {
	now := time.Now()
	s := &AggregatorSessionState{
		Phase:       SessionPhaseSigningRound1,
		MessageHash: []byte("m"),
		Metadata:    SigningMetadata{Purpose: PurposeAuthorization, Detail: "login"},
		CreatedAt:   now,
	}
	raw, err := s.MarshalBinary()
	require.NoError(t, err)

	var decoded AggregatorSessionState
	require.NoError(t, decoded.UnmarshalBinary(raw))
	assert.True(t, now.Equal(decoded.CreatedAt))
	assert.Equal(t, "login", decoded.Metadata.Detail)
	assert.Nil(t, decoded.Tweak)

	assert.ErrorIs(t, decoded.UnmarshalBinary([]byte{0x0a, 0x05}), ErrMalformedState)
}
