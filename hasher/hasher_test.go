package hasher

import (
	"bytes"
	"math"
	"testing"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"
	"google.golang.org/protobuf/types/known/typepb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func pubKey(b byte) []byte {
	k := bytes.Repeat([]byte{b}, 33)
	k[0] = 0x02
	return k
}

func transferTx() *TokenTransaction {
	return &TokenTransaction{
		Version: 2,
		Transfer: &TransferInput{OutputsToSpend: []OutputReference{
			{PrevTokenTransactionHash: bytes.Repeat([]byte{0xaa}, 32), Vout: 1},
		}},
		Outputs: []*TokenOutput{{
			ID:                            "0f5e0a3c-output",
			OwnerPublicKey:                pubKey(0x01),
			RevocationCommitment:          pubKey(0x02),
			WithdrawBondSats:              10_000,
			WithdrawRelativeBlockLocktime: 144,
			TokenPublicKey:                pubKey(0x03),
			TokenAmount:                   decimal.NewFromInt(1_000),
		}},
		OperatorIdentityPublicKeys: [][]byte{pubKey(0x05), pubKey(0x04)},
		Network:                    wire.TestNet3,
		ClientCreatedTimestamp:     time.UnixMilli(1_700_000_000_000),
		ExpiryTime:                 time.UnixMilli(1_700_000_600_000),
	}
}

func TestTokenHashStable(t *testing.T) {
	a, err := HashTokenTransaction(transferTx(), false)
	require.NoError(t, err)
	b, err := HashTokenTransaction(transferTx(), false)
	require.NoError(t, err)
	assert.Len(t, a, 32)
	assert.Equal(t, a, b)
}

func TestTokenHashPartialDiffersFromFinal(t *testing.T) {
	tx := transferTx()
	partial, err := HashTokenTransaction(tx, true)
	require.NoError(t, err)
	final, err := HashTokenTransaction(tx, false)
	require.NoError(t, err)
	assert.NotEqual(t, partial, final)

	// partial 哈希不受运营方字段影响
	tx.Outputs[0].ID = "other"
	tx.Outputs[0].WithdrawBondSats = 1
	tx.ExpiryTime = time.UnixMilli(1)
	again, err := HashTokenTransaction(tx, true)
	require.NoError(t, err)
	assert.Equal(t, partial, again)
}

func TestTokenHashSortsOperatorKeys(t *testing.T) {
	a, err := HashTokenTransaction(transferTx(), false)
	require.NoError(t, err)

	tx := transferTx()
	tx.OperatorIdentityPublicKeys = [][]byte{pubKey(0x04), pubKey(0x05)}
	b, err := HashTokenTransaction(tx, false)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestTokenHashVersionOneIgnoresTimestamp(t *testing.T) {
	tx := transferTx()
	tx.Version = 1
	tx.ExpiryTime = time.Time{}
	a, err := HashTokenTransaction(tx, false)
	require.NoError(t, err)

	tx.ClientCreatedTimestamp = time.UnixMilli(42)
	b, err := HashTokenTransaction(tx, false)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestTokenHashMintAndCreate(t *testing.T) {
	mint := &TokenTransaction{
		Version: 2,
		Mint:    &MintInput{IssuerPublicKey: pubKey(0x07), TokenIdentifier: []byte("tok")},
		Outputs: []*TokenOutput{{OwnerPublicKey: pubKey(0x01), TokenAmount: decimal.NewFromInt(5)}},
		Network: wire.MainNet,
	}
	mh, err := HashTokenTransaction(mint, false)
	require.NoError(t, err)

	create := &TokenTransaction{
		Version: 2,
		Create: &CreateInput{
			IssuerPublicKey: pubKey(0x07),
			TokenName:       "Frost",
			TokenTicker:     "FRST",
			Decimals:        8,
			MaxSupply:       decimal.RequireFromString("21000000000000000"),
		},
		Network: wire.MainNet,
	}
	ch, err := HashTokenTransaction(create, false)
	require.NoError(t, err)
	assert.NotEqual(t, mh, ch)
}

func TestTokenHashRejectsInvalid(t *testing.T) {
	_, err := HashTokenTransaction(nil, false)
	assert.ErrorIs(t, err, ErrNilTransaction)

	tx := transferTx()
	tx.Mint = &MintInput{IssuerPublicKey: pubKey(0x07)}
	_, err = HashTokenTransaction(tx, false)
	assert.ErrorIs(t, err, ErrInvalidInput)

	tx = transferTx()
	tx.Outputs[0].TokenAmount = decimal.RequireFromString("1.5")
	_, err = HashTokenTransaction(tx, false)
	assert.ErrorIs(t, err, ErrInvalidField)

	tx = transferTx()
	tx.Outputs[0].TokenAmount = decimal.NewFromBigInt(maxUint128, 0)
	_, err = HashTokenTransaction(tx, false)
	assert.ErrorIs(t, err, ErrInvalidField)

	tx = transferTx()
	tx.OperatorIdentityPublicKeys = append(tx.OperatorIdentityPublicKeys, []byte{1})
	_, err = HashTokenTransaction(tx, false)
	assert.ErrorIs(t, err, ErrInvalidField)
}

func TestUint128Bytes(t *testing.T) {
	b, err := Uint128Bytes(decimal.NewFromInt(258))
	require.NoError(t, err)
	assert.Equal(t, append(make([]byte, 14), 0x01, 0x02), b)

	_, err = Uint128Bytes(decimal.NewFromInt(-1))
	assert.ErrorIs(t, err, ErrInvalidField)
}

// ========== protobuf ==========

func mustStruct(t *testing.T, m map[string]interface{}) *structpb.Struct {
	s, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return s
}

func TestHashMessageStructOrderIndependent(t *testing.T) {
	a := &structpb.Struct{Fields: map[string]*structpb.Value{}}
	a.Fields["alpha"] = structpb.NewNumberValue(1)
	a.Fields["beta"] = structpb.NewStringValue("x")

	b := &structpb.Struct{Fields: map[string]*structpb.Value{}}
	b.Fields["beta"] = structpb.NewStringValue("x")
	b.Fields["alpha"] = structpb.NewNumberValue(1)

	ha, err := HashMessage(a)
	require.NoError(t, err)
	hb, err := HashMessage(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
}

func TestHashMessageSkipsNulls(t *testing.T) {
	withNull := mustStruct(t, map[string]interface{}{"a": "x", "gone": nil})
	without := mustStruct(t, map[string]interface{}{"a": "x"})

	h1, err := HashMessage(withNull)
	require.NoError(t, err)
	h2, err := HashMessage(without)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestHashMessageListKeepsNullPositions(t *testing.T) {
	a, err := structpb.NewList([]interface{}{nil, "x"})
	require.NoError(t, err)
	b, err := structpb.NewList([]interface{}{"x"})
	require.NoError(t, err)

	ha, err := HashMessage(a)
	require.NoError(t, err)
	hb, err := HashMessage(b)
	require.NoError(t, err)
	assert.NotEqual(t, ha, hb)
}

func TestHashFloatCanonicalization(t *testing.T) {
	assert.Equal(t, hashFloat(0), hashFloat(math.Copysign(0, -1)))
	assert.Equal(t, hashFloat(math.NaN()), hashFloat(math.Float64frombits(0x7ff8000000000001)))
	assert.NotEqual(t, hashFloat(1), hashFloat(-1))
}

func TestHashTypeTagsPreventConfusion(t *testing.T) {
	assert.NotEqual(t, hashString("1"), hashInt(1))
	assert.NotEqual(t, hashString("1"), hashBytes([]byte("1")))
	assert.NotEqual(t, hashBool(true), hashInt(1))
}

func TestHashMessageSkipsUnsetFields(t *testing.T) {
	a := &typepb.Type{Name: "T"}
	b := &typepb.Type{Name: "T", Fields: []*typepb.Field{}}
	ha, err := HashMessage(a)
	require.NoError(t, err)
	hb, err := HashMessage(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)

	c := &typepb.Type{Name: "T", Syntax: typepb.Syntax_SYNTAX_PROTO3}
	hc, err := HashMessage(c)
	require.NoError(t, err)
	assert.NotEqual(t, ha, hc)
}

func TestHashMessageNested(t *testing.T) {
	msg := &typepb.Type{
		Name: "T",
		Fields: []*typepb.Field{
			{Name: "a", Number: 1, Kind: typepb.Field_TYPE_STRING},
			{Name: "b", Number: 2, Kind: typepb.Field_TYPE_INT64},
		},
		Oneofs: []string{"choice"},
	}
	h1, err := HashMessage(msg)
	require.NoError(t, err)

	msg.Fields[0], msg.Fields[1] = msg.Fields[1], msg.Fields[0]
	h2, err := HashMessage(msg)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2, "list order is significant")
}

func TestHashWellKnownTypes(t *testing.T) {
	ts, err := HashMessage(timestamppb.New(time.Unix(10, 5)))
	require.NoError(t, err)
	d, err := HashMessage(durationpb.New(10*time.Second + 5))
	require.NoError(t, err)
	assert.Equal(t, hashList([][]byte{hashInt(10), hashInt(5)}), ts)
	assert.Equal(t, ts, d)

	w, err := HashMessage(wrapperspb.String("x"))
	require.NoError(t, err)
	assert.Equal(t, hashString("x"), w)

	zero, err := HashMessage(wrapperspb.Int64(0))
	require.NoError(t, err)
	assert.Equal(t, hashInt(0), zero)

	_, err = HashMessage(nil)
	assert.ErrorIs(t, err, ErrNilMessage)
}
