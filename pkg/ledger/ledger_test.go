package ledger

import (
	"context"
	"encoding/hex"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bankfair_client/pkg/txerr"
)

type stubContract struct {
	addr common.Address
	out  map[string][]interface{}
	err  error
}

func (s *stubContract) Address() common.Address { return s.addr }

func (s *stubContract) Call(_ context.Context, method string, _ ...interface{}) ([]interface{}, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.out[method], nil
}

func (s *stubContract) Transact(context.Context, string, ...interface{}) (Pending, error) {
	return nil, txerr.Rejected(assert.AnError, "stub")
}

func TestABIs_Parse(t *testing.T) {
	for name, src := range map[string]string{"token": TokenABI, "pool": PoolABI} {
		_, err := abi.JSON(strings.NewReader(src))
		require.NoError(t, err, name)
	}
}

func TestTokenABI_ApproveSelector(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(TokenABI))
	require.NoError(t, err)

	spender := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	data, err := parsed.Pack("approve", spender, big.NewInt(500))
	require.NoError(t, err)
	assert.Equal(t, "095ea7b3", hex.EncodeToString(data[:4]))
	assert.Len(t, data, 4+32+32)
}

func TestPool_Loan(t *testing.T) {
	borrower := common.HexToAddress("0x1111111111111111111111111111111111111111")
	c := &stubContract{out: map[string][]interface{}{
		"loans": {
			big.NewInt(7), borrower, big.NewInt(1000), big.NewInt(86400 * 30),
			big.NewInt(1200), big.NewInt(300), big.NewInt(1700000000), uint8(2),
		},
	}}
	loan, err := NewPool(c).Loan(context.Background(), big.NewInt(7))
	require.NoError(t, err)
	assert.True(t, loan.Exists())
	assert.Equal(t, borrower, loan.Borrower)
	assert.Equal(t, LoanApproved, loan.Status)
	assert.Equal(t, "APPROVED", loan.Status.String())
}

func TestPool_LoanRejectsMalformedOutput(t *testing.T) {
	c := &stubContract{out: map[string][]interface{}{"loans": {big.NewInt(1)}}}
	_, err := NewPool(c).Loan(context.Background(), big.NewInt(1))
	assert.Error(t, err)
}

func TestCallBig_WrongType(t *testing.T) {
	c := &stubContract{out: map[string][]interface{}{"poolLiqudity": {"nope"}}}
	_, err := NewPool(c).PoolLiquidity(context.Background())
	assert.Error(t, err)
}

func TestLoanStatus_Unknown(t *testing.T) {
	assert.Equal(t, "UNKNOWN", LoanStatus(42).String())
	assert.Equal(t, "DEFAULTED", LoanDefaulted.String())
}

func TestConvertReceipt_KeepsEveryLogInOrder(t *testing.T) {
	pool := common.HexToAddress("0x2222222222222222222222222222222222222222")
	token := common.HexToAddress("0x3333333333333333333333333333333333333333")
	transfer := crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	parsed, err := abi.JSON(strings.NewReader(PoolABI))
	require.NoError(t, err)

	r := &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      common.HexToHash("0xabc"),
		BlockNumber: big.NewInt(12),
		Logs: []*types.Log{
			{Address: token, Topics: []common.Hash{transfer}, Data: common.BigToHash(big.NewInt(7)).Bytes()},
			{Address: pool, Data: common.BigToHash(big.NewInt(42)).Bytes()},
		},
	}
	got := convertReceipt(parsed, r)
	require.Len(t, got.Events, 2)
	assert.True(t, got.Status)
	assert.Equal(t, uint64(12), got.BlockNumber)
	assert.Equal(t, token, got.Events[0].Address)

	v, ok := got.EventAmount(0)
	require.True(t, ok)
	assert.Equal(t, int64(7), v.Int64(), "the token transfer is the first raw event")
	v, ok = got.EventAmount(1)
	require.True(t, ok)
	assert.Equal(t, int64(42), v.Int64())

	_, ok = got.EventAmount(2)
	assert.False(t, ok)
}

func TestConvertReceipt_DecodedEventsAreNotNumbered(t *testing.T) {
	pool := common.HexToAddress("0x2222222222222222222222222222222222222222")
	parsed, err := abi.JSON(strings.NewReader(`[{"type":"event","name":"LoanRequested","anonymous":false,
		"inputs":[{"name":"loanId","type":"uint256","indexed":false}]}]`))
	require.NoError(t, err)

	r := &types.Receipt{
		Status: types.ReceiptStatusSuccessful,
		Logs: []*types.Log{
			{Address: pool, Topics: []common.Hash{parsed.Events["LoanRequested"].ID}, Data: common.BigToHash(big.NewInt(9)).Bytes()},
			{Address: pool, Data: common.BigToHash(big.NewInt(3)).Bytes()},
		},
	}
	got := convertReceipt(parsed, r)
	require.Len(t, got.Events, 2)
	assert.True(t, got.Events[0].Decoded)

	v, ok := got.EventAmount(0)
	require.True(t, ok)
	assert.Equal(t, int64(3), v.Int64())
}

func TestReceipt_EventAmountNeedsSuccess(t *testing.T) {
	r := &Receipt{Status: false, Events: []Event{{Data: common.BigToHash(big.NewInt(5)).Bytes()}}}
	_, ok := r.EventAmount(0)
	assert.False(t, ok)
}
