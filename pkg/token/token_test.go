package token

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	tokenAddr = common.HexToAddress("0x5133000000000000000000000000000000000000")
	deployer  = common.HexToAddress("0xDD00000000000000000000000000000000000000")
	receiver  = common.HexToAddress("0xCC00000000000000000000000000000000000000")
	spender   = common.HexToAddress("0xEE00000000000000000000000000000000000000")
)

func TestDeployment(t *testing.T) {
	tok := NewSolski(tokenAddr, deployer)

	if tok.Name() != "Solski Token" {
		t.Errorf("name = %q, want Solski Token", tok.Name())
	}
	if tok.Symbol() != "SLK" {
		t.Errorf("symbol = %q, want SLK", tok.Symbol())
	}
	if tok.Decimals() != 18 {
		t.Errorf("decimals = %d, want 18", tok.Decimals())
	}

	supply := Units(1_000_000)
	if tok.TotalSupply().Cmp(supply) != 0 {
		t.Errorf("total supply = %s, want %s", tok.TotalSupply(), supply)
	}
	// The deployer holds the entire supply.
	if tok.BalanceOf(deployer).Cmp(supply) != 0 {
		t.Errorf("deployer balance = %s, want %s", tok.BalanceOf(deployer), supply)
	}
}

func TestTransfer(t *testing.T) {
	tok := NewSolski(tokenAddr, deployer)

	if err := tok.Transfer(deployer, receiver, Units(100)); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if got := tok.BalanceOf(deployer); got.Cmp(Units(999_900)) != 0 {
		t.Errorf("deployer balance = %s, want %s", got, Units(999_900))
	}
	if got := tok.BalanceOf(receiver); got.Cmp(Units(100)) != 0 {
		t.Errorf("receiver balance = %s, want %s", got, Units(100))
	}
}

func TestTransferInsufficient(t *testing.T) {
	tok := NewSolski(tokenAddr, deployer)

	err := tok.Transfer(receiver, deployer, Units(1))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	if tok.BalanceOf(deployer).Cmp(Units(1_000_000)) != 0 {
		t.Error("failed transfer moved funds")
	}
}

func TestApproveAndTransferFrom(t *testing.T) {
	tok := NewSolski(tokenAddr, deployer)

	if err := tok.Approve(deployer, spender, Units(50)); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if got := tok.Allowance(deployer, spender); got.Cmp(Units(50)) != 0 {
		t.Errorf("allowance = %s, want %s", got, Units(50))
	}

	if err := tok.TransferFrom(spender, deployer, receiver, Units(30)); err != nil {
		t.Fatalf("transferFrom failed: %v", err)
	}
	if got := tok.BalanceOf(receiver); got.Cmp(Units(30)) != 0 {
		t.Errorf("receiver balance = %s, want %s", got, Units(30))
	}
	// Allowance is consumed.
	if got := tok.Allowance(deployer, spender); got.Cmp(Units(20)) != 0 {
		t.Errorf("allowance after spend = %s, want %s", got, Units(20))
	}

	// Spending past the remaining allowance fails.
	err := tok.TransferFrom(spender, deployer, receiver, Units(21))
	if !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("err = %v, want ErrInsufficientAllowance", err)
	}
}

func TestTransferFromWithoutApproval(t *testing.T) {
	tok := NewSolski(tokenAddr, deployer)

	err := tok.TransferFrom(spender, deployer, receiver, Units(1))
	if !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("err = %v, want ErrInsufficientAllowance", err)
	}
}

func TestRegistryCustody(t *testing.T) {
	custodian := common.HexToAddress("0xE100000000000000000000000000000000000000")
	r := NewRegistry(custodian)
	tok := NewSolski(tokenAddr, deployer)
	r.Register(tok)

	// Pull requires an allowance for the custodian.
	if err := r.TransferFrom(tokenAddr, deployer, custodian, Units(10)); err == nil {
		t.Fatal("expected pull without approval to fail")
	}

	tok.Approve(deployer, custodian, Units(10))
	if err := r.TransferFrom(tokenAddr, deployer, custodian, Units(10)); err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if got := r.BalanceOf(tokenAddr, custodian); got.Cmp(Units(10)) != 0 {
		t.Errorf("custodian balance = %s, want %s", got, Units(10))
	}

	// Push moves funds back out of custody.
	if err := r.Transfer(tokenAddr, receiver, Units(4)); err != nil {
		t.Fatalf("push failed: %v", err)
	}
	if got := r.BalanceOf(tokenAddr, receiver); got.Cmp(Units(4)) != 0 {
		t.Errorf("receiver balance = %s, want %s", got, Units(4))
	}
}

func TestRegistryUnknownToken(t *testing.T) {
	r := NewRegistry(common.Address{})
	other := common.HexToAddress("0x9900000000000000000000000000000000000000")

	if err := r.Transfer(other, receiver, big.NewInt(1)); !errors.Is(err, ErrUnknownToken) {
		t.Errorf("err = %v, want ErrUnknownToken", err)
	}
	if got := r.BalanceOf(other, receiver); got.Sign() != 0 {
		t.Errorf("balance of unknown token = %s, want 0", got)
	}
}
