package flow

import (
	"testing"

	energyledger "github.com/parsedata/energyledger"
	"github.com/parsedata/energyledger/errors"
	"github.com/parsedata/energyledger/ledger"
	"github.com/parsedata/energyledger/ledgertest/assert"
	"github.com/parsedata/energyledger/token"
	"github.com/parsedata/energyledger/tx"
)

var (
	sender   = energyledger.NewAddress([]byte("sender"))
	receiver = energyledger.NewAddress([]byte("receiver"))
	issuer   = energyledger.NewAddress([]byte("issuer"))
	notary   = energyledger.NewAddress([]byte("notary"))
)

func seed(t *testing.T, s *ledger.Store, recs ...token.Record) {
	t.Helper()
	for _, rec := range recs {
		mint := tx.NewPendingTransaction(notary)
		mint.Outputs = token.Records{rec}
		mint.Commands = []tx.Command{tx.IssueCommand{Issuer: issuer}}
		if err := s.Apply(mint); err != nil {
			t.Fatalf("seed: %+v", err)
		}
	}
}

func transferSpec(quantity uint64) TransferSpec {
	return TransferSpec{
		TokenType: "EnergyToken",
		Quantity:  quantity,
		Sender:    token.OwnerFilter{Owner: sender},
		SenderKey: sender,
		Receiver:  receiver,
		Notary:    notary,
	}
}

func TestBuildTransferSelectsGreedilyWithChange(t *testing.T) {
	s := ledger.NewStore()
	seed(t, s,
		token.NewRecord("EnergyToken", 10, sender, issuer),
		token.NewRecord("EnergyToken", 15, sender, issuer),
		token.NewRecord("EnergyToken", 30, sender, issuer),
	)

	p, err := BuildTransfer(s, transferSpec(18))
	if err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}

	// Greedy accumulation in ascending ID order stops as soon as the
	// requested quantity is covered.
	var selected uint64
	for i, in := range p.Inputs {
		selected += in.Quantity
		if i > 0 && p.Inputs[i-1].ID > in.ID {
			t.Fatal("inputs must be ordered ascending by ID")
		}
	}
	if selected < 18 {
		t.Fatalf("selected only %d", selected)
	}
	if len(p.Inputs) == 3 && selected-p.Inputs[2].Quantity >= 18 {
		t.Fatal("selection did not stop once covered")
	}

	if len(p.Outputs) != 2 {
		t.Fatalf("want primary plus change, got %d outputs", len(p.Outputs))
	}
	primary, change := p.Outputs[0], p.Outputs[1]
	if primary.Quantity != 18 || !primary.Owner.Equals(receiver) {
		t.Fatalf("bad primary output %+v", primary)
	}
	if change.Quantity != selected-18 || !change.Owner.Equals(sender) {
		t.Fatalf("bad change output %+v", change)
	}

	if len(p.Commands) != 1 {
		t.Fatalf("plain transfer wants a single move command, got %d", len(p.Commands))
	}
	if _, ok := p.Commands[0].(tx.MoveCommand); !ok {
		t.Fatalf("want move command, got %T", p.Commands[0])
	}
	if p.Audit != nil {
		t.Fatal("plain transfer must not carry an audit record")
	}
}

func TestBuildTransferDeterministic(t *testing.T) {
	s := ledger.NewStore()
	seed(t, s,
		token.NewRecord("EnergyToken", 5, sender, issuer),
		token.NewRecord("EnergyToken", 7, sender, issuer),
		token.NewRecord("EnergyToken", 11, sender, issuer),
	)

	first, err := BuildTransfer(s, transferSpec(9))
	if err != nil {
		t.Fatalf("first build: %+v", err)
	}
	second, err := BuildTransfer(s, transferSpec(9))
	if err != nil {
		t.Fatalf("second build: %+v", err)
	}

	// Building never consumes, so the same snapshot must yield the same
	// selection every time.
	if len(first.Inputs) != len(second.Inputs) {
		t.Fatalf("selections differ: %d vs %d inputs", len(first.Inputs), len(second.Inputs))
	}
	for i := range first.Inputs {
		if first.Inputs[i].ID != second.Inputs[i].ID {
			t.Fatalf("selection differs at %d: %s vs %s", i, first.Inputs[i].ID, second.Inputs[i].ID)
		}
	}
	if s.Size() != 3 {
		t.Fatalf("building must not touch the store, size %d", s.Size())
	}
}

func TestBuildTransferExactMatchNoChange(t *testing.T) {
	s := ledger.NewStore()
	seed(t, s,
		token.NewRecord("EnergyToken", 10, sender, issuer),
		token.NewRecord("EnergyToken", 15, sender, issuer),
	)

	p, err := BuildTransfer(s, transferSpec(25))
	if err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
	if len(p.Outputs) != 1 {
		t.Fatalf("exact match must not emit a change output, got %d outputs", len(p.Outputs))
	}
	if p.Outputs[0].Quantity != 25 {
		t.Fatalf("want 25, got %d", p.Outputs[0].Quantity)
	}
}

func TestBuildTransferAccountScope(t *testing.T) {
	s := ledger.NewStore()
	seed(t, s,
		token.NewRecord("EnergyToken", 40, sender, issuer).WithAccount("acc-1"),
		// Same owner key, different account. Must not be selected.
		token.NewRecord("EnergyToken", 40, sender, issuer).WithAccount("acc-2"),
	)

	spec := transferSpec(12)
	spec.Sender = token.OwnerFilter{Account: "acc-1"}
	spec.ReceiverAccount = "acc-9"
	p, err := BuildTransfer(s, spec)
	if err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
	if len(p.Inputs) != 1 || p.Inputs[0].Account != "acc-1" {
		t.Fatalf("scope leaked: %+v", p.Inputs)
	}
	if p.Outputs[0].Account != "acc-9" {
		t.Fatalf("primary output not tagged: %+v", p.Outputs[0])
	}
	// Change stays inside the sending account.
	if p.Outputs[1].Account != "acc-1" || p.Outputs[1].Quantity != 28 {
		t.Fatalf("bad change output %+v", p.Outputs[1])
	}
}

func TestBuildTransferInsufficientBalance(t *testing.T) {
	s := ledger.NewStore()
	seed(t, s, token.NewRecord("EnergyToken", 10, sender, issuer))

	_, err := BuildTransfer(s, transferSpec(11))
	ib, ok := err.(*InsufficientBalanceError)
	if !ok {
		t.Fatalf("want insufficient balance, got %+v", err)
	}
	if ib.Available != 10 || ib.Requested != 11 {
		t.Fatalf("bad error detail: %+v", ib)
	}
	assert.IsErr(t, errors.ErrInsufficientBalance, err)
	if s.Size() != 1 {
		t.Fatal("a failed build must leave the store untouched")
	}
}

func TestBuildTransferEmptyLedger(t *testing.T) {
	s := ledger.NewStore()
	_, err := BuildTransfer(s, transferSpec(1))
	ib, ok := err.(*InsufficientBalanceError)
	if !ok {
		t.Fatalf("want insufficient balance, got %+v", err)
	}
	if ib.Available != 0 || ib.Requested != 1 {
		t.Fatalf("bad error detail: %+v", ib)
	}
}

func TestBuildTransferMixedIssuersRejected(t *testing.T) {
	s := ledger.NewStore()
	other := energyledger.NewAddress([]byte("other-issuer"))
	seed(t, s,
		token.NewRecord("EnergyToken", 10, sender, issuer),
		token.NewRecord("EnergyToken", 10, sender, other),
	)

	// Covering 15 needs both records, so the selection spans two issuers.
	_, err := BuildTransfer(s, transferSpec(15))
	assert.IsErr(t, errors.ErrState, err)
	if s.Size() != 2 {
		t.Fatal("a failed build must leave the store untouched")
	}
}

func TestBuildTransferZeroQuantity(t *testing.T) {
	s := ledger.NewStore()
	seed(t, s, token.NewRecord("EnergyToken", 10, sender, issuer))

	_, err := BuildTransfer(s, transferSpec(0))
	assert.IsErr(t, errors.ErrInput, err)
}

func TestBuildTransferSanctioned(t *testing.T) {
	s := ledger.NewStore()
	seed(t, s, token.NewRecord("EnergyToken", 50, sender, issuer))

	host := energyledger.NewAddress([]byte("host"))
	sanction := energyledger.NewAddress([]byte("sanction"))
	spec := transferSpec(20)
	spec.Business = &BusinessPayload{
		ReceiverHost: host,
		Sanctioning:  sanction,
		EvidenceHash: []byte{0xAB, 0xCD},
		Note:         "delivery window 14:00-15:00",
	}

	p, err := BuildTransfer(s, spec)
	if err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
	if len(p.Commands) != 2 {
		t.Fatalf("want move plus energy transfer, got %d commands", len(p.Commands))
	}
	energy, ok := p.Commands[1].(tx.EnergyTransferCommand)
	if !ok {
		t.Fatalf("want energy transfer command, got %T", p.Commands[1])
	}
	if !energy.ReceiverHost.Equals(host) || !energy.Sanctioning.Equals(sanction) {
		t.Fatalf("bad command parties: %+v", energy)
	}

	if p.Audit == nil {
		t.Fatal("sanctioned transfer must carry an audit record")
	}
	if p.Audit.Quantity != 20 || p.Audit.TxID != p.ID {
		t.Fatalf("bad audit record %+v", p.Audit)
	}
	if !p.Audit.Sender.Equals(sender) || !p.Audit.Receiver.Equals(host) {
		t.Fatalf("bad audit parties %+v", p.Audit)
	}
	if p.Audit.Note != spec.Business.Note {
		t.Fatalf("note not carried: %q", p.Audit.Note)
	}
}

func TestBuildIssue(t *testing.T) {
	p, err := BuildIssue(notary, issuer, receiver, "EnergyToken", 100)
	if err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
	if len(p.Inputs) != 0 {
		t.Fatal("issue must not consume inputs")
	}
	if len(p.Outputs) != 1 || p.Outputs[0].Quantity != 100 {
		t.Fatalf("bad outputs %+v", p.Outputs)
	}
	if !p.Outputs[0].Issuer.Equals(issuer) {
		t.Fatal("output must name the issuer")
	}

	_, err = BuildIssue(notary, issuer, receiver, "EnergyToken", 0)
	assert.IsErr(t, errors.ErrInput, err)
}
