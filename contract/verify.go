package contract

import (
	"github.com/parsedata/energyledger/errors"
	"github.com/parsedata/energyledger/token"
	"github.com/parsedata/energyledger/tx"
)

// Rule names reported inside contract violation errors. Counterparties log
// these when they refuse to sign, so keep them stable.
const (
	RuleOneAuditOutput    = "one audit output"
	RuleMoveRequired      = "move command required"
	RuleCommandsPresent   = "commands present"
	RuleIssueStandsAlone  = "issue stands alone"
	RuleScopedInputs      = "inputs match sender scope"
	RuleConservation      = "quantity conservation"
	RuleSenderDelta       = "sender delta matches audit amount"
	RuleOneForeignOutput  = "one output leaves the sender"
	RuleAuditMatchesParty = "audit parties match command"
)

func violation(rule, detail string) error {
	if detail == "" {
		return errors.Wrap(errors.ErrContractViolation, rule)
	}
	return errors.Wrapf(errors.ErrContractViolation, "%s: %s", rule, detail)
}

// Verify validates the structural and business invariants of a transaction.
// It is pure and side effect free: it is run by the initiator before any
// signature is requested and re-run independently by every signer before
// they sign. A party refusing to sign does so locally, based on this check
// plus its own acceptance policy.
func Verify(t *tx.PendingTransaction) error {
	if err := t.Validate(); err != nil {
		return errors.Wrap(err, "structure")
	}

	var move *tx.MoveCommand
	var issue *tx.IssueCommand
	var energy *tx.EnergyTransferCommand
	for _, c := range t.Commands {
		switch c := c.(type) {
		case tx.MoveCommand:
			move = &c
		case tx.IssueCommand:
			issue = &c
		case tx.EnergyTransferCommand:
			energy = &c
		default:
			return violation(RuleCommandsPresent, "unknown command "+c.Tag())
		}
	}

	if issue != nil {
		// Minting cannot consume and cannot piggyback on transfers.
		if move != nil || energy != nil {
			return violation(RuleIssueStandsAlone, "issue combined with transfer commands")
		}
		if len(t.Inputs) != 0 {
			return violation(RuleIssueStandsAlone, "issue must not consume inputs")
		}
		for _, out := range t.Outputs {
			if !out.Issuer.Equals(issue.Issuer) {
				return violation(RuleIssueStandsAlone, "output issuer differs from issue command")
			}
		}
		if t.Audit != nil {
			return violation(RuleOneAuditOutput, "audit record on an issue transaction")
		}
		return nil
	}

	// Token ownership changes, so a move command must be present.
	if move == nil {
		return violation(RuleMoveRequired, "")
	}
	if len(t.Inputs) == 0 {
		return violation(RuleMoveRequired, "move without inputs")
	}

	// Every input must have been selected by the sender scope, an account
	// scoped transfer must not smuggle in foreign records.
	for _, in := range t.Inputs {
		if !t.SenderScope.Matches(in) {
			return violation(RuleScopedInputs, "input "+in.ID)
		}
	}

	// Conservation per token type, nothing minted, nothing burned.
	inSums := sumByType(t.Inputs)
	outSums := sumByType(t.Outputs)
	if len(inSums) != len(outSums) {
		return violation(RuleConservation, "token types differ between inputs and outputs")
	}
	for typ, inSum := range inSums {
		if outSums[typ] != inSum {
			return violation(RuleConservation, typ)
		}
	}

	if energy == nil {
		if t.Audit != nil {
			return violation(RuleOneAuditOutput, "audit record without an energy transfer command")
		}
		return nil
	}

	// A sanctioned energy settlement must carry exactly one linked audit
	// record describing it.
	if t.Audit == nil {
		return violation(RuleOneAuditOutput, "energy transfer without an audit record")
	}
	if !t.Audit.Sender.Equals(energy.Sender) || !t.Audit.Receiver.Equals(energy.ReceiverHost) {
		return violation(RuleAuditMatchesParty, "")
	}
	if t.Audit.TxID != t.ID {
		return violation(RuleAuditMatchesParty, "audit linked to a different transaction")
	}

	// The amount leaving the sender must equal the audited amount, and it
	// must leave through a single output.
	var kept uint64
	var foreignOutputs int
	for _, out := range t.Outputs {
		if t.SenderScope.Matches(out) {
			kept += out.Quantity
		} else {
			foreignOutputs++
		}
	}
	if foreignOutputs != 1 {
		return violation(RuleOneForeignOutput, "")
	}
	var spent uint64
	for _, in := range t.Inputs {
		spent += in.Quantity
	}
	if spent-kept != t.Audit.Quantity {
		return violation(RuleSenderDelta, "")
	}

	return nil
}

func sumByType(recs token.Records) map[string]uint64 {
	sums := make(map[string]uint64, 1)
	for _, r := range recs {
		sums[r.TokenType] += r.Quantity
	}
	return sums
}
