package core

import (
	"sort"

	"github.com/shopspring/decimal"
)

// PersonBalance is one person's position against the fair share.
// Positive Balance means the person is owed money.
type PersonBalance struct {
	Person    string
	Paid      int64
	FairShare int64
	Balance   int64
}

// Transfer is a payment instruction from a debtor to a creditor.
type Transfer struct {
	From   string
	To     string
	Amount int64
}

// Settlement is the outcome of Settle.
type Settlement struct {
	FairShare int64
	Balances  []PersonBalance
	Transfers []Transfer
}

// FairShare divides total by count, rounding half away from zero.
// A zero count yields zero.
func FairShare(total int64, count int) int64 {
	if count <= 0 {
		return 0
	}
	return decimal.NewFromInt(total).
		Div(decimal.NewFromInt(int64(count))).
		Round(0).
		IntPart()
}

// Settle computes balances against the fair share and matches debtors to
// creditors greedily, largest first. Ties keep the order of totals.
//
// Because the fair share is rounded, balances need not sum to zero. Any
// leftover once one side runs out is left unmatched.
func Settle(totals []PersonTotal) Settlement {
	var grand int64
	for _, t := range totals {
		grand += t.Amount
	}
	share := FairShare(grand, len(totals))

	out := Settlement{FairShare: share}
	var creditors, debtors []PersonBalance
	for _, t := range totals {
		b := PersonBalance{Person: t.Person, Paid: t.Amount, FairShare: share, Balance: t.Amount - share}
		out.Balances = append(out.Balances, b)
		switch {
		case b.Balance > 0:
			creditors = append(creditors, b)
		case b.Balance < 0:
			debtors = append(debtors, b)
		}
	}

	sort.SliceStable(creditors, func(i, j int) bool { return creditors[i].Balance > creditors[j].Balance })
	sort.SliceStable(debtors, func(i, j int) bool { return debtors[i].Balance < debtors[j].Balance })

	i, j := 0, 0
	for i < len(creditors) && j < len(debtors) {
		c, d := &creditors[i], &debtors[j]
		amount := min(c.Balance, -d.Balance)
		out.Transfers = append(out.Transfers, Transfer{From: d.Person, To: c.Person, Amount: amount})
		c.Balance -= amount
		d.Balance += amount
		if c.Balance == 0 {
			i++
		}
		if d.Balance == 0 {
			j++
		}
	}

	return out
}
