package core

import "sort"

// CategoryPersonAmount is the expense sum for one (category, person) cell.
type CategoryPersonAmount struct {
	Category string
	Person   string
	Amount   int64
}

// PersonTotal is the expense sum paid by one person.
type PersonTotal struct {
	Person string
	Amount int64
}

// DetailGroup holds the records behind one (category, person) cell,
// ordered by date.
type DetailGroup struct {
	Category string
	Person   string
	Records  []LedgerRecord
}

// Summary is the expense overview of a single period.
type Summary struct {
	Period               Period
	GrandTotal           int64
	PersonCount          int
	PersonTotals         []PersonTotal
	CategoryPersonMatrix []CategoryPersonAmount
	Details              []DetailGroup
}

type cellKey struct {
	category string
	person   string
}

// Aggregate summarizes the expense records of period. Records of other
// periods and non-expense records are ignored. The input slice is not
// modified.
func Aggregate(period Period, records []LedgerRecord) Summary {
	sum := Summary{Period: period}

	byPerson := map[string]int64{}
	byCell := map[cellKey]int64{}
	details := map[cellKey][]LedgerRecord{}

	for _, r := range records {
		if r.Period != period || !r.FlowDirection.IsExpense() {
			continue
		}
		k := cellKey{category: r.Category, person: r.Person}
		sum.GrandTotal += r.Amount
		byPerson[r.Person] += r.Amount
		byCell[k] += r.Amount
		details[k] = append(details[k], r)
	}

	for person, amount := range byPerson {
		sum.PersonTotals = append(sum.PersonTotals, PersonTotal{Person: person, Amount: amount})
	}
	sort.Slice(sum.PersonTotals, func(i, j int) bool {
		return sum.PersonTotals[i].Person < sum.PersonTotals[j].Person
	})
	sum.PersonCount = len(sum.PersonTotals)

	keys := make([]cellKey, 0, len(byCell))
	for k := range byCell {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].category != keys[j].category {
			return keys[i].category < keys[j].category
		}
		return keys[i].person < keys[j].person
	})

	for _, k := range keys {
		sum.CategoryPersonMatrix = append(sum.CategoryPersonMatrix, CategoryPersonAmount{
			Category: k.category,
			Person:   k.person,
			Amount:   byCell[k],
		})
		recs := details[k]
		sort.SliceStable(recs, func(i, j int) bool {
			return recs[i].Date.Before(recs[j].Date)
		})
		sum.Details = append(sum.Details, DetailGroup{Category: k.category, Person: k.person, Records: recs})
	}

	return sum
}

// Categories returns the distinct categories of the matrix in order.
func (s Summary) Categories() []string {
	var out []string
	for i, c := range s.CategoryPersonMatrix {
		if i == 0 || s.CategoryPersonMatrix[i-1].Category != c.Category {
			out = append(out, c.Category)
		}
	}
	return out
}
