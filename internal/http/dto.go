package http

import (
	"kakeibo/internal/core"
	"kakeibo/internal/services"
)

const dateLayout = "2006-01-02"

type uploadResponse struct {
	Success        bool     `json:"success"`
	BatchID        string   `json:"batchId,omitempty"`
	Processed      int      `json:"processed"`
	Errors         []string `json:"errors"`
	TouchedPeriods []string `json:"touchedPeriods"`
	Message        string   `json:"message,omitempty"`
}

func newUploadResponse(res services.IngestResult) uploadResponse {
	out := uploadResponse{
		Success:        res.Success,
		BatchID:        res.BatchID,
		Processed:      res.Processed,
		Errors:         res.Errors,
		TouchedPeriods: make([]string, 0, len(res.TouchedPeriods)),
	}
	if out.Errors == nil {
		out.Errors = []string{}
	}
	for _, p := range res.TouchedPeriods {
		out.TouchedPeriods = append(out.TouchedPeriods, p.String())
	}
	return out
}

type personTotalDTO struct {
	Person string `json:"person"`
	Amount int64  `json:"amount"`
}

type cellDTO struct {
	Category string `json:"category"`
	Person   string `json:"person"`
	Amount   int64  `json:"amount"`
}

type recordDTO struct {
	Date          string `json:"date"`
	FlowDirection string `json:"flowDirection"`
	PaymentMethod string `json:"paymentMethod"`
	Amount        int64  `json:"amount"`
	Location      string `json:"location"`
	Memo          string `json:"memo"`
}

type detailDTO struct {
	Category string      `json:"category"`
	Person   string      `json:"person"`
	Records  []recordDTO `json:"records"`
}

type summaryDTO struct {
	Period               string           `json:"period"`
	GrandTotal           int64            `json:"grandTotal"`
	PersonCount          int              `json:"personCount"`
	PersonTotals         []personTotalDTO `json:"personTotals"`
	Categories           []string         `json:"categories"`
	CategoryPersonMatrix []cellDTO        `json:"categoryPersonMatrix"`
	Details              []detailDTO      `json:"details"`
}

type balanceDTO struct {
	Person    string `json:"person"`
	Paid      int64  `json:"paid"`
	FairShare int64  `json:"fairShare"`
	Balance   int64  `json:"balance"`
}

type transferDTO struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

type settlementDTO struct {
	FairShare int64         `json:"fairShare"`
	Balances  []balanceDTO  `json:"balances"`
	Transfers []transferDTO `json:"transfers"`
}

type summaryResponse struct {
	Summary    summaryDTO    `json:"summary"`
	Settlement settlementDTO `json:"settlement"`
}

func newSummaryResponse(sum core.Summary, st core.Settlement) summaryResponse {
	out := summaryResponse{
		Summary: summaryDTO{
			Period:               sum.Period.String(),
			GrandTotal:           sum.GrandTotal,
			PersonCount:          sum.PersonCount,
			PersonTotals:         make([]personTotalDTO, 0, len(sum.PersonTotals)),
			Categories:           append([]string{}, sum.Categories()...),
			CategoryPersonMatrix: make([]cellDTO, 0, len(sum.CategoryPersonMatrix)),
			Details:              make([]detailDTO, 0, len(sum.Details)),
		},
		Settlement: settlementDTO{
			FairShare: st.FairShare,
			Balances:  make([]balanceDTO, 0, len(st.Balances)),
			Transfers: make([]transferDTO, 0, len(st.Transfers)),
		},
	}
	for _, p := range sum.PersonTotals {
		out.Summary.PersonTotals = append(out.Summary.PersonTotals, personTotalDTO{Person: p.Person, Amount: p.Amount})
	}
	for _, c := range sum.CategoryPersonMatrix {
		out.Summary.CategoryPersonMatrix = append(out.Summary.CategoryPersonMatrix, cellDTO(c))
	}
	for _, g := range sum.Details {
		d := detailDTO{Category: g.Category, Person: g.Person, Records: make([]recordDTO, 0, len(g.Records))}
		for _, r := range g.Records {
			d.Records = append(d.Records, recordDTO{
				Date:          r.Date.Format(dateLayout),
				FlowDirection: string(r.FlowDirection),
				PaymentMethod: r.PaymentMethod,
				Amount:        r.Amount,
				Location:      r.Location,
				Memo:          r.Memo,
			})
		}
		out.Summary.Details = append(out.Summary.Details, d)
	}
	for _, b := range st.Balances {
		out.Settlement.Balances = append(out.Settlement.Balances, balanceDTO(b))
	}
	for _, t := range st.Transfers {
		out.Settlement.Transfers = append(out.Settlement.Transfers, transferDTO(t))
	}
	return out
}

type periodDTO struct {
	Period      string `json:"period"`
	RecordCount int64  `json:"recordCount"`
}

type periodsResponse struct {
	Periods []periodDTO `json:"periods"`
}

type errorResponse struct {
	Error string `json:"error"`
}
