package workflow

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/greenaudit/greenwash_backend/models"
	"github.com/xuri/excelize/v2"
)

const (
	ledgerSheet   = "Ledger"
	balancesSheet = "Balances"
	XlsxMimeType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var ledgerHeadings = []string{"Entry Id", "User Id", "Company", "Credit Type", "Transaction Type", "Amount", "Signed Amount", "Reason", "Assigned By", "Assigned At", "Valid Until"}

// WriteCreditWorkbook writes every entry on one sheet and the derived balances per
// (company, credit type) on a second sheet. companyNames maps user id to company name.
func WriteCreditWorkbook(w io.Writer, entries []*models.CreditEntry, companyNames map[string]string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ledgerSheet); err != nil {
		return err
	}
	for i, h := range ledgerHeadings {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(ledgerSheet, cell, h); err != nil {
			return err
		}
	}

	byUser := map[string][]*models.CreditEntry{}
	var userOrder []string
	for i, e := range entries {
		validUntil := ""
		if e.ValidUntil != nil {
			validUntil = e.ValidUntil.UTC().Format(time.RFC3339)
		}
		row := []any{
			e.ID,
			e.UserId,
			companyNames[e.UserId],
			e.CreditType,
			string(e.TransactionType),
			e.Amount.InexactFloat64(),
			e.Signed().InexactFloat64(),
			e.Reason,
			e.AssignedBy,
			e.AssignedAt.UTC().Format(time.RFC3339),
			validUntil,
		}
		if err := f.SetSheetRow(ledgerSheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return err
		}
		if _, ok := byUser[e.UserId]; !ok {
			userOrder = append(userOrder, e.UserId)
		}
		byUser[e.UserId] = append(byUser[e.UserId], e)
	}

	if _, err := f.NewSheet(balancesSheet); err != nil {
		return err
	}
	header := []any{"User Id", "Company", "Credit Type", "Balance"}
	if err := f.SetSheetRow(balancesSheet, "A1", &header); err != nil {
		return err
	}
	rowNo := 2
	for _, userId := range userOrder {
		balances := ComputeBalances(byUser[userId])
		for _, creditType := range slices.Sorted(maps.Keys(balances)) {
			row := []any{userId, companyNames[userId], creditType, balances[creditType].InexactFloat64()}
			if err := f.SetSheetRow(balancesSheet, fmt.Sprintf("A%d", rowNo), &row); err != nil {
				return err
			}
			rowNo++
		}
	}

	return f.Write(w)
}
