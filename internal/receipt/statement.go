package receipt

import (
	"fmt"
	"time"

	"github.com/sakashimaa/paybot/internal/domain"
	"github.com/xuri/excelize/v2"
)

const statementSheet = "Payments"

// RenderStatement builds an XLSX listing of records in the given order.
func RenderStatement(ownerID int64, records []domain.PaymentRecord, generatedAt time.Time) (*Document, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", statementSheet); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGenerate, err)
	}

	header := []any{"Payment ID", "Amount (USD)", "Description", "Status", "Created", "Receipt issued"}
	if err := f.SetSheetRow(statementSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGenerate, err)
	}

	for i, record := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrGenerate, err)
		}

		amount, _ := record.Amount.Round(2).Float64()

		issued := ""
		if record.ReceiptIssuedAt != nil {
			issued = formatDate(*record.ReceiptIssuedAt)
		}

		row := []any{
			record.ProcessorPaymentID,
			amount,
			record.Description,
			string(record.Status),
			formatDate(record.CreatedAt),
			issued,
		}
		if err := f.SetSheetRow(statementSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrGenerate, err)
		}
	}

	if err := f.SetColWidth(statementSheet, "A", "A", 32); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGenerate, err)
	}
	if err := f.SetColWidth(statementSheet, "C", "C", 40); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGenerate, err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGenerate, err)
	}

	return &Document{
		Name:        fmt.Sprintf("payments_%d_%s.xlsx", ownerID, generatedAt.UTC().Format("20060102")),
		ContentType: ContentTypeXLSX,
		Bytes:       buf.Bytes(),
	}, nil
}
