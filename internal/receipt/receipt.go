package receipt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/sakashimaa/paybot/internal/domain"
	"github.com/sakashimaa/paybot/pkg/mylogger"
	"github.com/sakashimaa/paybot/pkg/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var ErrGenerate = errors.New("receipt generation failed")

const (
	ContentTypePDF  = "application/pdf"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	timeLayout = "2006-01-02 15:04:05 MST"
)

// Document is a rendered artifact ready to be sent to the user.
type Document struct {
	Name        string
	ContentType string
	Bytes       []byte
	// Key and Location are empty for documents that were not persisted.
	Key      string
	Location string
}

type Generator struct {
	storage storage.Storage
	logger  *zap.Logger
	tracer  trace.Tracer
}

func NewGenerator(store storage.Storage, logger *zap.Logger) *Generator {
	return &Generator{
		storage: store,
		logger:  logger,
		tracer:  otel.Tracer("receipt/generator"),
	}
}

// Generate renders the receipt and persists it. Errors wrap ErrGenerate.
func (g *Generator) Generate(ctx context.Context, record *domain.PaymentRecord) (*Document, error) {
	ctx, span := g.tracer.Start(ctx, "ReceiptGenerator.Generate")
	defer span.End()

	span.SetAttributes(attribute.String("processor_payment_id", record.ProcessorPaymentID))

	data, err := RenderPDF(record)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %w", ErrGenerate, err)
	}

	name := fmt.Sprintf("receipt_%s.pdf", record.ProcessorPaymentID)

	res, err := g.storage.Put(ctx, bytes.NewReader(data), storage.PutInput{
		Filename:    name,
		ContentType: ContentTypePDF,
		Size:        int64(len(data)),
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: storing %s: %w", ErrGenerate, name, err)
	}

	mylogger.Info(
		ctx,
		g.logger,
		"Receipt generated",
		zap.String("processor_payment_id", record.ProcessorPaymentID),
		zap.String("location", res.Location),
		zap.Int("size", len(data)),
	)

	return &Document{
		Name:        name,
		ContentType: ContentTypePDF,
		Bytes:       data,
		Key:         res.Key,
		Location:    res.Location,
	}, nil
}

// Discard removes a stored receipt that never reached the user.
func (g *Generator) Discard(ctx context.Context, doc *Document) error {
	if doc == nil || doc.Key == "" {
		return nil
	}

	ctx, span := g.tracer.Start(ctx, "ReceiptGenerator.Discard")
	defer span.End()

	span.SetAttributes(attribute.String("key", doc.Key))

	if err := g.storage.Delete(ctx, doc.Key); err != nil {
		span.RecordError(err)
		return fmt.Errorf("error deleting %s: %w", doc.Key, err)
	}

	mylogger.Info(ctx, g.logger, "Undelivered receipt discarded", zap.String("key", doc.Key))

	return nil
}

// RenderPDF depends on the record only.
func RenderPDF(record *domain.PaymentRecord) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "Letter", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetTitle("Payment receipt "+record.ProcessorPaymentID, false)
	pdf.SetCreationDate(record.CreatedAt)
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 12, "Payment Receipt", "", 1, "C", false, 0, "")
	pdf.Ln(6)

	rows := [][2]string{
		{"Payment ID", record.ProcessorPaymentID},
		{"Amount", FormatAmount(record) + " " + domain.Currency},
		{"Description", record.Description},
		{"Status", strings.ToUpper(string(record.Status))},
		{"Date", record.CreatedAt.UTC().Format(timeLayout)},
	}

	for _, row := range rows {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(45, 9, row[0]+":", "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 12)
		pdf.MultiCell(0, 9, tr(row[1]), "", "L", false)
	}

	pdf.Ln(10)
	pdf.SetFont("Helvetica", "I", 10)
	pdf.CellFormat(0, 8, "Thank you for your payment.", "", 1, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("error rendering pdf: %w", err)
	}

	return buf.Bytes(), nil
}

// FormatAmount renders the amount as "$25.00".
func FormatAmount(record *domain.PaymentRecord) string {
	return "$" + record.Amount.StringFixed(2)
}

func formatDate(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04")
}
