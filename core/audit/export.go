package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"burnledger/crypto"
	"burnledger/native/burn"
)

// PageSize is the number of burn records fetched per history page.
const PageSize uint32 = 256

// HistorySource pages through the global burn history.
type HistorySource interface {
	BurnHistoryCount(ctx context.Context) (uint32, error)
	BurnHistory(ctx context.Context, page, size uint32) ([]*burn.BurnRecord, error)
}

// Row is the parquet layout of a burn record.
type Row struct {
	ItemID      string `parquet:"name=item_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Date        int64  `parquet:"name=date, type=INT64"`
	Submitter   string `parquet:"name=submitter, type=BYTE_ARRAY, convertedtype=UTF8"`
	Memo        string `parquet:"name=memo, type=BYTE_ARRAY, convertedtype=UTF8"`
	Name        string `parquet:"name=name, type=BYTE_ARRAY, convertedtype=UTF8"`
	Description string `parquet:"name=description, type=BYTE_ARRAY, convertedtype=UTF8"`
	TokenURI    string `parquet:"name=token_uri, type=BYTE_ARRAY, convertedtype=UTF8"`
	Image       string `parquet:"name=image, type=BYTE_ARRAY, convertedtype=UTF8"`
	Traits      string `parquet:"name=traits, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// NewRow flattens a burn record. Traits are rendered as type=value pairs
// separated by semicolons.
func NewRow(record *burn.BurnRecord) *Row {
	traits := make([]string, 0, len(record.Metadata.Attributes))
	for _, trait := range record.Metadata.Attributes {
		traits = append(traits, trait.TraitType+"="+trait.Value)
	}
	return &Row{
		ItemID:      record.ItemID,
		Date:        int64(record.Date),
		Submitter:   crypto.FormatAddress(record.Submitter),
		Memo:        record.Memo,
		Name:        record.Metadata.Name,
		Description: record.Metadata.Description,
		TokenURI:    record.Metadata.TokenURI,
		Image:       record.Metadata.Image,
		Traits:      strings.Join(traits, ";"),
	}
}

// ExportBurnHistory writes the full burn history to a snappy compressed
// parquet file at path and returns the number of rows written.
func ExportBurnHistory(ctx context.Context, src HistorySource, path string) (int, error) {
	total, err := src.BurnHistoryCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("audit: count burn history: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("audit: create export dir: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("audit: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(Row), 1)
	if err != nil {
		file.Close()
		return 0, fmt.Errorf("audit: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	written := 0
	pages := (total + PageSize - 1) / PageSize
	for page := uint32(0); page < pages; page++ {
		if err := ctx.Err(); err != nil {
			pw.WriteStop()
			file.Close()
			return written, err
		}
		records, err := src.BurnHistory(ctx, page, PageSize)
		if err != nil {
			pw.WriteStop()
			file.Close()
			return written, fmt.Errorf("audit: read burn history page %d: %w", page, err)
		}
		for _, record := range records {
			if err := pw.Write(NewRow(record)); err != nil {
				pw.WriteStop()
				file.Close()
				return written, fmt.Errorf("audit: parquet write: %w", err)
			}
			written++
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return written, fmt.Errorf("audit: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return written, fmt.Errorf("audit: close parquet file: %w", err)
	}
	return written, nil
}
