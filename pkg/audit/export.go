package audit

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// ExportFormat represents the format for exporting audit logs
type ExportFormat string

const (
	ExportFormatJSON   ExportFormat = "json"
	ExportFormatCSV    ExportFormat = "csv"
	ExportFormatNDJSON ExportFormat = "ndjson" // Newline-delimited JSON
)

// ParseExportFormat maps a format name to an ExportFormat. Empty means JSON.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch ExportFormat(s) {
	case "", ExportFormatJSON:
		return ExportFormatJSON, nil
	case ExportFormatCSV, ExportFormatNDJSON:
		return ExportFormat(s), nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// ContentType returns the MIME type of the format
func (f ExportFormat) ContentType() string {
	switch f {
	case ExportFormatCSV:
		return "text/csv"
	case ExportFormatNDJSON:
		return "application/x-ndjson"
	}
	return "application/json"
}

// Export writes events to w in format
func Export(w io.Writer, events []*Event, format ExportFormat) error {
	switch format {
	case ExportFormatCSV:
		return exportCSV(w, events)
	case ExportFormatNDJSON:
		encoder := json.NewEncoder(w)
		for _, event := range events {
			if err := encoder.Encode(event); err != nil {
				return fmt.Errorf("failed to encode event: %w", err)
			}
		}
		return nil
	case ExportFormatJSON:
		if events == nil {
			events = []*Event{}
		}
		return json.NewEncoder(w).Encode(events)
	}
	return fmt.Errorf("unsupported export format %q", format)
}

func exportCSV(w io.Writer, events []*Event) error {
	writer := csv.NewWriter(w)

	header := []string{
		"ID",
		"Timestamp",
		"EventType",
		"Status",
		"Actor",
		"RoleCode",
		"Subject",
		"RequestID",
		"Message",
		"ErrorMessage",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, event := range events {
		row := []string{
			event.ID,
			event.Timestamp.UTC().Format(time.RFC3339),
			string(event.EventType),
			string(event.Status),
			event.Actor,
			event.RoleCode,
			event.Subject,
			event.RequestID,
			event.Message,
			event.ErrorMessage,
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("CSV writer error: %w", err)
	}
	return nil
}
