package output

import (
	"io"

	"github.com/agentstation/dbmerger/internal/cmd/table"
)

// Write renders data in format. Table formats use tableData when it is
// provided; structured formats always encode data.
func Write(w io.Writer, format Format, data any, tableData *table.Data) error {
	formatter := NewFormatter(format)
	if format.IsTable() && tableData != nil {
		return formatter.Format(w, *tableData)
	}
	return formatter.Format(w, data)
}
