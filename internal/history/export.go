package history

import (
	"io"

	"codeberg.org/nexustouch/perfd/internal/errors"
	"github.com/gocarina/gocsv"
)

// ExportCSV writes records as CSV with a header row.
func ExportCSV(w io.Writer, records []Record) error {
	if len(records) == 0 {
		records = []Record{}
	}
	if err := gocsv.Marshal(records, w); err != nil {
		return errors.New().Wrap(ErrExportFailed, err)
	}
	return nil
}
