package sheet

import (
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadCSV reads a delimited export and returns its rows starting at
// SkipRows. Files that are not valid UTF-8 are decoded as CP949, the
// default encoding of Korean spreadsheet exports.
func ReadCSV(path string, opts XLSXOptions) ([][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "sheet: open %s", path)
	}
	return parseCSV(data, opts)
}

func parseCSV(data []byte, opts XLSXOptions) ([][]string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	var r io.Reader = bytes.NewReader(data)
	if !utf8.Valid(data) {
		r = transform.NewReader(r, korean.EUCKR.NewDecoder())
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // allow variable fields
	reader.LazyQuotes = true

	var rows [][]string
	for i := 0; ; i++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "sheet: read csv row")
		}
		if i < opts.SkipRows {
			continue
		}
		rows = append(rows, record)
	}
	return rows, nil
}

// ReadRows reads a .csv or .txt file with ReadCSV and anything else as xlsx.
func ReadRows(path string, opts XLSXOptions) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return ReadCSV(path, opts)
	default:
		return ReadXLSX(path, opts)
	}
}
