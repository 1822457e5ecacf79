package csvtable

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/forPelevin/phasesplit/internal/types"
)

type Reader struct{}

func New() *Reader { return &Reader{} }

// ReadTable reads a delimited file. With header set the first record names
// the columns; otherwise columns are keyed "0", "1", ... Blank lines are
// skipped and a UTF-8 BOM on the first cell is dropped.
func (r *Reader) ReadTable(path string, comma rune, header bool) (types.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return types.Table{}, err
	}
	defer f.Close()
	return Parse(f, comma, header)
}

func Parse(in io.Reader, comma rune, header bool) (types.Table, error) {
	cr := csv.NewReader(in)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	var t types.Table
	first := true
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return types.Table{}, fmt.Errorf("parse table: %w", err)
		}
		line, _ := cr.FieldPos(0)
		if first {
			rec[0] = strings.TrimPrefix(rec[0], "\ufeff")
			first = false
			if header {
				t.Header = trimAll(rec)
				continue
			}
		}
		if blank(rec) {
			continue
		}
		row := types.Row{Line: line, Values: make(map[string]string, len(rec))}
		for i, v := range rec {
			key := strconv.Itoa(i)
			if header {
				if i >= len(t.Header) {
					continue
				}
				key = t.Header[i]
			}
			row.Values[key] = strings.TrimSpace(v)
		}
		t.Rows = append(t.Rows, row)
	}
	if header && t.Header == nil {
		return types.Table{}, errors.New("parse table: missing header row")
	}
	return t, nil
}

func trimAll(rec []string) []string {
	out := make([]string, len(rec))
	for i, v := range rec {
		out[i] = strings.TrimSpace(v)
	}
	return out
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
