package source

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hyperjump/simgroup/internal/models"
)

// odsContentPath is the path to the main content inside an .ods zip (OpenDocument Spreadsheet).
const odsContentPath = "content.xml"

// maxODSRepeat caps table:number-*-repeated so a styled but empty sheet cannot expand
// into millions of cells.
const maxODSRepeat = 1000

// parseODS reads the first table of an .ods file with the same header rules as parseExcel.
func parseODS(content []byte) ([]models.SourceRecord, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open ODS: not a zip: %w", err)
	}
	var contentXML []byte
	for _, f := range zr.File {
		if f.Name != odsContentPath {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open ODS: open %s: %w", f.Name, err)
		}
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(rc); err != nil {
			_ = rc.Close()
			return nil, fmt.Errorf("open ODS: read %s: %w", f.Name, err)
		}
		_ = rc.Close()
		contentXML = buf.Bytes()
		break
	}
	if contentXML == nil {
		return nil, fmt.Errorf("open ODS: %s not found", odsContentPath)
	}
	name, rows, err := odsRows(contentXML)
	if err != nil {
		return nil, err
	}
	return recordsFromRows(name, rows)
}

// odsRows walks content.xml and returns the name and cell text of the first table.
// Empty repeated cells are only materialized when a non-empty cell follows them.
func odsRows(contentXML []byte) (string, [][]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(contentXML))
	var (
		name      string
		rows      [][]string
		row       []string
		rowRepeat int
		pending   int
		cell      strings.Builder
		cellRep   int
		inTable   bool
		inCell    bool
		paras     int
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", nil, fmt.Errorf("parse ODS content: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "table":
				if name != "" || inTable {
					continue
				}
				inTable = true
				name = odsAttr(t, "name")
			case "table-row":
				if !inTable {
					continue
				}
				row, pending = nil, 0
				rowRepeat = odsRepeat(t, "number-rows-repeated")
			case "table-cell", "covered-table-cell":
				if !inTable {
					continue
				}
				inCell = true
				cell.Reset()
				paras = 0
				cellRep = odsRepeat(t, "number-columns-repeated")
			case "p":
				if inCell {
					if paras > 0 {
						cell.WriteByte(' ')
					}
					paras++
				}
			case "s":
				if inCell {
					cell.WriteByte(' ')
				}
			}
		case xml.CharData:
			if inCell {
				cell.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "table":
				if inTable {
					return name, rows, nil
				}
			case "table-cell", "covered-table-cell":
				if !inCell {
					continue
				}
				inCell = false
				text := strings.TrimSpace(cell.String())
				if text == "" {
					pending += cellRep
					continue
				}
				for ; pending > 0; pending-- {
					row = append(row, "")
				}
				for i := 0; i < cellRep; i++ {
					row = append(row, text)
				}
			case "table-row":
				if !inTable {
					continue
				}
				if isBlank(row) {
					continue
				}
				for i := 0; i < rowRepeat; i++ {
					rows = append(rows, row)
				}
			}
		}
	}
	return name, rows, nil
}

func odsAttr(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func odsRepeat(el xml.StartElement, local string) int {
	n, err := strconv.Atoi(odsAttr(el, local))
	if err != nil || n < 1 {
		return 1
	}
	if n > maxODSRepeat {
		return maxODSRepeat
	}
	return n
}
