package e2e

import (
	"bytes"
	"strings"

	"github.com/xuri/excelize/v2"
)

// SupportedFileExtensions are the file types the file-based test writes.
// PDF is covered by the extract package tests.
var SupportedFileExtensions = []string{".txt", ".md", ".rst", ".xlsx"}

// WriteFixture returns the bytes of a file of type ext holding text.
func WriteFixture(ext, text string) ([]byte, error) {
	if ext == ".xlsx" {
		return workbook(text)
	}
	return []byte(text), nil
}

// workbook writes each line of text to its own row.
func workbook(text string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	for i, line := range strings.Split(text, "\n") {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue("Sheet1", cell, line); err != nil {
			return nil, err
		}
	}
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
