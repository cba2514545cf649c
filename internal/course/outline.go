package course

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const outlineSheet = "Outline"

// OutlineRow is one lecture of the global order with its section context.
type OutlineRow struct {
	Index           int
	SectionID       ID
	SectionTitle    string
	SectionPosition Position
	LectureID       ID
	LectureTitle    string
	LecturePosition Position
}

// Outline flattens the course in global order.
func Outline(c *Course) []OutlineRow {
	if c == nil {
		return nil
	}
	rows := make([]OutlineRow, 0, c.LectureCount())
	for _, s := range sortedSections(c.Sections) {
		for _, l := range sortedLectures(s.Lectures) {
			rows = append(rows, OutlineRow{
				Index:           len(rows) + 1,
				SectionID:       s.ID,
				SectionTitle:    s.Title,
				SectionPosition: s.Position,
				LectureID:       l.ID,
				LectureTitle:    l.Title,
				LecturePosition: l.Position,
			})
		}
	}
	return rows
}

// WriteOutlineXLSX writes the course outline as a single-sheet workbook.
func WriteOutlineXLSX(w io.Writer, c *Course) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", outlineSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := []any{"#", "Section ID", "Section", "Section Position", "Lecture ID", "Lecture", "Lecture Position"}
	if err := f.SetSheetRow(outlineSheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, r := range Outline(c) {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		row := []any{
			r.Index,
			r.SectionID.String(),
			r.SectionTitle,
			int(r.SectionPosition),
			r.LectureID.String(),
			r.LectureTitle,
			int(r.LecturePosition),
		}
		if err := f.SetSheetRow(outlineSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
