// Package tabular decodes measurement sheets into records.
//
// A sheet is a header row followed by data rows. Columns are located by
// label, in either of two label sets:
//
//	serial  序列号 | Serial
//	value   测量值 | Value
//	usl     上限   | USL
//	lsl     下限   | LSL
//
// When both labels of a pair are present, the first non-empty cell wins,
// checking the Chinese label first. A row without a serial gets
// "<name>-<row>" where row counts data rows from 1.
//
// Numeric cells are coerced leniently: surrounding space is trimmed, then
// the longest numeric prefix is parsed ("12.5mm" reads as 12.5). Anything
// that does not start with a number reads as 0. No row is rejected for bad
// numbers.
//
// Formats: .csv via ReadCSV and .xlsx via ReadXLSX (first sheet only).
// Read dispatches on the file extension.
package tabular
