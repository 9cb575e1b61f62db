// Package rules holds the field-level rule model exchanged between the editor,
// uploaded workbooks and the external engine.
//
// # Instruction language
//
// Spreadsheet cells encode allowed-value sources as short instructions
// ("VALUE=a;b", "SHEET=Lists!Code", free text). [Parse] turns a cell into one
// of the [Instruction] variants and [Instruction.String] renders it back;
// re-parsing a rendered instruction yields the same variant.
//
// # Derivation
//
// [DeriveValidation] and [DeriveMapping] read a [SheetSource]. A dedicated
// rules sheet wins; otherwise the template's header row is turned into
// permissive defaults.
//
// # Wire payloads
//
// [ValidationPayload] and [MappingPayload] are the JSON shapes the editor
// sends and the engine reads from its rules file.
package rules
