package iso7816

import "fmt"

// SELECT command (INS 'A4') according to ISO/IEC 7816-4, 11.2.2.
//
// P1 tells the card how the data field addresses the target:
//   - 00: MF, DF or EF by file identifier (empty data selects the MF).
//   - 01..03: child DF, child EF or parent DF.
//   - 04: DF by name, the form used for application identifiers (AIDs).
//   - 08, 09: path from the MF or from the current DF.
//
// P2 combines two fields:
//   - Bits 4-3: the template wanted in the answer (FCI, FCP, FMD or no data).
//   - Bits 2-1: which occurrence when several names match a partial AID
//     (first, last, next, previous).
//
// The Satochip applet is reached with 00 A4 04 00 and its AID "SatoChip". A card that
// answers 9000 with no data is selected; the FCI, when present, is informative only.

// SelectionMethod is the P1 of SELECT.
type SelectionMethod byte

const (
	SelectByFileID          SelectionMethod = 0x00
	SelectChildDF           SelectionMethod = 0x01
	SelectEFUnderCurrentDF  SelectionMethod = 0x02
	SelectParentDF          SelectionMethod = 0x03
	SelectByDFName          SelectionMethod = 0x04
	SelectPathFromMF        SelectionMethod = 0x08
	SelectPathFromCurrentDF SelectionMethod = 0x09
)

var selectionMethodNames = map[SelectionMethod]string{
	SelectByFileID:          "by file ID",
	SelectChildDF:           "child DF",
	SelectEFUnderCurrentDF:  "EF under current DF",
	SelectParentDF:          "parent DF",
	SelectByDFName:          "by DF name (AID)",
	SelectPathFromMF:        "path from MF",
	SelectPathFromCurrentDF: "path from current DF",
}

func (s SelectionMethod) String() string {
	if name, ok := selectionMethodNames[s]; ok {
		return name
	}
	return fmt.Sprintf("method %02X", byte(s))
}

// FileOccurrence is P2 bits 2-1.
type FileOccurrence byte

const (
	FirstOrOnlyOccurrence FileOccurrence = 0b00
	LastOccurrence        FileOccurrence = 0b01
	NextOccurrence        FileOccurrence = 0b10
	PreviousOccurrence    FileOccurrence = 0b11
)

func (f FileOccurrence) String() string {
	return [...]string{"first", "last", "next", "previous"}[f&0b11]
}

// SelectionControl is P2 bits 4-3.
type SelectionControl byte

const (
	ReturnFCI    SelectionControl = 0b0000
	ReturnFCP    SelectionControl = 0b0100
	ReturnFMD    SelectionControl = 0b1000
	ReturnNoData SelectionControl = 0b1100
)

func (s SelectionControl) String() string {
	return [...]string{"FCI", "FCP", "FMD", "no data"}[(s>>2)&0b11]
}

// ParseP2 splits a SELECT P2 into its two fields.
func ParseP2(p2 byte) (SelectionControl, FileOccurrence) {
	return SelectionControl(p2 & 0b1100), FileOccurrence(p2 & 0b11)
}

// NewSelectCommand builds a SELECT. A command that carries data gets no Le, so it
// stays case 3 under T=0 and the card answers 61XX; one without data asks for up to
// 256 bytes unless no data was requested.
func NewSelectCommand(cla Class, method SelectionMethod, occ FileOccurrence, ctrl SelectionControl, data []byte) *CommandAPDU {
	ne := 0
	if len(data) == 0 && ctrl != ReturnNoData {
		ne = MaxShortLe
	}
	ins, _ := NewInstruction(INS_SELECT)
	return NewCommandAPDU(cla, ins, byte(method), byte(ctrl)|byte(occ), data, ne)
}

// SelectByAID selects the first application named aid and asks for its FCI.
func SelectByAID(cla Class, aid []byte) *CommandAPDU {
	return NewSelectCommand(cla, SelectByDFName, FirstOrOnlyOccurrence, ReturnFCI, aid)
}
