package iso7816

import (
	"errors"
	"fmt"
	"strings"

	"github.com/moov-io/bertlv"

	"github.com/gregLibert/satochip/pkg/tlv"
)

// SelectResult is the trace of a SELECT with helpers to parse and report its answer.
type SelectResult struct {
	Trace
}

// NewSelectResult checks that t is a non-empty trace starting with SELECT.
func NewSelectResult(t Trace) (*SelectResult, error) {
	if len(t) == 0 {
		return nil, errors.New("iso7816: empty select trace")
	}
	if ins := t[0].Command.Instruction.Raw; ins != INS_SELECT {
		return nil, fmt.Errorf("iso7816: trace starts with INS %02X, not SELECT", byte(ins))
	}
	return &SelectResult{Trace: t}, nil
}

// FCI parses the final response data against the P2 of the original SELECT.
func (r *SelectResult) FCI() (*FileControlInfo, error) {
	if !r.IsSuccess() {
		return nil, fmt.Errorf("iso7816: select failed with %s", r.Status())
	}
	if len(r.Data()) == 0 {
		return nil, errors.New("iso7816: select returned no data")
	}
	return ParseSelectData(r.Data(), r.Trace[0].Command.P2)
}

// Describe renders the selection for a terminal: the request, each exchange and the
// parsed answer.
func (r *SelectResult) Describe() string {
	var sb strings.Builder
	r.describeRequest(&sb)
	r.describeExchanges(&sb)
	r.describeAnswer(&sb)
	return sb.String()
}

func (r *SelectResult) describeRequest(sb *strings.Builder) {
	cmd := r.Trace[0].Command
	ctrl, occ := ParseP2(cmd.P2)
	fmt.Fprintf(sb, "SELECT %s, %s, %s occurrence\n", SelectionMethod(cmd.P1), ctrl, occ)
	if len(cmd.Data) > 0 {
		fmt.Fprintf(sb, "  target   %X %q\n", cmd.Data, tlv.Printable(cmd.Data))
	}
}

func (r *SelectResult) describeExchanges(sb *strings.Builder) {
	for i, tx := range r.Trace {
		name := "SELECT"
		switch {
		case i == 0:
		case tx.Command.Instruction.Raw == INS_GET_RESPONSE:
			name = "GET RESPONSE"
		default:
			name = fmt.Sprintf("%s (Le %d)", name, tx.Command.Ne)
		}
		if tx.Response == nil {
			fmt.Fprintf(sb, "  #%d %-16s no response\n", i+1, name)
			continue
		}
		sw := tx.Response.Status
		fmt.Fprintf(sb, "  #%d %-16s %04X %s, %d bytes\n", i+1, name, uint16(sw), exchangeNote(sw), len(tx.Response.Data))
	}
}

func exchangeNote(sw StatusWord) string {
	switch sw.SW1() {
	case 0x61:
		return fmt.Sprintf("%d bytes pending", sw.SW2())
	case 0x6C:
		return fmt.Sprintf("retry with Le %d", sw.SW2())
	}
	if sw.IsSuccess() {
		return "ok"
	}
	return sw.String()
}

func (r *SelectResult) describeAnswer(sb *strings.Builder) {
	if !r.IsSuccess() {
		sb.WriteString("  not selected\n")
		return
	}
	fci, err := r.FCI()
	switch {
	case len(r.Data()) == 0:
		sb.WriteString("  selected, no data\n")
		return
	case err != nil:
		fmt.Fprintf(sb, "  data     %X\n  unparsed %v\n", r.Data(), err)
		return
	case fci == nil:
		return
	}

	if len(fci.Proprietary) > 0 {
		fmt.Fprintf(sb, "  proprietary %X\n", fci.Proprietary)
		return
	}
	if fci.FCP != nil {
		writeEntries(sb, "FCP", fci.FCP.entries(), fci.FCP.Unknown)
	}
	if fci.FMD != nil {
		writeEntries(sb, "FMD", fci.FMD.entries(), fci.FMD.Unknown)
	}
	writeEntries(sb, "FCI", nil, fci.Unknown)
}

// entry is one template field as shown by Describe.
type entry struct {
	tag   string
	name  string
	value []byte
	text  bool
}

func (f *FCPTemplate) entries() []entry {
	return []entry{
		{"80", "data size", f.DataSize, false},
		{"81", "total size", f.TotalSize, false},
		{"82", "descriptor", f.Descriptor, false},
		{"83", "file ID", f.FileID, false},
		{"84", "DF name", f.DFName, true},
		{"85", "proprietary", f.Proprietary, false},
		{"88", "short file ID", f.ShortFileID, false},
		{"8A", "life cycle", f.LifeCycle, false},
		{"8C", "security", f.SecurityCompact, false},
		{"A5", "proprietary", f.ProprietaryBER, false},
	}
}

func (f *FMDTemplate) entries() []entry {
	return []entry{
		{"84", "AID", f.AID, true},
		{"50", "label", f.Label, true},
		{"53", "data", f.Data53, false},
		{"73", "data", f.Data73, false},
	}
}

func writeEntries(sb *strings.Builder, prefix string, entries []entry, unknown []bertlv.TLV) {
	for _, e := range entries {
		if len(e.value) == 0 {
			continue
		}
		fmt.Fprintf(sb, "  %s %-4s %-14s %X", prefix, e.tag, e.name, e.value)
		if e.text {
			fmt.Fprintf(sb, " %q", tlv.Printable(e.value))
		}
		sb.WriteByte('\n')
	}
	for _, p := range unknown {
		fmt.Fprintf(sb, "  %s %-4s %-14s %X\n", prefix, strings.ToUpper(p.Tag), "?", tlv.Value(p))
	}
}
