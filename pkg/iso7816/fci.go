package iso7816

import (
	"errors"
	"fmt"

	"github.com/moov-io/bertlv"

	"github.com/gregLibert/satochip/pkg/bits"
	"github.com/gregLibert/satochip/pkg/tlv"
)

// Templates returned by SELECT (ISO/IEC 7816-4, 7.4). P2 bits 4-3 choose which one
// the card sends: 00 FCI ('6F', optional wrapper around '62' and/or '64'), 01 FCP
// ('62'), 10 FMD ('64'), 11 nothing.
const (
	tagFCI = "6F"
	tagFCP = "62"
	tagFMD = "64"
)

// ErrTemplateMissing is returned when P2 asked for a template the card did not send.
var ErrTemplateMissing = errors.New("iso7816: mandatory template missing")

// FCPTemplate holds the file control parameters ('62').
type FCPTemplate struct {
	DataSize       []byte `tlv:"80"`
	TotalSize      []byte `tlv:"81"`
	Descriptor     []byte `tlv:"82"`
	FileID         []byte `tlv:"83"`
	DFName         []byte `tlv:"84"`
	Proprietary    []byte `tlv:"85"`
	ShortFileID    []byte `tlv:"88"`
	LifeCycle      []byte `tlv:"8A"`
	SecurityCompact []byte `tlv:"8C"`
	ProprietaryBER []byte `tlv:"A5"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// FMDTemplate holds the file management data ('64').
type FMDTemplate struct {
	AID    []byte `tlv:"84"`
	Label  []byte `tlv:"50"`
	Data53 []byte `tlv:"53"`
	Data73 []byte `tlv:"73"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// FileControlInfo is the parsed data field of a SELECT response.
type FileControlInfo struct {
	FCP *FCPTemplate
	FMD *FMDTemplate

	// Unknown keeps packets of an untemplated FCI that matched neither FCP nor FMD.
	Unknown []bertlv.TLV

	// Proprietary is set instead of the templates when the first byte is not an
	// interindustry tag (>= C0).
	Proprietary []byte
}

// AID returns the DF name from the FCP, else the AID from the FMD.
func (fci *FileControlInfo) AID() []byte {
	if fci.FCP != nil && len(fci.FCP.DFName) > 0 {
		return fci.FCP.DFName
	}
	if fci.FMD != nil {
		return fci.FMD.AID
	}
	return nil
}

// Label returns the application label ('50') if the card sent one.
func (fci *FileControlInfo) Label() []byte {
	if fci.FMD != nil {
		return fci.FMD.Label
	}
	return nil
}

// ParseSelectData parses data as answered to a SELECT sent with p2. Empty data and
// P2 "no response data" both give a nil result without error.
func ParseSelectData(data []byte, p2 byte) (*FileControlInfo, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if data[0] >= 0xC0 {
		return &FileControlInfo{Proprietary: data}, nil
	}

	packets, err := bertlv.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("iso7816: select data: %w", err)
	}
	fci := &FileControlInfo{FCP: &FCPTemplate{}, FMD: &FMDTemplate{}}

	switch bits.GetRange(p2, 4, 3) {
	case 0b01:
		return fci, requireTemplate(packets, tagFCP, fci.FCP)
	case 0b10:
		return fci, requireTemplate(packets, tagFMD, fci.FMD)
	case 0b11:
		return nil, nil
	}

	if wrapper, ok := tlv.Find(packets, tagFCI); ok {
		packets = wrapper.TLVs
	}
	fcp, err := template(packets, tagFCP, fci.FCP)
	if err != nil {
		return nil, err
	}
	fmd, err := template(packets, tagFMD, fci.FMD)
	if err != nil {
		return nil, err
	}
	if fcp || fmd {
		return fci, nil
	}

	// No template: sort the flat packets into FCP first, then FMD.
	if err := tlv.UnmarshalPackets(packets, fci.FCP); err != nil {
		return nil, err
	}
	rest := fci.FCP.Unknown
	fci.FCP.Unknown = nil
	if err := tlv.UnmarshalPackets(rest, fci.FMD); err != nil {
		return nil, err
	}
	fci.Unknown, fci.FMD.Unknown = fci.FMD.Unknown, nil
	return fci, nil
}

func requireTemplate(packets []bertlv.TLV, tag string, target any) error {
	found, err := template(packets, tag, target)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: '%s'", ErrTemplateMissing, tag)
	}
	return nil
}

func template(packets []bertlv.TLV, tag string, target any) (bool, error) {
	p, ok := tlv.Find(packets, tag)
	if !ok {
		return false, nil
	}
	if err := tlv.UnmarshalPackets(p.TLVs, target); err != nil {
		return true, fmt.Errorf("iso7816: template '%s': %w", tag, err)
	}
	return true, nil
}
