package iso7816

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gregLibert/satochip/pkg/tlv"
)

func TestParseSelectData(t *testing.T) {
	// Selection control lives in P2 bits 4-3.
	const (
		p2FCI    byte = 0b0000_0000
		p2FCP    byte = 0b0000_0100
		p2FMD    byte = 0b0000_1000
		p2NoData byte = 0b0000_1100
	)

	tests := []struct {
		name      string
		data      []byte
		p2        byte
		wantAID   []byte
		wantLabel string
		wantErr   error
		check     func(t *testing.T, fci *FileControlInfo)
	}{
		{
			name:    "FCP inside 6F",
			data:    tlv.Hex("6F 0A", "62 08", "84 06 5361746F4368"),
			p2:      p2FCI,
			wantAID: []byte("SatoCh"),
		},
		{
			name:      "FMD inside 6F",
			data:      tlv.Hex("6F 07", "64 05", "50 03 414243"),
			p2:        p2FCI,
			wantLabel: "ABC",
		},
		{
			name:    "FCP requested",
			data:    tlv.Hex("62 07", "84 05 A000000002"),
			p2:      p2FCP,
			wantAID: tlv.Hex("A000000002"),
		},
		{
			name:      "FMD requested",
			data:      tlv.Hex("64 05", "50 03 58595A"),
			p2:        p2FMD,
			wantLabel: "XYZ",
		},
		{
			name:    "FCP requested but FMD sent",
			data:    tlv.Hex("64 05", "50 03 58595A"),
			p2:      p2FCP,
			wantErr: ErrTemplateMissing,
		},
		{
			name: "Proprietary data",
			data: tlv.Hex("C0 01 FF"),
			p2:   p2FCI,
			check: func(t *testing.T, fci *FileControlInfo) {
				if diff := cmp.Diff(tlv.Hex("C0 01 FF"), fci.Proprietary); diff != "" {
					t.Errorf("Proprietary mismatch (-want +got):\n%s", diff)
				}
				if fci.FCP != nil {
					t.Errorf("FCP = %+v, want nil", fci.FCP)
				}
			},
		},
		{
			name:    "Flat FCI",
			data:    tlv.Hex("84 05 A000000003", "50 01 5A", "99 01 00"),
			p2:      p2FCI,
			wantAID: tlv.Hex("A000000003"),
			check: func(t *testing.T, fci *FileControlInfo) {
				if string(fci.Label()) != "Z" {
					t.Errorf("Label() = %q, want \"Z\"", fci.Label())
				}
				if len(fci.Unknown) != 1 || len(fci.FCP.Unknown) != 0 || len(fci.FMD.Unknown) != 0 {
					t.Errorf("leftovers: fci %d, FCP %d, FMD %d; want 1, 0, 0",
						len(fci.Unknown), len(fci.FCP.Unknown), len(fci.FMD.Unknown))
				}
			},
		},
		{
			name:    "Unknown tag kept in FCP",
			data:    tlv.Hex("62 0B", "84 05 A000000004", "99 02 CAFE"),
			p2:      p2FCP,
			wantAID: tlv.Hex("A000000004"),
			check: func(t *testing.T, fci *FileControlInfo) {
				if len(fci.FCP.Unknown) != 1 {
					t.Fatalf("FCP.Unknown has %d entries, want 1", len(fci.FCP.Unknown))
				}
				u := fci.FCP.Unknown[0]
				if !strings.EqualFold("99", u.Tag) {
					t.Errorf("tag = %s, want 99", u.Tag)
				}
				if diff := cmp.Diff(tlv.Hex("CAFE"), u.Value); diff != "" {
					t.Errorf("value mismatch (-want +got):\n%s", diff)
				}
			},
		},
		{
			name: "No data requested",
			data: tlv.Hex("62 00"),
			p2:   p2NoData,
			check: func(t *testing.T, fci *FileControlInfo) {
				if fci != nil {
					t.Errorf("fci = %+v, want nil", fci)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSelectData(tt.data, tt.p2)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ParseSelectData() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSelectData() failed: %v", err)
			}

			if tt.wantAID != nil {
				if diff := cmp.Diff(tt.wantAID, got.AID()); diff != "" {
					t.Errorf("AID() mismatch (-want +got):\n%s", diff)
				}
			}
			if tt.wantLabel != "" && string(got.Label()) != tt.wantLabel {
				t.Errorf("Label() = %q, want %q", got.Label(), tt.wantLabel)
			}
			if tt.check != nil {
				tt.check(t, got)
			}
		})
	}
}

func TestParseSelectData_Empty(t *testing.T) {
	fci, err := ParseSelectData(nil, 0)
	if err != nil || fci != nil {
		t.Errorf("ParseSelectData(nil) = %+v, %v; want nil, nil", fci, err)
	}
}
