package satochip

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/gregLibert/satochip/pkg/bits"
)

// ApplicationStatus is the decoded GET STATUS payload.
type ApplicationStatus struct {
	PINRetries           int
	PUKRetries           int
	Initialized          bool
	Authenticated        bool
	HasMasterKey         bool
	HasAuthenticationKey bool
	HasEncryptionKey     bool
	HasSignatureKey      bool
}

// ParseApplicationStatus decodes the 3-byte status blob. Trailing bytes are ignored.
func ParseApplicationStatus(data []byte) (*ApplicationStatus, error) {
	if len(data) < 3 {
		return nil, fmt.Errorf("%w: application status needs 3 bytes, got %d", ErrMalformedStatus, len(data))
	}

	f := bits.Unpack(data[0], 6)
	return &ApplicationStatus{
		PINRetries:           int(data[1]),
		PUKRetries:           int(data[2]),
		Initialized:          f[0],
		Authenticated:        f[1],
		HasMasterKey:         f[2],
		HasAuthenticationKey: f[3],
		HasEncryptionKey:     f[4],
		HasSignatureKey:      f[5],
	}, nil
}

// Describe returns a human-readable report of the status.
func (s *ApplicationStatus) Describe() string {
	var sb strings.Builder
	sb.WriteString("=== APPLICATION STATUS ===\n")
	fmt.Fprintf(&sb, "  Initialized:    %s\n", yesNo(s.Initialized))
	fmt.Fprintf(&sb, "  Authenticated:  %s\n", yesNo(s.Authenticated))
	fmt.Fprintf(&sb, "  PIN retries:    %d\n", s.PINRetries)
	fmt.Fprintf(&sb, "  PUK retries:    %d\n", s.PUKRetries)
	sb.WriteString("  Keys:\n")
	fmt.Fprintf(&sb, "    - %-15s %s\n", KeyTypeMaster.String()+":", yesNo(s.HasMasterKey))
	fmt.Fprintf(&sb, "    - %-15s %s\n", KeyTypeAuthentication.String()+":", yesNo(s.HasAuthenticationKey))
	fmt.Fprintf(&sb, "    - %-15s %s\n", KeyTypeEncryption.String()+":", yesNo(s.HasEncryptionKey))
	fmt.Fprintf(&sb, "    - %-15s %s", KeyTypeSignature.String()+":", yesNo(s.HasSignatureKey))
	return sb.String()
}

// SatodimeStatus is the status record of a Satodime bearer card.
type SatodimeStatus struct {
	Initialized    bool
	Authenticated  bool
	Activated      bool
	Spent          bool
	Denomination   int
	Currency       string
	ActivationDate int64
	ExpirationDate int64
}

// Activation returns the activation date as a time, interpreting it as Unix milliseconds.
func (s *SatodimeStatus) Activation() time.Time {
	return time.UnixMilli(s.ActivationDate).UTC()
}

// Expiration returns the expiration date as a time, interpreting it as Unix milliseconds.
func (s *SatodimeStatus) Expiration() time.Time {
	return time.UnixMilli(s.ExpirationDate).UTC()
}

// Describe returns a human-readable report of the status.
func (s *SatodimeStatus) Describe() string {
	var sb strings.Builder
	sb.WriteString("=== SATODIME STATUS ===\n")
	s.writeFields(&sb)
	return strings.TrimSuffix(sb.String(), "\n")
}

func (s *SatodimeStatus) writeFields(sb *strings.Builder) {
	fmt.Fprintf(sb, "  Initialized:    %s\n", yesNo(s.Initialized))
	fmt.Fprintf(sb, "  Authenticated:  %s\n", yesNo(s.Authenticated))
	fmt.Fprintf(sb, "  Activated:      %s\n", yesNo(s.Activated))
	fmt.Fprintf(sb, "  Spent:          %s\n", yesNo(s.Spent))
	fmt.Fprintf(sb, "  Denomination:   %d\n", s.Denomination)
	fmt.Fprintf(sb, "  Currency:       %q\n", s.Currency)
	fmt.Fprintf(sb, "  Activation:     %s\n", s.Activation().Format(time.RFC3339))
	fmt.Fprintf(sb, "  Expiration:     %s\n", s.Expiration().Format(time.RFC3339))
}

// SatodimeKeyslotStatus is the status of one Satodime key slot.
type SatodimeKeyslotStatus struct {
	SatodimeStatus
	PublicKey []byte
}

// Describe returns a human-readable report of the key slot.
func (s *SatodimeKeyslotStatus) Describe() string {
	var sb strings.Builder
	sb.WriteString("=== SATODIME KEYSLOT ===\n")
	s.writeFields(&sb)
	fmt.Fprintf(&sb, "  Public key:     %X", s.PublicKey)
	return sb.String()
}

// ParseSatodimeStatus decodes:
//
//	flags(1) denomination(1) currencyLen(1) currency(n) activation(8, BE) expiration(8, BE)
func ParseSatodimeStatus(data []byte) (*SatodimeStatus, error) {
	r := &blobReader{data: data}
	st := r.satodime()
	if r.err != nil {
		return nil, fmt.Errorf("satodime status: %w", r.err)
	}
	return &st, nil
}

// ParseSatodimeKeyslotStatus decodes a Satodime status followed by pubkeyLen(1) pubkey(n).
func ParseSatodimeKeyslotStatus(data []byte) (*SatodimeKeyslotStatus, error) {
	r := &blobReader{data: data}
	st := r.satodime()
	n := r.byte()
	pub := r.bytes(int(n))
	if r.err != nil {
		return nil, fmt.Errorf("satodime keyslot status: %w", r.err)
	}
	return &SatodimeKeyslotStatus{SatodimeStatus: st, PublicKey: pub}, nil
}

// blobReader walks a fixed-layout record. The first short read sticks in err;
// later reads return zero values.
type blobReader struct {
	data []byte
	off  int
	err  error
}

func (r *blobReader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if n < 0 || r.off+n > len(r.data) {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrMalformedStatus, n, r.off, len(r.data))
		return false
	}
	return true
}

func (r *blobReader) byte() byte {
	if !r.need(1) {
		return 0
	}
	b := r.data[r.off]
	r.off++
	return b
}

func (r *blobReader) bytes(n int) []byte {
	if !r.need(n) {
		return nil
	}
	out := make([]byte, n)
	copy(out, r.data[r.off:r.off+n])
	r.off += n
	return out
}

func (r *blobReader) int64() int64 {
	if !r.need(8) {
		return 0
	}
	v := int64(binary.BigEndian.Uint64(r.data[r.off:]))
	r.off += 8
	return v
}

func (r *blobReader) satodime() SatodimeStatus {
	flags := r.byte()
	denomination := r.byte()
	currencyLen := r.byte()
	currency := r.bytes(int(currencyLen))
	activation := r.int64()
	expiration := r.int64()

	return SatodimeStatus{
		Initialized:    bits.IsSet(flags, 1),
		Authenticated:  bits.IsSet(flags, 2),
		Activated:      bits.IsSet(flags, 3),
		Spent:          bits.IsSet(flags, 4),
		Denomination:   int(denomination),
		Currency:       string(currency),
		ActivationDate: activation,
		ExpirationDate: expiration,
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
