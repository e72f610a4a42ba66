package satochip

import (
	"errors"
	"fmt"

	"github.com/gregLibert/satochip/pkg/iso7816"
)

var (
	// ErrMalformedStatus is returned when a status blob is shorter than its declared layout.
	ErrMalformedStatus = fmt.Errorf("satochip: malformed status: %w", iso7816.ErrMalformedResponse)
	// ErrPINLength is returned by ValidatePIN for PINs outside the firmware limits.
	ErrPINLength = errors.New("satochip: PIN length out of range")
)

// ProtocolError reports a step the card answered with anything other than 0x9000.
type ProtocolError struct {
	Op     string
	Status iso7816.StatusWord
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: card returned %s", e.Op, e.Status.Verbose())
}

// IsWrongPIN reports whether the card rejected the PIN.
func (e *ProtocolError) IsWrongPIN() bool {
	return e.Status == SW_WRONG_PIN
}

// IsPINBlocked reports whether the PIN is blocked and needs the PUK.
func (e *ProtocolError) IsPINBlocked() bool {
	return e.Status == SW_PIN_BLOCKED || e.Status == iso7816.SW_ERR_AUTH_METHOD_BLOCKED
}

// CheckStatus returns a *ProtocolError unless resp carries exactly 0x9000.
func CheckStatus(op string, resp *iso7816.ResponseAPDU) error {
	if resp == nil {
		return fmt.Errorf("%s: %w", op, iso7816.ErrMalformedResponse)
	}
	if resp.Status != SW_SUCCESS {
		return &ProtocolError{Op: op, Status: resp.Status}
	}
	return nil
}

// ValidatePIN checks a PIN against the firmware length limits.
func ValidatePIN(pin []byte) error {
	if len(pin) < PIN_MIN_LENGTH || len(pin) > PIN_MAX_LENGTH {
		return fmt.Errorf("%w: %d bytes, want %d..%d", ErrPINLength, len(pin), PIN_MIN_LENGTH, PIN_MAX_LENGTH)
	}
	return nil
}
