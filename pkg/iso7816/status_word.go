package iso7816

import (
	"fmt"

	"github.com/gregLibert/satochip/pkg/bits"
)

// Status word (SW1 SW2) handling according to ISO/IEC 7816-4, 5.6.
//
// Most status words are fixed values, but some ranges carry a value in SW2:
//
// 1. '61XX': processing completed, XX more bytes available through GET RESPONSE.
//    Readers working in T=0 may return it.
//
// 2. '6CXX': wrong Le, XX is the length the card expects. Resending with Le XX
//    returns the data.
//
// 3. '63CX': warning with a counter in the low nibble, usually retries left.
//    The applet does not use this form for its PIN: a wrong PIN answers 63C0 and
//    a blocked PIN 63C1 whatever the counter, so the retry count comes from
//    GET STATUS instead.
//
// 4. '62XX' / '64XX' with XX in 02..80: triggering by the card, XX bytes involved.
//
// Only 9000 counts as success; 61XX is reported by IsResponseAvailable.

// StatusWord is the SW1 SW2 trailer of a response.
type StatusWord uint16

// NewStatusWord combines SW1 and SW2.
func NewStatusWord(sw1, sw2 byte) StatusWord {
	return StatusWord(uint16(sw1)<<8 | uint16(sw2))
}

// SW1 returns the high byte.
func (sw StatusWord) SW1() byte { return byte(sw >> 8) }

// SW2 returns the low byte.
func (sw StatusWord) SW2() byte { return byte(sw) }

// ISO/IEC 7816-4 status words seen on the Satochip applet or its readers.
const (
	SW_NO_ERROR StatusWord = 0x9000

	SW_WARN_NO_INFO            StatusWord = 0x6200
	SW_WARN_TRIGGERING_BY_CARD StatusWord = 0x6202
	SW_WARN_NV_CHANGED_NO_INFO StatusWord = 0x6300
	SW_WARN_COUNTER_0          StatusWord = 0x63C0

	SW_ERR_EXEC_NO_INFO   StatusWord = 0x6400
	SW_ERR_MEMORY_FAILURE StatusWord = 0x6581
	SW_ERR_WRONG_LENGTH   StatusWord = 0x6700

	SW_ERR_LOGICAL_CHANNEL_NOT_SUPP  StatusWord = 0x6881
	SW_ERR_SECURE_MESSAGING_NOT_SUPP StatusWord = 0x6882

	SW_ERR_CMD_NOT_ALLOWED_NO_INFO StatusWord = 0x6900
	SW_ERR_SECURITY_STATUS_NOT_SAT StatusWord = 0x6982
	SW_ERR_AUTH_METHOD_BLOCKED     StatusWord = 0x6983
	SW_ERR_COND_OF_USE_NOT_SAT     StatusWord = 0x6985

	SW_ERR_INCORRECT_PARAMS_DATA StatusWord = 0x6A80
	SW_ERR_FUNC_NOT_SUPPORTED    StatusWord = 0x6A81
	SW_ERR_FILE_NOT_FOUND        StatusWord = 0x6A82
	SW_ERR_NOT_ENOUGH_MEMORY     StatusWord = 0x6A84
	SW_ERR_INCORRECT_PARAMS_P1P2 StatusWord = 0x6A86
	SW_ERR_REF_DATA_NOT_FOUND    StatusWord = 0x6A88

	SW_ERR_WRONG_P1P2        StatusWord = 0x6B00
	SW_ERR_INS_INVALID       StatusWord = 0x6D00
	SW_ERR_CLA_NOT_SUPPORTED StatusWord = 0x6E00
	SW_ERR_UNKNOWN           StatusWord = 0x6F00
)

var statusWords = map[StatusWord]struct{ name, text string }{
	SW_NO_ERROR:                      {"SW_NO_ERROR", "success"},
	SW_WARN_NO_INFO:                  {"SW_WARN_NO_INFO", "warning, memory unchanged"},
	SW_WARN_TRIGGERING_BY_CARD:       {"SW_WARN_TRIGGERING_BY_CARD", "triggering by the card"},
	SW_WARN_NV_CHANGED_NO_INFO:       {"SW_WARN_NV_CHANGED_NO_INFO", "warning, memory changed"},
	SW_WARN_COUNTER_0:                {"SW_WARN_COUNTER_0", "counter 0"},
	SW_ERR_EXEC_NO_INFO:              {"SW_ERR_EXEC_NO_INFO", "execution error"},
	SW_ERR_MEMORY_FAILURE:            {"SW_ERR_MEMORY_FAILURE", "memory failure"},
	SW_ERR_WRONG_LENGTH:              {"SW_ERR_WRONG_LENGTH", "wrong length"},
	SW_ERR_LOGICAL_CHANNEL_NOT_SUPP:  {"SW_ERR_LOGICAL_CHANNEL_NOT_SUPP", "logical channel not supported"},
	SW_ERR_SECURE_MESSAGING_NOT_SUPP: {"SW_ERR_SECURE_MESSAGING_NOT_SUPP", "secure messaging not supported"},
	SW_ERR_CMD_NOT_ALLOWED_NO_INFO:   {"SW_ERR_CMD_NOT_ALLOWED_NO_INFO", "command not allowed"},
	SW_ERR_SECURITY_STATUS_NOT_SAT:   {"SW_ERR_SECURITY_STATUS_NOT_SAT", "security status not satisfied"},
	SW_ERR_AUTH_METHOD_BLOCKED:       {"SW_ERR_AUTH_METHOD_BLOCKED", "authentication method blocked"},
	SW_ERR_COND_OF_USE_NOT_SAT:       {"SW_ERR_COND_OF_USE_NOT_SAT", "conditions of use not satisfied"},
	SW_ERR_INCORRECT_PARAMS_DATA:     {"SW_ERR_INCORRECT_PARAMS_DATA", "incorrect data"},
	SW_ERR_FUNC_NOT_SUPPORTED:        {"SW_ERR_FUNC_NOT_SUPPORTED", "function not supported"},
	SW_ERR_FILE_NOT_FOUND:            {"SW_ERR_FILE_NOT_FOUND", "file or application not found"},
	SW_ERR_NOT_ENOUGH_MEMORY:         {"SW_ERR_NOT_ENOUGH_MEMORY", "not enough memory"},
	SW_ERR_INCORRECT_PARAMS_P1P2:     {"SW_ERR_INCORRECT_PARAMS_P1P2", "incorrect P1 P2"},
	SW_ERR_REF_DATA_NOT_FOUND:        {"SW_ERR_REF_DATA_NOT_FOUND", "referenced data not found"},
	SW_ERR_WRONG_P1P2:                {"SW_ERR_WRONG_P1P2", "wrong P1 P2"},
	SW_ERR_INS_INVALID:               {"SW_ERR_INS_INVALID", "instruction not supported"},
	SW_ERR_CLA_NOT_SUPPORTED:         {"SW_ERR_CLA_NOT_SUPPORTED", "class not supported"},
	SW_ERR_UNKNOWN:                   {"SW_ERR_UNKNOWN", "no precise diagnosis"},
}

// Fallback descriptions by SW1.
var sw1Texts = map[byte]string{
	0x62: "warning, memory unchanged",
	0x63: "warning, memory changed",
	0x64: "execution error, memory unchanged",
	0x65: "execution error, memory changed",
	0x66: "security error",
	0x67: "wrong length",
	0x68: "function in CLA not supported",
	0x69: "command not allowed",
	0x6A: "wrong parameters",
	0x6B: "wrong P1 P2",
	0x6D: "instruction not supported",
	0x6E: "class not supported",
	0x6F: "no precise diagnosis",
}

// IsSuccess reports 9000. 61XX is not a final outcome, see IsResponseAvailable.
func (sw StatusWord) IsSuccess() bool {
	return sw == SW_NO_ERROR
}

// IsResponseAvailable reports 61XX: SW2 more bytes wait for GET RESPONSE.
func (sw StatusWord) IsResponseAvailable() bool {
	return sw.SW1() == 0x61
}

// IsTriggeringByCard reports 62XX or 64XX with XX in 02..80.
func (sw StatusWord) IsTriggeringByCard() bool {
	sw1, sw2 := sw.SW1(), sw.SW2()
	return (sw1 == 0x62 || sw1 == 0x64) && sw2 >= 0x02 && sw2 <= 0x80
}

// IsCounter reports 63CX.
func (sw StatusWord) IsCounter() bool {
	return sw.SW1() == 0x63 && bits.GetRange(sw.SW2(), 8, 5) == 0x0C
}

// Counter returns X of a 63CX word.
func (sw StatusWord) Counter() (int, bool) {
	if !sw.IsCounter() {
		return 0, false
	}
	return int(bits.GetRange(sw.SW2(), 4, 1)), true
}

// IsWarning reports 62XX and 63XX.
func (sw StatusWord) IsWarning() bool {
	return sw.SW1() == 0x62 || sw.SW1() == 0x63
}

// IsError reports 64XX to 6FXX.
func (sw StatusWord) IsError() bool {
	return sw.SW1() >= 0x64 && sw.SW1() <= 0x6F
}

// String returns the constant name, or StatusWord(0xXXXX) for unlisted words.
func (sw StatusWord) String() string {
	if e, ok := statusWords[sw]; ok {
		return e.name
	}
	return fmt.Sprintf("StatusWord(0x%04X)", uint16(sw))
}

// Verbose returns the hex word followed by its meaning, decoding the SW2 of 61XX,
// 6CXX, 63CX and triggering words.
func (sw StatusWord) Verbose() string {
	return fmt.Sprintf("%04X %s", uint16(sw), sw.meaning())
}

func (sw StatusWord) meaning() string {
	sw1, sw2 := sw.SW1(), sw.SW2()
	switch {
	case sw1 == 0x61:
		return fmt.Sprintf("%d bytes available", sw2)
	case sw1 == 0x6C:
		return fmt.Sprintf("wrong Le, correct Le is %d", sw2)
	case sw.IsCounter():
		n, _ := sw.Counter()
		return fmt.Sprintf("counter %d", n)
	case sw.IsTriggeringByCard():
		return fmt.Sprintf("triggering by the card, %d bytes to query", sw2)
	}
	if e, ok := statusWords[sw]; ok {
		return e.text
	}
	if text, ok := sw1Texts[sw1]; ok {
		return text
	}
	return "unknown status"
}
