/*
Package iso7816 is the APDU layer under the Satochip command set: command and response
framing for short APDUs, status word decoding, a Client over any Transmitter, and the
parsing of SELECT responses.

# Exchanges

Every exchange is one command followed by one response ending in SW1 SW2:

	9000  success
	61XX  success, XX more bytes pending (GET RESPONSE)
	6CXX  wrong Le, XX is the right one
	other warning or error

StatusWord.IsSuccess accepts 0x9000 only. The Client follows 61XX and 6CXX itself only
when built with WithAutoResponse; by default every command is exactly one exchange.

Failures to reach the card at all are reported as *TransportError, never as a status
word.

# SELECT

SelectResult wraps the Trace of a SELECT and parses the data field according to the P2
the command was sent with (FCI '6F', FCP '62', FMD '64' or proprietary data):

	res, err := iso7816.NewSelectResult(trace)
	if err != nil {
		return err
	}
	if fci, err := res.FCI(); err == nil && fci != nil {
		fmt.Printf("AID %X\n", fci.AID())
	}
	fmt.Println(res.Describe())
*/
package iso7816
