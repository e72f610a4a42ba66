package iso7816

// Transaction is one command and the response it got. Response is nil when the
// link failed before an answer arrived.
type Transaction struct {
	Command  *CommandAPDU
	Response *ResponseAPDU
}

// IsSuccess reports whether the response carried 9000.
func (t *Transaction) IsSuccess() bool {
	return t.Response != nil && t.Response.Status.IsSuccess()
}

// Trace lists the exchanges of one logical command in order: the command itself,
// then any GET RESPONSE or Le correction the Client sent on its behalf.
type Trace []Transaction

// Last returns the final transaction, or nil for an empty trace.
func (t Trace) Last() *Transaction {
	if len(t) == 0 {
		return nil
	}
	return &t[len(t)-1]
}

// IsSuccess reports whether the final exchange succeeded. Intermediate 61XX and 6CXX
// answers do not count.
func (t Trace) IsSuccess() bool {
	last := t.Last()
	return last != nil && last.IsSuccess()
}

// Status returns the final status word, or 0 when no response was recorded.
func (t Trace) Status() StatusWord {
	if last := t.Last(); last != nil && last.Response != nil {
		return last.Response.Status
	}
	return 0
}

// Data returns the payload of the final response.
func (t Trace) Data() []byte {
	if last := t.Last(); last != nil && last.Response != nil {
		return last.Response.Data
	}
	return nil
}
