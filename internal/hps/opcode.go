package hps

// Opcode is a single-byte Control Point command as defined by the HTTP
// Proxy Service characteristic set.
type Opcode byte

// Control Point opcodes, per the HPS 1.0 specification.
const (
	OpHTTPGet    Opcode = 0x01
	OpHTTPHead   Opcode = 0x02
	OpHTTPPost   Opcode = 0x03
	OpHTTPPut    Opcode = 0x04
	OpHTTPDelete Opcode = 0x05
	OpHTTPSGet   Opcode = 0x06
	OpHTTPSHead  Opcode = 0x07
	OpHTTPSPost  Opcode = 0x08
	OpHTTPSPut   Opcode = 0x09
	OpHTTPSDelete Opcode = 0x0A
	OpCancel     Opcode = 0x0B
)

// methodMapping describes the scheme, HTTP method, and whether a body is
// sent for an opcode that dispatches a request (i.e. every opcode except
// OpCancel).
type methodMapping struct {
	scheme     string
	method     string
	sendsBody  bool
}

var opcodeMapping = map[Opcode]methodMapping{
	OpHTTPGet:     {scheme: "http", method: "GET", sendsBody: false},
	OpHTTPHead:    {scheme: "http", method: "HEAD", sendsBody: false},
	OpHTTPPost:    {scheme: "http", method: "POST", sendsBody: true},
	OpHTTPPut:     {scheme: "http", method: "PUT", sendsBody: true},
	OpHTTPDelete:  {scheme: "http", method: "DELETE", sendsBody: true},
	OpHTTPSGet:    {scheme: "https", method: "GET", sendsBody: false},
	OpHTTPSHead:   {scheme: "https", method: "HEAD", sendsBody: false},
	OpHTTPSPost:   {scheme: "https", method: "POST", sendsBody: true},
	OpHTTPSPut:    {scheme: "https", method: "PUT", sendsBody: true},
	OpHTTPSDelete: {scheme: "https", method: "DELETE", sendsBody: true},
}

// IsDispatchable reports whether op schedules an HTTP request (as opposed
// to OpCancel, which is a control signal).
func (op Opcode) IsDispatchable() bool {
	_, ok := opcodeMapping[op]
	return ok
}

// Valid reports whether op is one of the eleven defined Control Point
// values (0x01-0x0B).
func (op Opcode) Valid() bool {
	return op.IsDispatchable() || op == OpCancel
}

// Scheme returns the scheme implied by op, used only when the stored URI
// does not already carry one.
func (op Opcode) Scheme() (string, bool) {
	m, ok := opcodeMapping[op]
	return m.scheme, ok
}

// Method returns the HTTP method implied by op.
func (op Opcode) Method() (string, bool) {
	m, ok := opcodeMapping[op]
	return m.method, ok
}

// SendsBody reports whether the request issued for op carries req_body.
func (op Opcode) SendsBody() bool {
	m, ok := opcodeMapping[op]
	return ok && m.sendsBody
}
