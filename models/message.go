package models

// MessageType distinguishes a transaction hand-over from a request for one.
type MessageType int

const (
	Block MessageType = iota
	Request
)

func (t MessageType) String() string {
	if t == Request {
		return "REQUEST"
	}
	return "BLOCK"
}

// Message travels along one edge of the miner graph. Tx is set for Block,
// Hash for Request.
type Message struct {
	Sender int
	Type   MessageType
	Tx     *Transaction
	Hash   Hash
}
