package transaction

// Transaction is an opaque handle threaded through index and pool operations.
// The storage core never inspects it; it only forwards it to collaborators
// that need to attribute work to a transaction.
type Transaction interface {
	GetID() uint64
}

type noopTxn struct{}

func (noopTxn) GetID() uint64 {
	return 0
}

// TxnNoop returns a transaction handle for callers that run outside any
// transaction manager, such as tests and tools.
func TxnNoop() Transaction {
	return noopTxn{}
}
