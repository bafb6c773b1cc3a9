package sessions

// StopReason: почему воркер сессии завершился.
type StopReason string

const (
	ReasonSentinel    StopReason = "sentinel"
	ReasonCancelled   StopReason = "cancelled" // пропал ключ SESSION:ORDER
	ReasonEquityMin   StopReason = "equity_min"
	ReasonEquityMax   StopReason = "equity_max"
	ReasonMalformed   StopReason = "malformed"
	ReasonInterrupted StopReason = "interrupted"
	ReasonBrokerError StopReason = "broker_error"
)

// Abnormal: о таких остановках пишем в ops-канал.
func (r StopReason) Abnormal() bool {
	switch r {
	case ReasonEquityMin, ReasonEquityMax, ReasonMalformed, ReasonBrokerError:
		return true
	}
	return false
}
