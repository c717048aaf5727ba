package metrics

type Counter interface {
	Inc()
}

type Metrics struct {
	OrdersPlaced      Counter
	OrdersFailed      Counter
	GuardrailRejected Counter
	StopLossEmbedded  Counter
	StopLossAttached  Counter
	StopLossFailed    Counter
	FineTuneAdjusted  Counter
	FineTuneAbandoned Counter
	FeedPollFailed    Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		OrdersPlaced:      n,
		OrdersFailed:      n,
		GuardrailRejected: n,
		StopLossEmbedded:  n,
		StopLossAttached:  n,
		StopLossFailed:    n,
		FineTuneAdjusted:  n,
		FineTuneAbandoned: n,
		FeedPollFailed:    n,
	}
}
