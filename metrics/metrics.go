package metrics

import "time"

// Metric names emitted by the sale engine
const (
	PurchaseDirect      = "purchase_direct"
	PurchaseRejected    = "purchase_rejected"
	QuoteRequested      = "quote_requested"
	QuoteFailed         = "quote_failed"
	SettlementDelivered = "settlement_delivered"
	SettlementRefunded  = "settlement_refunded"
	TransferFailed      = "transfer_failed"
	UnknownQuote        = "quote_unknown"

	LatencyPurchase  = "purchase"
	LatencyRoundTrip = "quote_round_trip"
)

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}

// OrNoop returns r, or a NoopRecorder when r is nil
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return NoopRecorder{}
	}
	return r
}

// NoopRecorder discards every observation
type NoopRecorder struct{}

func (NoopRecorder) IncCounter(string, map[string]string)                    {}
func (NoopRecorder) ObserveLatency(string, time.Duration, map[string]string) {}
