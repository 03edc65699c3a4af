package metrics

type Counter interface {
	Inc()
}

type Metrics struct {
	RunsStarted          Counter
	RunsCompleted        Counter
	RunsFailed           Counter
	TradesOpened         Counter
	TradesClosed         Counter
	VetoBars             Counter
	CandidatesSkipped    Counter
	AnomaliesNeutralized Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		RunsStarted:          n,
		RunsCompleted:        n,
		RunsFailed:           n,
		TradesOpened:         n,
		TradesClosed:         n,
		VetoBars:             n,
		CandidatesSkipped:    n,
		AnomaliesNeutralized: n,
	}
}
