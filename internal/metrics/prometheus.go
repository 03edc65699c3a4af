package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "quant_sim"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type Prometheus struct {
	Metrics *Metrics

	registry          *prometheus.Registry
	runsStarted       prometheus.Counter
	runsCompleted     prometheus.Counter
	runsFailed        prometheus.Counter
	tradesOpened      prometheus.Counter
	tradesClosed      prometheus.Counter
	vetoBars          prometheus.Counter
	candidatesSkipped prometheus.Counter
	anomalies         prometheus.Counter
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	runsStarted := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "runs_started_total",
		Help:      "Total number of simulation runs started.",
	})
	runsCompleted := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "runs_completed_total",
		Help:      "Total number of simulation runs completed.",
	})
	runsFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "runs_failed_total",
		Help:      "Total number of simulation runs that ended in error.",
	})
	tradesOpened := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "trades_opened_total",
		Help:      "Total number of simulated positions opened.",
	})
	tradesClosed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "trades_closed_total",
		Help:      "Total number of simulated positions closed.",
	})
	vetoBars := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "veto_bars_total",
		Help:      "Total number of bars on which the volatility veto blocked entries.",
	})
	candidatesSkipped := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "candidates_skipped_total",
		Help:      "Total number of entry candidates skipped by slot or exposure limits.",
	})
	anomalies := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "anomalies_neutralized_total",
		Help:      "Total number of non-finite scores neutralized to zero.",
	})

	registry.MustRegister(runsStarted, runsCompleted, runsFailed, tradesOpened, tradesClosed, vetoBars, candidatesSkipped, anomalies)

	m := &Metrics{
		RunsStarted:          promCounter{runsStarted},
		RunsCompleted:        promCounter{runsCompleted},
		RunsFailed:           promCounter{runsFailed},
		TradesOpened:         promCounter{tradesOpened},
		TradesClosed:         promCounter{tradesClosed},
		VetoBars:             promCounter{vetoBars},
		CandidatesSkipped:    promCounter{candidatesSkipped},
		AnomaliesNeutralized: promCounter{anomalies},
	}

	return &Prometheus{
		Metrics:           m,
		registry:          registry,
		runsStarted:       runsStarted,
		runsCompleted:     runsCompleted,
		runsFailed:        runsFailed,
		tradesOpened:      tradesOpened,
		tradesClosed:      tradesClosed,
		vetoBars:          vetoBars,
		candidatesSkipped: candidatesSkipped,
		anomalies:         anomalies,
	}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
