package eventflit

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "eventflit_client"

type metrics struct {
	framesReceived    prometheus.Counter
	framesSent        *prometheus.CounterVec
	stateTransitions  *prometheus.CounterVec
	reconnectAttempts prometheus.Counter
	authFailures      *prometheus.CounterVec
	subscribedGauge   prometheus.Gauge
}

// newMetrics builds the client collectors and registers them with registry
// when it is non-nil. Collectors that are already registered are reused, so
// several clients can share one registry.
func newMetrics(registry prometheus.Registerer) (*metrics, error) {
	m := &metrics{}

	m.framesReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "transport",
		Name:      "frames_received_count",
		Help:      "Number of frames received from the service.",
	})

	m.framesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "transport",
		Name:      "frames_sent_count",
		Help:      "Number of frames sent to the service.",
	}, []string{"event"})

	m.stateTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "connection",
		Name:      "state_transitions_count",
		Help:      "Number of connection state transitions by target state.",
	}, []string{"state"})

	m.reconnectAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "connection",
		Name:      "reconnect_attempts_count",
		Help:      "Number of scheduled reconnect attempts.",
	})

	m.authFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "channel",
		Name:      "auth_failures_count",
		Help:      "Number of failed channel authorizations by channel kind.",
	}, []string{"kind"})

	m.subscribedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "channel",
		Name:      "num_subscribed",
		Help:      "Number of channels confirmed subscribed on the current connection.",
	})

	if registry == nil {
		return m, nil
	}

	var err error
	if m.framesReceived, err = register(registry, m.framesReceived); err != nil {
		return nil, err
	}
	if m.framesSent, err = register(registry, m.framesSent); err != nil {
		return nil, err
	}
	if m.stateTransitions, err = register(registry, m.stateTransitions); err != nil {
		return nil, err
	}
	if m.reconnectAttempts, err = register(registry, m.reconnectAttempts); err != nil {
		return nil, err
	}
	if m.authFailures, err = register(registry, m.authFailures); err != nil {
		return nil, err
	}
	if m.subscribedGauge, err = register(registry, m.subscribedGauge); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](registry prometheus.Registerer, c C) (C, error) {
	if err := registry.Register(c); err != nil {
		var alreadyRegistered prometheus.AlreadyRegisteredError
		if errors.As(err, &alreadyRegistered) {
			if existing, ok := alreadyRegistered.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}
