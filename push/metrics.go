package push

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	requests      *prometheus.CounterVec
	registrations *prometheus.CounterVec
	retries       prometheus.Counter
}

func newMetrics(registry prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventflit_client",
			Subsystem: "push",
			Name:      "interest_requests_count",
			Help:      "Number of interest change requests by operation and result.",
		}, []string{"op", "result"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventflit_client",
			Subsystem: "push",
			Name:      "registrations_count",
			Help:      "Number of device registrations by result.",
		}, []string{"result"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventflit_client",
			Subsystem: "push",
			Name:      "retries_count",
			Help:      "Number of scheduled interest request retries.",
		}),
	}
	if registry == nil {
		return m, nil
	}

	var err error
	if m.requests, err = register(registry, m.requests); err != nil {
		return nil, err
	}
	if m.registrations, err = register(registry, m.registrations); err != nil {
		return nil, err
	}
	if m.retries, err = register(registry, m.retries); err != nil {
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
