package ctrader

import "github.com/prometheus/client_golang/prometheus"

var eventCounters = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "ctrader_event_count",
	Help: "ctrader income push event counters",
}, []string{"event"})

var rejectCounters = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "ctrader_reject_count",
	Help: "ctrader order reject counters by wire reason",
}, []string{"reason"})

var commandDurations = prometheus.NewSummaryVec(prometheus.SummaryOpts{
	Name:       "ctrader_command_duration_us",
	Help:       "ctrader command round trip durations microseconds",
	AgeBuckets: 1,
}, []string{"command"})

var placementDurations = prometheus.NewSummary(prometheus.SummaryOpts{
	Name:       "ctrader_order_placement_duration_us",
	Help:       "ctrader order placement lifecycle durations microseconds",
	AgeBuckets: 1,
})

func init() {
	prometheus.MustRegister(eventCounters, rejectCounters, commandDurations, placementDurations)
}
