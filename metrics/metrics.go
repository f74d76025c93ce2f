// Package metrics exposes process-wide Prometheus counters for the bot and
// the web routes. Served by the web server on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AccessGrants = promauto.NewCounter(prometheus.CounterOpts{
		Name: "access_grants_total",
		Help: "Number of times the megapack link was revealed to a user.",
	})

	TaskChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "task_checks_total",
		Help: "Task completion checks by result.",
	}, []string{"result"})

	ChannelChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "channel_checks_total",
		Help: "Channel membership checks by result.",
	}, []string{"result"})

	ClickNotifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "click_notifications_total",
		Help: "Click-notification webhook calls by outcome.",
	}, []string{"status"})
)
