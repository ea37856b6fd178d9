package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	MailSent = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "mailbridge", Name: "mail_sent_total", Help: "Number of messages accepted by the mail API."},
	)
	MailFailed = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "mailbridge", Name: "mail_failed_total", Help: "Number of mail API calls that did not succeed."},
	)
	JobsScheduled = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "mailbridge", Name: "jobs_scheduled_total", Help: "Number of deferred jobs accepted."},
	)
	JobsFired = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "mailbridge", Name: "jobs_fired_total", Help: "Number of deferred jobs that ran successfully."},
	)
	JobsFailed = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "mailbridge", Name: "jobs_failed_total", Help: "Number of deferred jobs that ended in error."},
	)
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "mailbridge", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "mailbridge", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(MailSent)
	reg.MustRegister(MailFailed)
	reg.MustRegister(JobsScheduled)
	reg.MustRegister(JobsFired)
	reg.MustRegister(JobsFailed)
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
}
