package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// StampMetrics tracks stamp issuance and reward lifecycle outcomes.
type StampMetrics struct {
	issued          *prometheus.CounterVec
	issueRejected   *prometheus.CounterVec
	rewardsEarned   prometheus.Counter
	redeemed        prometheus.Counter
	redeemRejected  *prometheus.CounterVec
	qrCodesIssued   *prometheus.CounterVec
	sideEffectFails *prometheus.CounterVec
}

// NewStampMetrics registers the stamp metrics on reg. A nil registerer yields
// a no-op recorder.
func NewStampMetrics(reg prometheus.Registerer) *StampMetrics {
	if reg == nil {
		return &StampMetrics{}
	}
	m := &StampMetrics{
		issued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stamps_issued_total",
			Help:      "Stamps granted, by issuance method.",
		}, []string{"method"}),
		issueRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stamp_issuance_rejected_total",
			Help:      "Rejected stamp issuance requests, by error kind.",
		}, []string{"reason"}),
		rewardsEarned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rewards_earned_total",
			Help:      "Reward codes issued on card completion.",
		}),
		redeemed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rewards_redeemed_total",
			Help:      "Reward codes redeemed by merchants.",
		}),
		redeemRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reward_redemption_rejected_total",
			Help:      "Rejected reward redemptions, by error kind.",
		}, []string{"reason"}),
		qrCodesIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "qr_codes_issued_total",
			Help:      "Stamp QR codes minted, by security level.",
		}, []string{"security_level"}),
		sideEffectFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "post_commit_failures_total",
			Help:      "Post-commit side effects that failed after a committed write.",
		}, []string{"effect"}),
	}
	reg.MustRegister(m.issued, m.issueRejected, m.rewardsEarned, m.redeemed, m.redeemRejected, m.qrCodesIssued, m.sideEffectFails)
	return m
}

func (m *StampMetrics) StampsIssued(method string, count int) {
	if m == nil || m.issued == nil {
		return
	}
	m.issued.WithLabelValues(normalizeLabel(method)).Add(float64(count))
}

func (m *StampMetrics) IssuanceRejected(reason string) {
	if m == nil || m.issueRejected == nil {
		return
	}
	m.issueRejected.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *StampMetrics) RewardEarned() {
	if m == nil || m.rewardsEarned == nil {
		return
	}
	m.rewardsEarned.Inc()
}

func (m *StampMetrics) RewardRedeemed() {
	if m == nil || m.redeemed == nil {
		return
	}
	m.redeemed.Inc()
}

func (m *StampMetrics) RedemptionRejected(reason string) {
	if m == nil || m.redeemRejected == nil {
		return
	}
	m.redeemRejected.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *StampMetrics) QRCodeIssued(level string) {
	if m == nil || m.qrCodesIssued == nil {
		return
	}
	m.qrCodesIssued.WithLabelValues(normalizeLabel(level)).Inc()
}

func (m *StampMetrics) PostCommitFailure(effect string) {
	if m == nil || m.sideEffectFails == nil {
		return
	}
	m.sideEffectFails.WithLabelValues(normalizeLabel(effect)).Inc()
}
