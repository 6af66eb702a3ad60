package reward

import (
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
)

// hoursPerYear is used to derive per-cycle quotas from yearly message counts.
const hoursPerYear = 365 * 24

// Recognized bucket names. Each one selects the network-level ratio scoring
// the bucket in NetworkInputs.
const (
	BucketEconomicSecurity = "economic_security"
	BucketNetworkCapacity  = "network_capacity"
)

// Bucket is one scored axis of network health (capacity, economic security,
// ...). Its APR curve is a sigmoid shaped by four tunables. Buckets are
// configuration data: loaded once, immutable thereafter.
type Bucket struct {
	Name       string  `mapstructure:"name"`
	Flatness   float64 `mapstructure:"flatness"`
	Skewness   float64 `mapstructure:"skewness"`
	Upperbound float64 `mapstructure:"upperbound"`
	Offset     float64 `mapstructure:"offset"`
}

// APR computes the bucket's annual percentage reward at position x. The
// function is only defined for x in (0, upperbound); anything else returns a
// DomainError. A defined but negative result is clamped to 0.
func (b Bucket) APR(x float64) (float64, error) {
	if x <= 0 || x >= b.Upperbound {
		return 0, DomainError{Bucket: b.Name, X: x}
	}

	apr := math.Log(math.Pow(b.Upperbound/x, b.Skewness)-1)*b.Flatness + b.Offset

	// a negative skewness can push the log argument below zero even inside
	// the nominal domain
	if math.IsNaN(apr) || math.IsInf(apr, 0) {
		return 0, DomainError{Bucket: b.Name, X: x}
	}

	return math.Max(apr, 0), nil
}

// Config holds the tunables of a reward model, loadable through viper.
type Config struct {
	Offset           float64  `mapstructure:"offset"`
	MaxAPR           float64  `mapstructure:"max-apr"`
	Proportion       float64  `mapstructure:"proportion"`
	TotalTokenSupply float64  `mapstructure:"total-token-supply"`
	NetworkCapacity  int      `mapstructure:"network-capacity"`
	Buckets          []Bucket `mapstructure:"buckets"`
}

// Model composes bucket APRs into one bounded reward function and derives
// message quotas from it.
type Model struct {
	offset           float64
	buckets          []Bucket
	maxAPR           float64
	proportion       float64
	totalTokenSupply float64
	networkCapacity  int
	logger           *logrus.Entry
}

// NewModel ...
func NewModel(conf Config, logger *logrus.Entry) *Model {
	return &Model{
		offset:           conf.Offset,
		buckets:          conf.Buckets,
		maxAPR:           conf.MaxAPR,
		proportion:       conf.Proportion,
		totalTokenSupply: conf.TotalTokenSupply,
		networkCapacity:  conf.NetworkCapacity,
		logger:           logger,
	}
}

// APR is the geometric mean of the individual bucket APRs, plus the model
// offset, capped at maxAPR when one is configured. A DomainError in any bucket
// degrades the whole composition to 0 instead of propagating: one malformed
// input must not abort reward computation for the whole peer set.
func (m *Model) APR(xs []float64) float64 {
	if len(m.buckets) == 0 || len(xs) != len(m.buckets) {
		m.logger.WithFields(logrus.Fields{
			"buckets": len(m.buckets),
			"inputs":  len(xs),
		}).Error("Bucket/input mismatch in APR calculation")
		return 0
	}

	product := 1.0
	for i, bucket := range m.buckets {
		apr, err := bucket.APR(xs[i])
		if err != nil {
			m.logger.WithError(err).Error("Domain error in APR calculation")
			return 0
		}
		product *= apr
	}

	apr := math.Pow(product, 1.0/float64(len(m.buckets))) + m.offset

	if m.maxAPR > 0 {
		apr = math.Min(apr, m.maxAPR)
	}

	return apr
}

// NetworkInputs builds the bucket input vector for one distribution cycle.
// Bucket inputs are network-level ratios shared by every peer, not per-peer
// stakes: the eligible peers' combined stake over the total token supply, or
// the eligible peer count over the network's target capacity, selected by
// bucket name. The ratios must land inside each bucket's (0, upperbound)
// domain for APR to be defined.
func (m *Model) NetworkInputs(totalStake float64, eligibleCount int) ([]float64, error) {
	xs := make([]float64, len(m.buckets))

	for i, bucket := range m.buckets {
		switch bucket.Name {
		case BucketEconomicSecurity:
			if m.totalTokenSupply <= 0 {
				return nil, fmt.Errorf("bucket %s needs a positive total token supply", bucket.Name)
			}
			xs[i] = totalStake / m.totalTokenSupply
		case BucketNetworkCapacity:
			if m.networkCapacity <= 0 {
				return nil, fmt.Errorf("bucket %s needs a positive network capacity", bucket.Name)
			}
			xs[i] = float64(eligibleCount) / float64(m.networkCapacity)
		default:
			return nil, fmt.Errorf("unknown bucket %q", bucket.Name)
		}
	}

	return xs, nil
}

// YearlyMessageCount converts a peer's stake into the number of messages it
// should relay over a year to earn the computed APR. A zero ticket price
// yields a zero quota.
func (m *Model) YearlyMessageCount(stake float64, ticketPrice float64, xs []float64) int {
	if ticketPrice == 0 {
		return 0
	}

	rewards := m.APR(xs) * stake / 100.0

	return int(math.Round(rewards / ticketPrice * m.proportion))
}

// MessageCountForPeriod splits the yearly quota over one distribution period.
func (m *Model) MessageCountForPeriod(stake float64, ticketPrice float64, xs []float64, period time.Duration) int {
	yearly := m.YearlyMessageCount(stake, ticketPrice, xs)

	fraction := period.Hours() / hoursPerYear

	return int(math.Round(float64(yearly) * fraction))
}
