package reward

import (
	"math"
	"testing"
	"time"

	"github.com/covertnetworks/relaypulse/src/common"
)

func testModel(t *testing.T, offset float64, buckets []Bucket, maxAPR, proportion float64) *Model {
	return NewModel(Config{
		Offset:     offset,
		MaxAPR:     maxAPR,
		Proportion: proportion,
		Buckets:    buckets,
	}, common.NewTestEntry(t))
}

func TestBucketAPR(t *testing.T) {
	bucket := Bucket{Name: "bucket", Flatness: 1, Skewness: 1, Upperbound: 0.5, Offset: 0}

	if _, err := bucket.APR(0); !IsDomain(err) {
		t.Fatalf("x=0 should raise a DomainError, got %v", err)
	}

	if _, err := bucket.APR(0.5); !IsDomain(err) {
		t.Fatalf("x=upperbound should raise a DomainError, got %v", err)
	}

	if _, err := bucket.APR(0.7); !IsDomain(err) {
		t.Fatalf("x>upperbound should raise a DomainError, got %v", err)
	}

	if _, err := bucket.APR(-1); !IsDomain(err) {
		t.Fatalf("x<0 should raise a DomainError, got %v", err)
	}

	apr, err := bucket.APR(0.125)
	if err != nil {
		t.Fatal(err)
	}
	if apr <= 0 {
		t.Fatalf("apr at 0.125 should be positive, got %f", apr)
	}

	// at the sigmoid's midpoint the raw value is log(1) = 0
	apr, err = bucket.APR(0.25)
	if err != nil {
		t.Fatal(err)
	}
	if apr != 0 {
		t.Fatalf("apr at midpoint should be 0, got %f", apr)
	}

	// above the midpoint the raw value is negative and gets clamped
	apr, err = bucket.APR(0.375)
	if err != nil {
		t.Fatal(err)
	}
	if apr != 0 {
		t.Fatalf("apr above midpoint should be clamped to 0, got %f", apr)
	}
}

func TestBucketAPRFinite(t *testing.T) {
	bucket := Bucket{Name: "bucket", Flatness: 2, Skewness: 3, Upperbound: 1, Offset: 0.5}

	for _, x := range []float64{0.001, 0.1, 0.25, 0.5, 0.75, 0.999} {
		apr, err := bucket.APR(x)
		if err != nil {
			t.Fatalf("x=%f inside domain should not fail: %v", x, err)
		}
		if math.IsNaN(apr) || math.IsInf(apr, 0) || apr < 0 {
			t.Fatalf("apr at x=%f should be finite and non-negative, got %f", x, apr)
		}
	}
}

func TestModelAPROffset(t *testing.T) {
	buckets := []Bucket{
		{Name: "network_capacity", Flatness: 1, Skewness: 1, Upperbound: 1},
		{Name: "economic_security", Flatness: 1, Skewness: 1, Upperbound: 0.5},
	}

	model := testModel(t, 0, buckets, 20.0, 1)
	if apr := model.APR([]float64{0.5, 0.25}); apr != 0 {
		t.Fatalf("apr at both midpoints should be 0, got %f", apr)
	}

	model = testModel(t, 10, buckets, 20.0, 1)
	if apr := model.APR([]float64{0.5, 0.25}); apr != 10 {
		t.Fatalf("apr should equal the model offset, got %f", apr)
	}
}

func TestModelAPRComposition(t *testing.T) {
	bucket := Bucket{Name: "bucket", Flatness: 1, Skewness: 1, Upperbound: 1}

	single := testModel(t, 0, []Bucket{bucket}, 20.0, 1)
	double := testModel(t, 0, []Bucket{bucket, bucket}, 20.0, 1)

	a := single.APR([]float64{0.25})
	b := double.APR([]float64{0.25, 0.25})

	if math.Abs(a-b) > 1e-9 {
		t.Fatalf("doubling the bucket list should not change the APR: %f != %f", a, b)
	}
}

func TestModelAPRDegradesOnDomainError(t *testing.T) {
	buckets := []Bucket{
		{Name: "good", Flatness: 1, Skewness: 1, Upperbound: 1},
		{Name: "bad", Flatness: 1, Skewness: 1, Upperbound: 0.5},
	}

	model := testModel(t, 5, buckets, 20.0, 1)

	// second input sits exactly on its upperbound
	if apr := model.APR([]float64{0.25, 0.5}); apr != 0 {
		t.Fatalf("a domain error should degrade the composition to 0, got %f", apr)
	}
}

func TestModelAPRCap(t *testing.T) {
	buckets := []Bucket{{Name: "bucket", Flatness: 1, Skewness: 1, Upperbound: 1}}

	model := testModel(t, 100, buckets, 20.0, 1)

	if apr := model.APR([]float64{0.25}); apr != 20.0 {
		t.Fatalf("apr should be capped at 20, got %f", apr)
	}
}

func TestNetworkInputs(t *testing.T) {
	model := NewModel(Config{
		TotalTokenSupply: 100000,
		NetworkCapacity:  50,
		Buckets: []Bucket{
			{Name: BucketEconomicSecurity, Flatness: 1, Skewness: 1, Upperbound: 1},
			{Name: BucketNetworkCapacity, Flatness: 1, Skewness: 1, Upperbound: 1},
		},
	}, common.NewTestEntry(t))

	xs, err := model.NetworkInputs(30000, 10)
	if err != nil {
		t.Fatal(err)
	}

	if len(xs) != 2 {
		t.Fatalf("there should be one input per bucket, got %v", xs)
	}
	if xs[0] != 0.3 {
		t.Fatalf("economic security input should be 0.3, not %f", xs[0])
	}
	if xs[1] != 0.2 {
		t.Fatalf("network capacity input should be 0.2, not %f", xs[1])
	}

	// the ratios feed the APR composition directly
	if apr := model.APR(xs); apr <= 0 {
		t.Fatalf("apr on the cycle inputs should be positive, got %f", apr)
	}
}

func TestNetworkInputsUnknownBucket(t *testing.T) {
	model := NewModel(Config{
		TotalTokenSupply: 100000,
		NetworkCapacity:  50,
		Buckets:          []Bucket{{Name: "stake", Flatness: 1, Skewness: 1, Upperbound: 1}},
	}, common.NewTestEntry(t))

	if _, err := model.NetworkInputs(30000, 10); err == nil {
		t.Fatal("an unknown bucket name should fail")
	}
}

func TestNetworkInputsMissingRatios(t *testing.T) {
	model := NewModel(Config{
		Buckets: []Bucket{
			{Name: BucketEconomicSecurity, Flatness: 1, Skewness: 1, Upperbound: 1},
		},
	}, common.NewTestEntry(t))

	if _, err := model.NetworkInputs(30000, 10); err == nil {
		t.Fatal("a zero total token supply should fail")
	}
}

func TestYearlyMessageCount(t *testing.T) {
	stake := 75000.0
	ticketPrice := 0.0003

	buckets := []Bucket{
		{Name: "bucket_1", Flatness: 1, Skewness: 1, Upperbound: 1},
		{Name: "bucket_2", Flatness: 1, Skewness: 1, Upperbound: 0.5},
	}

	model := testModel(t, 10.0, buckets, 20.0, 1)

	xs := []float64{0.5, 0.25}
	if apr := model.APR(xs); apr != 10 {
		t.Fatalf("apr should be 10, got %f", apr)
	}

	expected := int(math.Round(10.0 / 100.0 * stake / ticketPrice))
	if count := model.YearlyMessageCount(stake, ticketPrice, xs); count != expected {
		t.Fatalf("yearly count should be %d, got %d", expected, count)
	}
}

func TestYearlyMessageCountZeroTicketPrice(t *testing.T) {
	buckets := []Bucket{{Name: "bucket", Flatness: 1, Skewness: 1, Upperbound: 1}}

	model := testModel(t, 10.0, buckets, 20.0, 1)

	if count := model.YearlyMessageCount(1000, 0, []float64{0.25}); count != 0 {
		t.Fatalf("zero ticket price should yield quota 0, got %d", count)
	}
}

func TestMessageCountForPeriod(t *testing.T) {
	buckets := []Bucket{
		{Name: "bucket_1", Flatness: 1, Skewness: 1, Upperbound: 1},
		{Name: "bucket_2", Flatness: 1, Skewness: 1, Upperbound: 0.5},
	}

	model := testModel(t, 10.0, buckets, 20.0, 1)

	xs := []float64{0.5, 0.25}
	yearly := model.YearlyMessageCount(75000, 0.0003, xs)

	half := model.MessageCountForPeriod(75000, 0.0003, xs, time.Duration(hoursPerYear/2)*time.Hour)

	if diff := yearly/2 - half; diff < -1 || diff > 1 {
		t.Fatalf("half-year quota should be about half the yearly quota: %d vs %d", yearly, half)
	}
}
