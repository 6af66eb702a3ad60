package reward

import "fmt"

// DomainError signals that a bucket was evaluated outside its mathematical
// domain. x must lie strictly between 0 and the bucket's upperbound.
type DomainError struct {
	Bucket string
	X      float64
}

// Error implements the error interface.
func (e DomainError) Error() string {
	return fmt.Sprintf("bucket %s: x=%f outside domain (0, upperbound)", e.Bucket, e.X)
}

// IsDomain checks that an error is a DomainError.
func IsDomain(err error) bool {
	_, ok := err.(DomainError)
	return ok
}
