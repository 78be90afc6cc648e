package domain

import "context"

type RecordRequest struct {
	Username  string
	Action    string
	Path      string
	IP        string
	UserAgent string
	Success   bool
}

type Service interface {
	// Record writes one access log row. Failures are logged, never
	// propagated: auditing must not break the operation it observes.
	Record(ctx context.Context, req RecordRequest)

	List(ctx context.Context, limit int) ([]AccessLog, error)
}
