package domain

import "context"

// Client-persisted state buckets. Each bucket holds one JSON document and must
// survive a reload without a backend round-trip.
const (
	BucketComments          = "comments"
	BucketLabStatus         = "lab_status"
	BucketLabReturned       = "lab_returned"
	BucketWarehouseReturned = "warehouse_returned"
	BucketAdminReturnNotes  = "admin_return_notes"
	BucketIssueReasons      = "issue_reasons"
	BucketAdminStored       = "admin_stored"
	BucketDeleted           = "deleted"
	BucketCreatedMarkers    = "created_markers"
	BucketReadState         = "read_state"
	BucketSortPrefs         = "sort_prefs"
)

// Buckets lists every client-persisted bucket.
func Buckets() []string {
	return []string{
		BucketComments,
		BucketLabStatus,
		BucketLabReturned,
		BucketWarehouseReturned,
		BucketAdminReturnNotes,
		BucketIssueReasons,
		BucketAdminStored,
		BucketDeleted,
		BucketCreatedMarkers,
		BucketReadState,
		BucketSortPrefs,
	}
}

// StateStore persists client-side state documents keyed by bucket name.
// Implementations must treat payloads as opaque JSON.
type StateStore interface {
	// Load returns every stored bucket. Missing buckets are simply absent.
	Load(ctx context.Context) (map[string][]byte, error)
	// Save upserts the given buckets atomically where the backend allows it.
	Save(ctx context.Context, buckets map[string][]byte) error
	Close() error
}
