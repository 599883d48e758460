package domain

import (
	"encoding/json"
	"fmt"
)

func (o *Overrides) bucketTargets() map[string]any {
	return map[string]any{
		BucketComments:          &o.Comments,
		BucketLabStatus:         &o.LabStatus,
		BucketLabReturned:       &o.LabReturned,
		BucketWarehouseReturned: &o.WarehouseReturned,
		BucketAdminReturnNotes:  &o.AdminReturnNotes,
		BucketIssueReasons:      &o.IssueReasons,
		BucketAdminStored:       &o.AdminStored,
		BucketDeleted:           &o.Deleted,
		BucketCreatedMarkers:    &o.CreatedMarkers,
		BucketSortPrefs:         &o.SortPrefs,
	}
}

// EncodeBuckets serializes every override map into its persistence bucket.
func (o Overrides) EncodeBuckets() (map[string][]byte, error) {
	out := make(map[string][]byte, len(Buckets()))
	for bucket, target := range o.bucketTargets() {
		data, err := json.Marshal(target)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", bucket, err)
		}
		out[bucket] = data
	}
	return out, nil
}

// DecodeOverrides rebuilds overrides from persisted buckets. Unknown buckets are
// ignored so other owners (read state) can share the same store.
func DecodeOverrides(buckets map[string][]byte) (Overrides, error) {
	o := NewOverrides()
	for bucket, target := range o.bucketTargets() {
		raw, ok := buckets[bucket]
		if !ok || len(raw) == 0 {
			continue
		}
		if err := json.Unmarshal(raw, target); err != nil {
			return Overrides{}, fmt.Errorf("decode %s: %w", bucket, err)
		}
	}
	// a persisted JSON null leaves a nil map behind
	return o.Clone(), nil
}
