package models

import "strings"

// Bucket is a named funnel position derived from a raw stage code.
type Bucket string

const (
	BucketIncomplete        Bucket = "Incomplete"
	BucketKYC               Bucket = "KYC"
	BucketUnderwriting      Bucket = "Underwriting"
	BucketCuring            Bucket = "Curing"
	BucketWaitingApproval   Bucket = "WaitingApproval"
	BucketApproved          Bucket = "Approved"
	BucketRejected          Bucket = "Rejected"
	BucketExpired           Bucket = "Expired"
	BucketNonCommissionable Bucket = "NonCommissionable"
	BucketUnknown           Bucket = "Unknown"
)

// Buckets lists every bucket in funnel order, Unknown last.
var Buckets = []Bucket{
	BucketIncomplete,
	BucketKYC,
	BucketUnderwriting,
	BucketCuring,
	BucketWaitingApproval,
	BucketApproved,
	BucketRejected,
	BucketExpired,
	BucketNonCommissionable,
	BucketUnknown,
}

var stageCodes = map[Bucket][]string{
	BucketIncomplete:        {"a", "b"},
	BucketKYC:               {"c", "d"},
	BucketUnderwriting:      {"e"},
	BucketCuring:            {"f"},
	BucketWaitingApproval:   {"w"},
	BucketApproved:          {"z"},
	BucketRejected:          {"r", "r2"},
	BucketExpired:           {"y"},
	BucketNonCommissionable: {"x"},
}

var codeBucket = func() map[string]Bucket {
	out := make(map[string]Bucket)
	for b, codes := range stageCodes {
		for _, c := range codes {
			out[c] = b
		}
	}
	return out
}()

// depth orders buckets along the application lifecycle; terminal buckets share the last level.
var depth = map[Bucket]int{
	BucketIncomplete:        0,
	BucketKYC:               1,
	BucketUnderwriting:      2,
	BucketCuring:            2,
	BucketWaitingApproval:   3,
	BucketApproved:          4,
	BucketRejected:          4,
	BucketExpired:           4,
	BucketNonCommissionable: 4,
}

// BucketOf maps a stage code to its bucket. Unrecognized codes map to BucketUnknown.
func BucketOf(code string) Bucket {
	if b, ok := codeBucket[strings.ToLower(strings.TrimSpace(code))]; ok {
		return b
	}
	return BucketUnknown
}

// CodesOf returns a copy of the stage codes that belong to b. Unknown has none.
func CodesOf(b Bucket) []string {
	codes := stageCodes[b]
	out := make([]string, len(codes))
	copy(out, codes)
	return out
}

// IsKnownCode reports whether code is part of the taxonomy.
func IsKnownCode(code string) bool {
	_, ok := codeBucket[strings.ToLower(strings.TrimSpace(code))]
	return ok
}

// KnownCodes returns every mapped stage code in funnel order.
func KnownCodes() []string {
	var out []string
	for _, b := range Buckets {
		out = append(out, stageCodes[b]...)
	}
	return out
}

// ParseBucket accepts bucket names in any case, with or without separators
// ("waiting_approval", "Waiting Approval", "WaitingApproval").
func ParseBucket(s string) (Bucket, bool) {
	key := strings.NewReplacer("_", "", "-", "", " ", "").Replace(strings.ToLower(strings.TrimSpace(s)))
	for _, b := range Buckets {
		if strings.ToLower(string(b)) == key {
			return b, true
		}
	}
	return "", false
}

// IsTerminal reports whether b is a final decision bucket.
func (b Bucket) IsTerminal() bool {
	d, ok := depth[b]
	return ok && d == depth[BucketApproved]
}

// CanAdvance reports whether a record sitting in stage code from may move to stage code to.
// Stages only move forward; terminal stages are final. An unknown stage has no
// depth, so only a feed re-ingest can replace it.
func CanAdvance(from, to string) bool {
	fb, tb := BucketOf(from), BucketOf(to)
	if tb == BucketUnknown || fb == BucketUnknown {
		return false
	}
	if fb.IsTerminal() {
		return false
	}
	return depth[tb] >= depth[fb]
}
