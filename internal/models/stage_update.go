package models

import (
	"fmt"
	"sort"
	"strings"
)

// StageUpdate moves an existing lead forward in the funnel.
type StageUpdate struct {
	ApplicationID     string `json:"applicationId"`
	StageCode         string `json:"stageCode"`
	DecisionDate      string `json:"decisionDate"`
	OpsStatus         string `json:"opsStatus"`
	RejectionCategory string `json:"rejectionCategory"`
	RejectionReason   string `json:"rejectionReason"`
}

// Apply returns rec with u applied. applied is false when u would move the
// record backwards, out of a terminal stage or out of an unknown stage; rec is
// then returned unchanged. A decision date before the application date is
// ErrInvalidRecord.
func (u StageUpdate) Apply(rec LeadRecord) (out LeadRecord, applied bool, err error) {
	code := strings.ToLower(strings.TrimSpace(u.StageCode))
	decision, err := NormalizeDate(u.DecisionDate)
	if err != nil {
		return rec, false, fmt.Errorf("application %s: %w", rec.ApplicationID, err)
	}
	if decision != "" && rec.ApplicationDate != "" && decision < rec.ApplicationDate {
		return rec, false, fmt.Errorf("%w: application %s decision date %s precedes application date %s",
			ErrInvalidRecord, rec.ApplicationID, decision, rec.ApplicationDate)
	}

	out = rec
	if code != "" && code != rec.StageCode {
		if !CanAdvance(rec.StageCode, code) {
			return rec, false, nil
		}
		out.StageCode = code
	}
	if decision != "" {
		out.DecisionDate = decision
	}
	if strings.TrimSpace(u.OpsStatus) != "" {
		ops, err := ParseOpsStatus(u.OpsStatus)
		if err != nil {
			return rec, false, fmt.Errorf("application %s: %w", rec.ApplicationID, err)
		}
		out.OpsStatus = ops
	}
	if out.Bucket() == BucketRejected {
		if c := strings.TrimSpace(u.RejectionCategory); c != "" {
			out.RejectionCategory = c
		}
		if r := strings.TrimSpace(u.RejectionReason); r != "" {
			out.RejectionReason = r
		}
	} else {
		out.RejectionCategory, out.RejectionReason = "", ""
	}
	return out, out != rec, nil
}

// SortForListing orders records newest application first, ties broken by id so
// that paging over a fixed set is stable.
func SortForListing(recs []LeadRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].ApplicationDate != recs[j].ApplicationDate {
			return recs[i].ApplicationDate > recs[j].ApplicationDate
		}
		return recs[i].ApplicationID < recs[j].ApplicationID
	})
}
