package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DateLayout  = "2006-01-02"
	MonthLayout = "2006-01"
)

type Quality string

const (
	QualityGood    Quality = "Good"
	QualityAvg     Quality = "Avg"
	QualityBad     Quality = "Bad"
	QualityUnknown Quality = "Unknown"
)

// Qualities lists the tiers in report order.
var Qualities = []Quality{QualityGood, QualityAvg, QualityBad, QualityUnknown}

// ParseQuality maps a label onto the closed tier set. An empty label is Unknown;
// any other unrecognized label is an error so it cannot be miscounted.
func ParseQuality(s string) (Quality, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "good":
		return QualityGood, nil
	case "avg":
		return QualityAvg, nil
	case "bad":
		return QualityBad, nil
	case "unknown", "":
		return QualityUnknown, nil
	}
	return "", fmt.Errorf("%w: quality %q", ErrInvalidRecord, s)
}

type OpsStatus string

const (
	OpsPending   OpsStatus = "pending"
	OpsConfirmed OpsStatus = "confirmed"
	OpsPaid      OpsStatus = "paid"
	OpsRequested OpsStatus = "requested"
	OpsCancelled OpsStatus = "cancelled"
)

// ParseOpsStatus defaults an empty status to pending.
func ParseOpsStatus(s string) (OpsStatus, error) {
	switch v := OpsStatus(strings.ToLower(strings.TrimSpace(s))); v {
	case "":
		return OpsPending, nil
	case OpsPending, OpsConfirmed, OpsPaid, OpsRequested, OpsCancelled:
		return v, nil
	}
	return "", fmt.Errorf("%w: ops status %q", ErrInvalidRecord, s)
}

// LeadRecord is one credit-card application. Dates are canonical YYYY-MM-DD strings
// so that lexical comparison is chronological.
type LeadRecord struct {
	ApplicationID     string          `json:"applicationId"`
	ApplicantName     string          `json:"applicantName,omitempty"`
	Bank              string          `json:"bank"`
	CardName          string          `json:"cardName"`
	ApplicationMonth  string          `json:"applicationMonth"`
	ApplicationDate   string          `json:"applicationDate,omitempty"`
	DecisionDate      string          `json:"decisionDate,omitempty"`
	StageCode         string          `json:"stageCode"`
	Quality           Quality         `json:"applicationQuality"`
	TotalCommission   decimal.Decimal `json:"totalCommission"`
	OpsStatus         OpsStatus       `json:"opsStatus"`
	RejectionCategory string          `json:"rejectionCategory,omitempty"`
	RejectionReason   string          `json:"rejectionReason,omitempty"`
}

func (l LeadRecord) Bucket() Bucket { return BucketOf(l.StageCode) }

// LeadInput is an unvalidated lead row as received from a feed, an event or a database.
type LeadInput struct {
	ApplicationID     string          `json:"applicationId"`
	ApplicantName     string          `json:"applicantName"`
	Bank              string          `json:"bank"`
	CardName          string          `json:"cardName"`
	ApplicationMonth  string          `json:"applicationMonth"`
	ApplicationDate   string          `json:"applicationDate"`
	DecisionDate      string          `json:"decisionDate"`
	StageCode         string          `json:"stageCode"`
	Quality           string          `json:"applicationQuality"`
	TotalCommission   decimal.Decimal `json:"totalCommission"`
	OpsStatus         string          `json:"opsStatus"`
	RejectionCategory string          `json:"rejectionCategory"`
	RejectionReason   string          `json:"rejectionReason"`
}

// NewLeadRecord validates and normalizes in into a LeadRecord.
// Rejection details are kept only for codes in the Rejected bucket.
func NewLeadRecord(in LeadInput) (LeadRecord, error) {
	id := strings.TrimSpace(in.ApplicationID)
	if id == "" {
		return LeadRecord{}, fmt.Errorf("%w: empty application id", ErrInvalidRecord)
	}

	appDate, err := NormalizeDate(in.ApplicationDate)
	if err != nil {
		return LeadRecord{}, fmt.Errorf("application %s: %w", id, err)
	}
	decDate, err := NormalizeDate(in.DecisionDate)
	if err != nil {
		return LeadRecord{}, fmt.Errorf("application %s: %w", id, err)
	}

	month := strings.TrimSpace(in.ApplicationMonth)
	switch {
	case month == "" && appDate == "":
		return LeadRecord{}, fmt.Errorf("%w: application %s has no month or date", ErrInvalidRecord, id)
	case month == "":
		month = appDate[:7]
	default:
		if !ValidMonth(month) {
			return LeadRecord{}, fmt.Errorf("%w: application %s month %q", ErrInvalidRecord, id, month)
		}
		if appDate != "" && appDate[:7] != month {
			return LeadRecord{}, fmt.Errorf("%w: application %s month %s does not match date %s", ErrInvalidRecord, id, month, appDate)
		}
	}

	quality, err := ParseQuality(in.Quality)
	if err != nil {
		return LeadRecord{}, fmt.Errorf("application %s: %w", id, err)
	}
	ops, err := ParseOpsStatus(in.OpsStatus)
	if err != nil {
		return LeadRecord{}, fmt.Errorf("application %s: %w", id, err)
	}
	if in.TotalCommission.IsNegative() {
		return LeadRecord{}, fmt.Errorf("%w: application %s negative commission %s", ErrInvalidRecord, id, in.TotalCommission)
	}

	rec := LeadRecord{
		ApplicationID:    id,
		ApplicantName:    strings.TrimSpace(in.ApplicantName),
		Bank:             strings.TrimSpace(in.Bank),
		CardName:         strings.TrimSpace(in.CardName),
		ApplicationMonth: month,
		ApplicationDate:  appDate,
		DecisionDate:     decDate,
		StageCode:        strings.ToLower(strings.TrimSpace(in.StageCode)),
		Quality:          quality,
		TotalCommission:  in.TotalCommission,
		OpsStatus:        ops,
	}
	if rec.Bucket() == BucketRejected {
		rec.RejectionCategory = strings.TrimSpace(in.RejectionCategory)
		rec.RejectionReason = strings.TrimSpace(in.RejectionReason)
	}
	return rec, nil
}

// ClickEvent is one outbound affiliate click. Only clean clicks are counted.
type ClickEvent struct {
	ClickID   string `json:"clickId"`
	ClickedOn string `json:"clickedOn"`
	Clean     bool   `json:"clean"`
}

var dateLayouts = []string{
	DateLayout,
	"02-01-2006",
	"2006/01/02",
	"02/01/2006",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// NormalizeDate converts the date orderings seen in feeds to YYYY-MM-DD.
// An empty input yields an empty result.
func NormalizeDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(DateLayout), nil
		}
	}
	return "", fmt.Errorf("%w: date %q", ErrInvalidRecord, s)
}

func ValidMonth(s string) bool {
	if len(s) != len(MonthLayout) {
		return false
	}
	_, err := time.Parse(MonthLayout, s)
	return err == nil
}

func ValidDate(s string) bool {
	if len(s) != len(DateLayout) {
		return false
	}
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// DaysBetween returns to-from in whole days for canonical dates.
func DaysBetween(from, to string) (int, error) {
	a, err := time.Parse(DateLayout, from)
	if err != nil {
		return 0, err
	}
	b, err := time.Parse(DateLayout, to)
	if err != nil {
		return 0, err
	}
	return int(b.Sub(a).Hours() / 24), nil
}
