package models

// StageCounts holds one count per funnel bucket. Verification is Underwriting + Curing.
type StageCounts struct {
	Incomplete        int `json:"incomplete"`
	KYC               int `json:"kyc"`
	Verification      int `json:"verification"`
	WaitingApproval   int `json:"waitingApproval"`
	Approved          int `json:"approved"`
	Rejected          int `json:"rejected"`
	Expired           int `json:"expired"`
	NonCommissionable int `json:"nonCommissionable"`
	Unknown           int `json:"unknown"`
}

func (s *StageCounts) Add(b Bucket) {
	switch b {
	case BucketIncomplete:
		s.Incomplete++
	case BucketKYC:
		s.KYC++
	case BucketUnderwriting, BucketCuring:
		s.Verification++
	case BucketWaitingApproval:
		s.WaitingApproval++
	case BucketApproved:
		s.Approved++
	case BucketRejected:
		s.Rejected++
	case BucketExpired:
		s.Expired++
	case BucketNonCommissionable:
		s.NonCommissionable++
	default:
		s.Unknown++
	}
}

func (s StageCounts) Total() int {
	return s.Incomplete + s.KYC + s.Verification + s.WaitingApproval + s.Approved +
		s.Rejected + s.Expired + s.NonCommissionable + s.Unknown
}

type QualityRow struct {
	Label       Quality `json:"label"`
	Leads       int     `json:"leads"`
	Cardouts    int     `json:"cardouts"`
	CardoutRate float64 `json:"cardoutRate"`
	Earnings    float64 `json:"earnings"`
	Rejections  int     `json:"rejections"`
}

type Funnel struct {
	Clicks  int64        `json:"clicks"`
	Leads   int          `json:"leads"`
	Stages  StageCounts  `json:"stages"`
	Quality []QualityRow `json:"quality"`
}

// BankRank names a bank together with the rate it was ranked by.
// Unattributed marks the row for leads that arrived without a bank; its Bank
// is only a display label.
type BankRank struct {
	Bank         string  `json:"bank"`
	Unattributed bool    `json:"unattributed,omitempty"`
	Rate         float64 `json:"rate"`
}

type ApprovalKPIs struct {
	TotalApprovals    int       `json:"totalApprovals"`
	ApprovalRate      float64   `json:"approvalRate"`
	TopBank           *BankRank `json:"topBank"`
	AvgProcessingDays *float64  `json:"avgProcessingDays"`
}

type BankApproval struct {
	Bank         string   `json:"bank"`
	Unattributed bool     `json:"unattributed,omitempty"`
	Total        int      `json:"total"`
	Approved     int      `json:"approved"`
	Rate         float64  `json:"rate"`
	AvgDays      *float64 `json:"avgDays"`
}

type ApprovalReport struct {
	KPIs  ApprovalKPIs   `json:"kpis"`
	Banks []BankApproval `json:"banks"`
}

type RejectionKPIs struct {
	TotalRejections int       `json:"totalRejections"`
	TopReason       *string   `json:"topReason"`
	RejectionRate   float64   `json:"rejectionRate"`
	WorstBank       *BankRank `json:"worstBank"`
}

type BankRejection struct {
	Bank         string  `json:"bank"`
	Unattributed bool    `json:"unattributed,omitempty"`
	Total        int     `json:"total"`
	Rejected     int     `json:"rejected"`
	Rate         float64 `json:"rate"`
}

type RejectionReason struct {
	Category   string  `json:"category"`
	Reason     string  `json:"reason"`
	Count      int     `json:"count"`
	PctOfTotal float64 `json:"pctOfTotal"`
}

type RejectionReport struct {
	KPIs    RejectionKPIs     `json:"kpis"`
	Banks   []BankRejection   `json:"banks"`
	Reasons []RejectionReason `json:"reasons"`
}

type Commission struct {
	Total     float64 `json:"total"`
	Pending   float64 `json:"pending"`
	Confirmed float64 `json:"confirmed"`
	Paid      float64 `json:"paid"`
	Potential float64 `json:"potential"`
}

type LeadSummary struct {
	ApplicationID    string    `json:"applicationId"`
	ApplicantName    string    `json:"applicantName"`
	ApplicationDate  string    `json:"applicationDate"`
	Bank             string    `json:"bank"`
	CardName         string    `json:"cardName"`
	StageCode        string    `json:"stageCode"`
	StageBucket      Bucket    `json:"stageBucket"`
	Quality          Quality   `json:"quality"`
	Commission       float64   `json:"commission"`
	CommissionStatus OpsStatus `json:"commissionStatus"`
}

type LeadPage struct {
	Rows  []LeadSummary `json:"rows"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

type KPIs struct {
	TotalLeads          int     `json:"totalLeads"`
	Approved            int     `json:"approved"`
	ApprovalRate        float64 `json:"approvalRate"`
	Incomplete          int     `json:"incomplete"`
	TotalCommission     float64 `json:"totalCommission"`
	PotentialCommission float64 `json:"potentialCommission"`
}

type TimelinePoint struct {
	Label        string `json:"label"`
	Clicks       int64  `json:"clicks"`
	Leads        int    `json:"leads"`
	Incomplete   int    `json:"incomplete"`
	KYC          int    `json:"kyc"`
	Verification int    `json:"verification"`
	Approved     int    `json:"approved"`
	Rejected     int    `json:"rejected"`
	Expired      int    `json:"expired"`
}
