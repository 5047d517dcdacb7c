package postgres

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/AngelCh415/lead-funnel/internal/models"
)

type LeadModel struct {
	ApplicationID      string          `gorm:"primaryKey;column:application_id"`
	ApplicantName      string          `gorm:"column:applicant_name"`
	Bank               string          `gorm:"column:bank;index"`
	CardName           string          `gorm:"column:card_name"`
	ApplicationMonth   string          `gorm:"column:application_month;type:varchar(7);index"`
	ApplicationDate    string          `gorm:"column:application_date;type:varchar(10);index"`
	DecisionDate       string          `gorm:"column:decision_date;type:varchar(10)"`
	StageCode          string          `gorm:"column:stage_code"`
	ApplicationQuality string          `gorm:"column:application_quality"`
	TotalCommission    decimal.Decimal `gorm:"column:total_commission;type:numeric(14,2)"`
	OpsStatus          string          `gorm:"column:ops_status"`
	RejectionCategory  string          `gorm:"column:rejection_category"`
	RejectionReason    string          `gorm:"column:rejection_reason"`
	UpdatedAt          time.Time       `gorm:"column:updated_at"`
}

func (LeadModel) TableName() string { return "leads" }

type ClickModel struct {
	ClickID      string `gorm:"primaryKey;column:click_id"`
	ClickedOn    string `gorm:"column:clicked_on;type:varchar(10)"`
	ClickedMonth string `gorm:"column:clicked_month;type:varchar(7);index"`
	Clean        bool   `gorm:"column:clean"`
}

func (ClickModel) TableName() string { return "click_events" }

func toLeadModel(r models.LeadRecord) LeadModel {
	return LeadModel{
		ApplicationID:      r.ApplicationID,
		ApplicantName:      r.ApplicantName,
		Bank:               r.Bank,
		CardName:           r.CardName,
		ApplicationMonth:   r.ApplicationMonth,
		ApplicationDate:    r.ApplicationDate,
		DecisionDate:       r.DecisionDate,
		StageCode:          r.StageCode,
		ApplicationQuality: string(r.Quality),
		TotalCommission:    r.TotalCommission,
		OpsStatus:          string(r.OpsStatus),
		RejectionCategory:  r.RejectionCategory,
		RejectionReason:    r.RejectionReason,
	}
}

// toRecord revalidates a row, so a hand-edited table cannot smuggle malformed
// values into the engine.
func (m LeadModel) toRecord() (models.LeadRecord, error) {
	return models.NewLeadRecord(models.LeadInput{
		ApplicationID:     m.ApplicationID,
		ApplicantName:     m.ApplicantName,
		Bank:              m.Bank,
		CardName:          m.CardName,
		ApplicationMonth:  m.ApplicationMonth,
		ApplicationDate:   m.ApplicationDate,
		DecisionDate:      m.DecisionDate,
		StageCode:         m.StageCode,
		Quality:           m.ApplicationQuality,
		TotalCommission:   m.TotalCommission,
		OpsStatus:         m.OpsStatus,
		RejectionCategory: m.RejectionCategory,
		RejectionReason:   m.RejectionReason,
	})
}

func toClickModel(c models.ClickEvent) ClickModel {
	month := ""
	if len(c.ClickedOn) >= len(models.MonthLayout) {
		month = c.ClickedOn[:len(models.MonthLayout)]
	}
	return ClickModel{
		ClickID:      c.ClickID,
		ClickedOn:    c.ClickedOn,
		ClickedMonth: month,
		Clean:        c.Clean,
	}
}
