package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// NoneValue is the placeholder the analysts use for missing string fields.
const NoneValue = "None"

// StringList is a list field that also accepts a single value in JSON.
// Models sometimes answer "None" where a list is expected, or list numbers
// and small objects instead of strings.
type StringList []string

// UnmarshalJSON accepts an array or a single value. Numbers and booleans
// are kept as their JSON text; objects become their "name" field when they
// have one, otherwise compact JSON. Null elements are dropped.
func (l *StringList) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}

	switch t := v.(type) {
	case nil:
		*l = nil
	case []any:
		items := make(StringList, 0, len(t))
		for _, item := range t {
			if s, ok := listItem(item); ok {
				items = append(items, s)
			}
		}
		*l = items
	case string:
		if t == "" || t == NoneValue {
			*l = StringList{}
			return nil
		}
		*l = StringList{t}
	default:
		s, _ := listItem(t)
		*l = StringList{s}
	}
	return nil
}

func listItem(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	case map[string]any:
		if name, ok := t["name"].(string); ok && name != "" {
			return name, true
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v), true
	}
	return string(raw), true
}

// KeyDates holds the dates section of a gazette record (YYYY-MM-DD or "None").
type KeyDates struct {
	EnforcementDate    string `bson:"enforcement_date" json:"enforcement_date"`
	ApplicableDate     string `bson:"applicable_date" json:"applicable_date"`
	CommentsDueDate    string `bson:"comments_due_date" json:"comments_due_date"`
	GuidanceIssuedDate string `bson:"guidance_issued_date" json:"guidance_issued_date"`
	ExpiryDate         string `bson:"expiry_date" json:"expiry_date"`
	WithdrawalDate     string `bson:"withdrawal_date" json:"withdrawal_date"`
	ExtensionDate      string `bson:"extension_date" json:"extension_date"`
	PublicationDate    string `bson:"publication_date" json:"publication_date"`
	EffectiveDate      string `bson:"effective_date" json:"effective_date"`
	ExceptionFromDate  string `bson:"exception_from_date" json:"exception_from_date"`
	ExceptionToDate    string `bson:"exception_to_date" json:"exception_to_date"`
	DueDate            string `bson:"due_date" json:"due_date"`
	ComplianceDueDate  string `bson:"compliance_due_date" json:"compliance_due_date"`
	MeetingDate        string `bson:"meeting_date" json:"meeting_date"`
	HearingDate        string `bson:"hearing_date" json:"hearing_date"`
}

// ImpactScores rates each section on the Very_Low..Critical scale.
type ImpactScores struct {
	OutcomeDecisions      string `bson:"outcome_decisions_impact_score" json:"outcome_decisions_impact_score"`
	AffectedParties       string `bson:"affected_parties_impact_score" json:"affected_parties_impact_score"`
	ActsRegsReferred      string `bson:"acts_regs_referred_impact_score" json:"acts_regs_referred_impact_score"`
	Obligations           string `bson:"obligations_impact_score" json:"obligations_impact_score"`
	ComplianceTerms       string `bson:"compliance_terms_impact_score" json:"compliance_terms_impact_score"`
	ChangesInActs         string `bson:"changes_in_acts_impact_score" json:"changes_in_acts_impact_score"`
	KeyPointsOfInterest   string `bson:"key_points_of_interest_impact_score" json:"key_points_of_interest_impact_score"`
	IndustriesAffected    string `bson:"industries_affected_impact_score" json:"industries_affected_impact_score"`
	RegulatorsImpacted    string `bson:"regulators_impacted_impact_score" json:"regulators_impacted_impact_score"`
	FinesOrPenalties      string `bson:"fines_or_penalties_impact_score" json:"fines_or_penalties_impact_score"`
	GovernmentBodies      string `bson:"government_bodies_impacted_impact_score" json:"government_bodies_impacted_impact_score"`
	JurisdictionsImpacted string `bson:"jurisdictions_impacted_impact_score" json:"jurisdictions_impacted_impact_score"`
	RegionsAffected       string `bson:"regions_affected_impact_score" json:"regions_affected_impact_score"`
	Overall               string `bson:"overall_impact_score" json:"overall_impact_score"`
}

// TokenUsage records AI token consumption for a stage.
type TokenUsage struct {
	TotalTokens  int `bson:"total_tokens" json:"total_tokens"`
	OutputTokens int `bson:"output_tokens" json:"output_tokens"`
	InputTokens  int `bson:"input_tokens" json:"input_tokens"`
}

// Add returns the sum of u and other.
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		TotalTokens:  u.TotalTokens + other.TotalTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
		InputTokens:  u.InputTokens + other.InputTokens,
	}
}

// DraftRecord is the structured interpretation of a gazette document.
// The junior analyst produces it; the senior analyst may return a corrected copy.
type DraftRecord struct {
	NoticeID       string `bson:"notice_id" json:"_id"`
	UniqueID       string `bson:"unique_id" json:"unique_id"`
	DocumentType   string `bson:"document_type" json:"document_type"`
	Jurisdiction   string `bson:"jurisdiction" json:"jurisdiction"`
	ISOCountryCode string `bson:"iso_country_code" json:"iso_country_code"`
	State          string `bson:"state" json:"state"`
	FilePath       string `bson:"file_path" json:"file_path"`
	DateAdded      string `bson:"date_added" json:"date_added"`
	Language       string `bson:"language" json:"language"`
	Agency         string `bson:"agency" json:"agency"`

	NoticeName     string `bson:"notice_name" json:"notice_name"`
	NoticeNumber   string `bson:"notice_number" json:"notice_number"`
	NoticeDate     string `bson:"notice_date" json:"notice_date"`
	NoticeType     string `bson:"notice_type" json:"notice_type"`
	DocumentName   string `bson:"document_name" json:"document_name"`
	DocumentNumber string `bson:"document_number" json:"document_number"`
	DocumentDate   string `bson:"document_date" json:"document_date"`
	DepartmentName string `bson:"department_name" json:"department_name"`

	Themes                StringList `bson:"phi_themes" json:"phi_themes"`
	ActorsInPlay          StringList `bson:"actors_in_play" json:"actors_in_play"`
	OutcomeDecisions      StringList `bson:"outcome_decisions" json:"outcome_decisions"`
	OutcomeReason         StringList `bson:"outcome_reason" json:"outcome_reason"`
	AffectedParties       StringList `bson:"affected_parties" json:"affected_parties"`
	ActsRegsReferred      StringList `bson:"acts_regs_referred" json:"acts_regs_referred"`
	Obligations           StringList `bson:"obligations" json:"obligations"`
	ComplianceTerms       StringList `bson:"compliance_terms" json:"compliance_terms"`
	ChangesInActs         StringList `bson:"changes_in_acts" json:"changes_in_acts"`
	KeyPointsOfInterest   StringList `bson:"key_points_of_interest" json:"key_points_of_interest"`
	IndustriesAffected    StringList `bson:"industries_affected" json:"industries_affected"`
	RegulatorsImpacted    StringList `bson:"regulators_impacted" json:"regulators_impacted"`
	FinesOrPenalties      StringList `bson:"fines_or_penalties" json:"fines_or_penalties"`
	RelevantStudyType     string     `bson:"relevant_study_type" json:"relevant_study_type"`
	Status                string     `bson:"status" json:"status"`
	ActionRequired        string     `bson:"action_required" json:"action_required"`
	StakeholdersImpacted  StringList `bson:"internal_owner_stakeholder_impacted" json:"internal_owner_stakeholder_impacted"`
	GovernmentBodies      StringList `bson:"government_bodies_impacted" json:"government_bodies_impacted"`
	JurisdictionsImpacted StringList `bson:"jurisdictions_impacted" json:"jurisdictions_impacted"`
	RegionsAffected       StringList `bson:"regions_affected" json:"regions_affected"`
	Description           string     `bson:"description" json:"description"`

	Dates            KeyDates       `bson:"dates" json:"dates"`
	ImpactScore      ImpactScores   `bson:"impact_score" json:"impact_score"`
	ThemeCategorized map[string]any `bson:"phi_theme_categorized,omitempty" json:"phi_theme_categorized,omitempty"`
	BlobName         string         `bson:"blob_name" json:"blob_name"`
	Report           string         `bson:"report" json:"report"`
	TokenUsage       TokenUsage     `bson:"total_token_usage" json:"total_token_usage"`
}

// ValidationReport is the senior analyst's verdict on a draft.
type ValidationReport struct {
	AllCorrect       bool            `bson:"all_correct" json:"all_correct"`
	FieldValidations map[string]bool `bson:"field_validations,omitempty" json:"field_validations,omitempty"`
	IssuesFound      []string        `bson:"issues_found,omitempty" json:"issues_found,omitempty"`
}

// ValidatedRecord is the final, senior-reviewed output for one document.
type ValidatedRecord struct {
	SourceURL   string           `bson:"source_url" json:"source_url"`
	EntryTitle  string           `bson:"entry_title" json:"entry_title"`
	Published   time.Time        `bson:"published,omitempty" json:"published,omitempty"`
	Record      DraftRecord      `bson:"record" json:"record"`
	Validation  ValidationReport `bson:"validation" json:"validation"`
	Corrected   bool             `bson:"corrected" json:"corrected"`
	Extraction  Provenance       `bson:"extraction" json:"extraction"`
	ValidatedAt time.Time        `bson:"validated_at" json:"validated_at"`
}
