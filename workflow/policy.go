package workflow

import "github.com/rankhive/seofix_backend/models"

// executionPolicy captures what each execution mode does with admitted fixes.
type executionPolicy struct {
	// ChargeAtCreation reserves quota when the fix is created instead of at
	// apply time.
	ChargeAtCreation bool
	// AutoApply enqueues and drains application jobs right after creation.
	AutoApply bool
	// GroupIntoPlan collects the batch into one plan awaiting approval.
	GroupIntoPlan bool
}

var executionPolicies = map[models.ExecutionMode]executionPolicy{
	models.ExecutionModeAutomatic: {ChargeAtCreation: true, AutoApply: true},
	models.ExecutionModePlan:      {GroupIntoPlan: true},
	models.ExecutionModeApprove:   {},
}

func policyFor(mode models.ExecutionMode) executionPolicy {
	return executionPolicies[mode]
}

// fieldForIssueType maps auditor issue types to the canonical resource field
// a fix for that issue rewrites.
var fieldForIssueType = map[string]string{
	"missing_meta_title":         "metaTitle",
	"meta_title_too_long":        "metaTitle",
	"meta_title_too_short":       "metaTitle",
	"duplicate_meta_title":       "metaTitle",
	"missing_meta_description":   "metaDescription",
	"meta_description_too_long":  "metaDescription",
	"duplicate_meta_description": "metaDescription",
	"missing_alt_text":           "altText",
	"missing_h1":                 "h1",
	"duplicate_h1":               "h1",
}

func FieldForIssueType(issueType string) (string, bool) {
	f, ok := fieldForIssueType[issueType]
	return f, ok
}
