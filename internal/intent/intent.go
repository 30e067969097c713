// Package intent classifies free-text requests into a fixed set of labels
// and suggests the operation that would serve them. Rules are tried in
// order and the first match wins.
package intent

import (
	"regexp"
	"strings"

	"psurops/internal/record"
)

// Label names a classified intent.
type Label string

const (
	OpenReport         Label = "OPEN_REPORT"
	OpenByProduct      Label = "OPEN_BY_PRODUCT"
	OpenByText         Label = "OPEN_BY_TEXT"
	GetDueDate         Label = "GET_DUE_DATE"
	GetStatus          Label = "GET_STATUS"
	WhoOwns            Label = "WHO_OWNS"
	GetPeriod          Label = "GET_PERIOD"
	GetCanadaFlags     Label = "GET_CANADA_FLAGS"
	GetSSCPFlag        Label = "GET_SSCP_FLAG"
	ListOverdue        Label = "LIST_OVERDUE"
	ListDueWindow      Label = "LIST_DUE_WINDOW"
	ListDueClass       Label = "LIST_DUE_CLASS"
	ListDueWriter      Label = "LIST_DUE_WRITER"
	ListByWriter       Label = "LIST_BY_WRITER"
	ListByClassType    Label = "LIST_BY_CLASS_TYPE"
	ListByStatus       Label = "LIST_BY_STATUS"
	ListWithFilters    Label = "LIST_WITH_FILTERS"
	ListAll            Label = "LIST_ALL"
	SearchFree         Label = "SEARCH_FREE"
	SearchCatalog      Label = "SEARCH_CATALOG"
	ValidateRow        Label = "VALIDATE_ROW"
	ComputeExpectedDue Label = "COMPUTE_EXPECTED_DUE"
	CompareDueDates    Label = "COMPARE_DUE_DATES"
	ExplainCompliance  Label = "EXPLAIN_COMPLIANCE"
	ListMissingFields  Label = "LIST_MISSING_FIELDS"
	DataHealth         Label = "DATA_HEALTH"
	UpdateStatus       Label = "UPDATE_STATUS"
	UpdateDueDate      Label = "UPDATE_DUE_DATE"
	AssignOwner        Label = "ASSIGN_OWNER"
	UpdateFieldGeneric Label = "UPDATE_FIELD_GENERIC"
	BulkUpdateStatus   Label = "BULK_UPDATE_STATUS"
	BulkReassign       Label = "BULK_REASSIGN"
	BulkSetDueWindow   Label = "BULK_SET_DUE_WINDOW"
	AddComment         Label = "ADD_COMMENT"
	LinkReferences     Label = "LINK_REFERENCES"
	OpenLinks          Label = "OPEN_LINKS"
	AddItem            Label = "ADD_ITEM"
	CloneItem          Label = "CLONE_ITEM"
	ExportCalendar     Label = "EXPORT_CALENDAR"
	ExportCSV          Label = "EXPORT_CSV"
	ListInDateRange    Label = "LIST_IN_DATE_RANGE"
	ListThisNextPeriod Label = "LIST_THIS_NEXT_PERIOD"
	Help               Label = "HELP"
	SmallTalk          Label = "SMALL_TALK"
	Unknown            Label = "UNKNOWN"
)

// Rule pairs a label with its matcher. Operation is the suggested
// dispatcher operation, empty when none applies.
type Rule struct {
	Label     Label
	Operation string
	// Field is the field_name argument for get_field_value rules.
	Field     string
	Regex     *regexp.Regexp
}

// Result is the outcome of classifying one request.
type Result struct {
	Label        Label  `json:"intent"`
	Operation    string `json:"operation,omitempty"`
	Identifier   string `json:"td_number,omitempty"`
	ReportNumber string `json:"psur_number,omitempty"`
	Field        string `json:"field,omitempty"`
}

// Args returns the identifier arguments a suggested operation can start from.
func (r Result) Args() map[string]interface{} {
	args := map[string]interface{}{}
	if r.Identifier != "" {
		args["row_id"] = r.Identifier
	}
	if r.ReportNumber != "" {
		args["psur_id"] = r.ReportNumber
	}
	if r.Field != "" {
		args["field_name"] = r.Field
	}
	return args
}

// Router evaluates an ordered rule list.
type Router struct {
	rules []Rule
}

// NewRouter returns a router over rules; nil means Rules.
func NewRouter(rules []Rule) *Router {
	if rules == nil {
		rules = Rules
	}
	return &Router{rules: rules}
}

// Classify returns the first matching rule's label. Blank text and text no
// rule matches are Unknown.
func (rt *Router) Classify(text string) Result {
	text = strings.TrimSpace(text)
	res := Result{Label: Unknown}
	res.Identifier, res.ReportNumber = record.Mentions(text)
	if text == "" {
		return res
	}
	for _, r := range rt.rules {
		if r.Regex.MatchString(text) {
			res.Label = r.Label
			res.Operation = r.Operation
			res.Field = r.Field
			return res
		}
	}
	return res
}

var defaultRouter = NewRouter(nil)

// Classify uses the built-in rules.
func Classify(text string) Result {
	return defaultRouter.Classify(text)
}
