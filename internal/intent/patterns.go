package intent

import "regexp"

// Reusable fragments.
const (
	idFrag       = `(?:td\W*\d{1,4}|psur\W*\d{1,4})`
	timeWindow   = `(?:next|within)\s+\d+\s+(?:day|days|week|weeks|month|months|quarter|quarters)`
	dueWords     = `(?:due|deadline|deliverable)`
	overdueWords = `(?:overdue|late|past[-\s]*due|behind|missed)`
	statusWords  = `(?:status|state|progress|routing|in\s+mc|master\s*control|mastercontrol|mc)`
	ownerWords   = `(?:who\s*owns|owner|writer|assigned\s*to|assignee|responsible|point\s*person)`
	canadaWords  = `(?:canada(?:\s*summary)?\s*report|csr\b|canada\s*summary|canadian)`
	sscpWords    = `(?:sscp|summary\s*of\s*safety\s*and\s*clinical\s*performance)`
	quarterWords = `(?:q[1-4]|this\s+quarter|next\s+quarter|last\s+quarter)`
	byEnd        = `(?:by\s+(?:end\s+of\s+)?(?:week|month|quarter|year))`
	datePhrase   = `(?:\d{4}-\d{1,2}-\d{1,2}|\b(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\b\s*\d{1,2}(?:,\s*\d{2,4})?)`

	openVerb = `\b(?:open|show|display|view|pull(?:\s*up)?)\b`
	anyWhen  = `(?:` + timeWindow + `|` + quarterWords + `|` + byEnd + `)`
)

func rule(label Label, operation, expr string) Rule {
	return Rule{Label: label, Operation: operation, Regex: regexp.MustCompile(`(?is)` + expr)}
}

// fieldRule answers with one field of one row.
func fieldRule(label Label, field, expr string) Rule {
	r := rule(label, "get_field_value", expr)
	r.Field = field
	return r
}

// Rules are evaluated in order, most specific first. The last rule matches
// any non-empty text.
var Rules = []Rule{
	// Single-row lookup
	rule(OpenReport, "get_report", `\b(?:open|show|display|view|pull(?:\s*up)?|bring\s*up|look\s*up)\b.*\b`+idFrag+`\b`),
	rule(OpenByProduct, "list_by_product", openVerb+`.*\b(product|catalog|part|sku|name)\b`),
	rule(OpenByText, "find_reports", openVerb+`.+`),

	// Questions about one row
	rule(GetDueDate, "get_report", `\b(?:when|what)\b.*\b`+idFrag+`\b.*\b`+dueWords+`\b`),
	fieldRule(GetStatus, "status", `\b(?:what'?s|show|check)\b.*\b`+statusWords+`\b.*\b`+idFrag+`\b|\b`+idFrag+`\b.*\b`+statusWords+`\b`),
	fieldRule(WhoOwns, "writer", `\b`+ownerWords+`\b.*\b`+idFrag+`\b|\b`+idFrag+`\b.*\b`+ownerWords+`\b`),
	rule(GetPeriod, "get_report", `\b(?:start|end)\s*(?:period|range|window)\b.*\b`+idFrag+`\b`),
	fieldRule(GetCanadaFlags, "canada_status", `\b(?:`+canadaWords+`)\b.*\b(status|needed|need)\b.*\b`+idFrag+`\b|\b`+idFrag+`\b.*\b(?:`+canadaWords+`)\b`),
	rule(GetSSCPFlag, "get_report", `\b(?:`+sscpWords+`)\b.*\b(needed|need|required|status)\b.*\b`+idFrag+`\b|\b`+idFrag+`\b.*\b(?:`+sscpWords+`)\b`),

	// Lists and filters
	rule(ListOverdue, "list_overdue_items", `\b(?:`+overdueWords+`)\b(?:.*\b(class|writer|type|status)\b.*)?`),
	rule(ListDueWindow, "list_due_items", `\b(?:what'?s|show|list)\b.*\b`+dueWords+`\b.*\b`+anyWhen+`\b`),
	rule(ListDueClass, "list_due_items", `\b(?:what'?s|show|list)\b.*\b`+dueWords+`\b.*\bclass\b`),
	rule(ListDueWriter, "list_due_items", `\b(?:what'?s|show|list)\b.*\b`+dueWords+`\b.*\b(writer|assigned\s*to|owned\s*by)\b`),
	rule(ListByWriter, "list_by_writer", `\b(?:show|list)\b.*\b(?:writer|assigned\s*to|owned\s*by)\b.+`),
	rule(ListByClassType, "list_by_class_type", `\b(?:show|list)\b.*\bclass\b|\b(?:show|list)\b.*\btype\b`),
	rule(ListByStatus, "list_by_status", `\b(?:show|list)\b.*\bstatus\b.*\b(?:assigned|not\s*started|released|in\s*progress|routing|draft|stakeholder)\b`),
	rule(ListWithFilters, "list_reports", `\b(?:show|list)\b.*\b(?:filter|where|with)\b.+`),
	rule(ListAll, "list_reports", `\b(?:show|list|display)\b\s+(?:all|everything|full\s+schedule|entire\s+schedule)\b`),

	// Search
	rule(SearchFree, "find_reports", `\b(?:find|search|locate|look\s*for|show\s+.*\bwith\b|containing|about)\b.+`),
	rule(SearchCatalog, "find_reports", `\b(?:find|search|show)\b.*\b(?:catalog|part|sku)\b.*`),

	// Compliance
	rule(ValidateRow, "validate_row", `\b(?:is|check|validate|ensure)\b.*\b`+idFrag+`\b.*\b(compliant|compliance|valid|ok)\b`),
	rule(ComputeExpectedDue, "compute_expected_due_date", `\b(?:compute|calculate|derive|recompute)\b.*\bexpected\b.*\b`+dueWords+`\b.*\b`+idFrag+`\b|\b`+idFrag+`\b.*\bexpected\b.*\b`+dueWords+`\b`),
	rule(CompareDueDates, "compare_due_dates", `\b(compare|diff|mismatch|drift|discrepancy)\b.*\b`+dueWords+`\b.*\b`+idFrag+`\b`),
	rule(ExplainCompliance, "", `\b(explain|what|how)\b.*\b(cadence|frequency|class|ii[ab]|iii|i)\b.*\b(impact|mean|affect|difference)\b`),

	// Data quality
	rule(ListMissingFields, "list_missing_fields", `\b(missing|blank|awaiting\s*data|tbd|unknown)\b.*\b(field|due\s*date|writer|email|class|frequency|canada|status)\b`),
	rule(DataHealth, "get_stats", `\b(data|schedule)\s*(health|quality|qa|coverage)\b`),

	// Single-row updates
	rule(UpdateStatus, "update_status", `\b(?:mark|set|change|update)\b.*\bstatus\b.*\b`+idFrag+`\b|\b`+idFrag+`\b.*\b(?:mark|set|change|update)\b.*\bstatus\b`),
	rule(UpdateDueDate, "update_periods", `\b(?:set|change|update|move|push|pull\s*in)\b.*\b`+dueWords+`\b.*\b`+idFrag+`\b.*\b(?:to|->|=)\s*`+datePhrase+`\b`),
	rule(AssignOwner, "update_writer", `\b(?:assign|reassign|set)\b.*\b(writer|owner|assignee)\b.*\b(?:to|=)\b.*|\b`+idFrag+`\b.*\b(?:assign|reassign|set)\b.*\b(writer|owner|assignee)\b`),
	rule(UpdateFieldGeneric, "update_field", `\b(?:set|change|update)\b.*\b(class|type|writer|email|frequency|canada|status|comments?)\b.*\b`+idFrag+`\b`),

	// Bulk updates
	rule(BulkUpdateStatus, "bulk_update_status", `\b(mark|set|change|update)\b.*\b(all|every|everything)\b.*\bstatus\b.+`),
	rule(BulkReassign, "bulk_update_writer", `\b(assign|reassign|set)\b.*\b(all|every|everything)\b.*\b(writer|owner|assignee)\b.+`),
	rule(BulkSetDueWindow, "bulk_update_field", `\b(set|move|update)\b.*\b`+dueWords+`\b.*\b(all|every|everything)\b.*`),

	// Comments and links
	rule(AddComment, "add_comment", `\b(?:note|comment|log|remark|add\s+note|add\s+comment)\b.*\b`+idFrag+`\b|^\b(?:note|comment)\b\s*:`),
	rule(LinkReferences, "link_references", `\b(link|attach|add)\b.*\b(master\s*control|mastercontrol|mc|sharepoint|url|link)\b.*\b`+idFrag+`\b`),
	fieldRule(OpenLinks, "notes", `\b(open|show)\b.*\b(master\s*control|mastercontrol|mc|sharepoint|link|url)\b.*\b`+idFrag+`\b`),

	// Creation
	rule(AddItem, "add_psur_item", `\b(add|create|new)\b.*\bpsur\b|\bcreate\b.*\breport\b`),
	rule(CloneItem, "clone_report", `\b(clone|copy|duplicate)\b.*\b`+idFrag+`\b`),

	// Exports
	rule(ExportCalendar, "export_calendar", `\b(export|download|make|create)\b.*\b(calendar|ics|outlook)\b.*`+anyWhen+`?`),
	rule(ExportCSV, "export_csv", `\b(export|download|make|create)\b.*\b(csv|excel|xlsx|sheet|spreadsheet)\b`),

	// Date ranges
	rule(ListInDateRange, "list_reports", `\b(show|list|find)\b.*\b(?:from|between)\b.*`+datePhrase+`.*\b(?:to|through|-)\b.*`+datePhrase),
	rule(ListThisNextPeriod, "list_due_items", `\b(show|list|what'?s)\b.*\b(this|next|current)\b\s*(week|month|quarter|year)\b`),

	rule(Help, "list_operations", `\b(help|what\s+can\s+you\s+do|commands?|capabilities|how\s+to)\b`),
	rule(SmallTalk, "", `^(hi|hello|hey|thanks|thank\s+you|good\s+(?:morning|evening|afternoon)).*$`),
	rule(Unknown, "", `.+`),
}
