package review

import (
	"fmt"
	"strings"
)

const draftSystemPrompt = `You are a legal document analyst who reads government gazettes and policy documents and turns them into structured records.

Rules:
- Use only information stated in the document text. Do not infer or add facts.
- Use the string "None" for unknown string fields and [] for unknown lists. Never use null.
- Write every date as YYYY-MM-DD.
- Keep legal names, titles and reference numbers exactly as written.
- Answer with a single JSON object and nothing else: no prose, no markdown fences.`

const validateSystemPrompt = `You are a senior legal document analyst reviewing a junior analyst's structured record against the source document.
Answer with a single JSON object and nothing else.`

const documentTypes = "Guidance, Regulation, Standard, Policy, Ministerial Decision, Law, Circular, Checklist, Framework, General, Resolution, Directive, Notification, Order, Decree, Memorandum, Bulletin, Instruction, Draft Guidance, Consultation Paper, Act, Amendment, Procedure, Manual, Protocol, Specification, Form, Template, Report, White Paper, Green Paper, Charter, Treaty, Council Resolution, Declaration, Statement"

const impactScale = "Very_Low/Low/Moderate/High/Very_High/Critical"

var dateFields = []string{
	"enforcement_date", "applicable_date", "comments_due_date", "guidance_issued_date",
	"expiry_date", "withdrawal_date", "extension_date", "publication_date",
	"effective_date", "exception_from_date", "exception_to_date", "due_date",
	"compliance_due_date", "meeting_date", "hearing_date",
}

var impactFields = []string{
	"outcome_decisions", "affected_parties", "acts_regs_referred", "obligations",
	"compliance_terms", "changes_in_acts", "key_points_of_interest", "industries_affected",
	"regulators_impacted", "fines_or_penalties", "government_bodies_impacted",
	"jurisdictions_impacted", "regions_affected", "overall",
}

// validatedFields are the fields the senior analyst must judge one by one.
var validatedFields = []string{
	"notice_name", "notice_number", "notice_date", "agency", "department_name",
	"document_type", "jurisdiction", "phi_themes", "actors_in_play",
	"outcome_decisions", "affected_parties", "obligations", "dates", "description",
}

func themesSection(themes []string) string {
	if len(themes) == 0 {
		return ""
	}
	return "\n## Allowed themes\nAssign phi_themes only from this list, choosing every theme that applies and never inventing new ones:\n" +
		strings.Join(themes, ", ") + "\n"
}

// recordSchema describes the JSON object the junior analyst returns.
func recordSchema(fileName, today string) string {
	var b strings.Builder
	b.WriteString("{\n")
	fmt.Fprintf(&b, "  \"_id\": \"<notice number>_<notice date>\",\n")
	fmt.Fprintf(&b, "  \"unique_id\": \"<uuid4>\",\n")
	fmt.Fprintf(&b, "  \"document_type\": \"<one of: %s>\",\n", documentTypes)
	b.WriteString("  \"jurisdiction\": \"<governing authority>\",\n")
	b.WriteString("  \"iso_country_code\": \"<ISO 3166 code>\",\n")
	b.WriteString("  \"state\": \"<state, province or emirate>\",\n")
	fmt.Fprintf(&b, "  \"file_path\": %q,\n", fileName)
	fmt.Fprintf(&b, "  \"date_added\": %q,\n", today)
	b.WriteString("  \"language\": \"<primary language of the document>\",\n")
	b.WriteString("  \"agency\": \"<issuing agency>\",\n")
	for _, f := range []string{"notice_name", "notice_number", "notice_date", "notice_type", "document_name", "document_number", "document_date", "department_name"} {
		fmt.Fprintf(&b, "  %q: \"<%s as written>\",\n", f, strings.ReplaceAll(f, "_", " "))
	}
	for _, f := range []string{
		"phi_themes", "actors_in_play", "outcome_decisions", "outcome_reason", "affected_parties",
		"acts_regs_referred", "obligations", "compliance_terms", "changes_in_acts",
		"key_points_of_interest", "industries_affected", "regulators_impacted", "fines_or_penalties",
	} {
		fmt.Fprintf(&b, "  %q: [\"<%s>\"],\n", f, strings.ReplaceAll(f, "_", " "))
	}
	b.WriteString("  \"relevant_study_type\": \"<clinical trials, RWE, NIS, registries or None>\",\n")
	b.WriteString("  \"status\": \"<one of: Draft, Finalized, Implemented, New>\",\n")
	b.WriteString("  \"action_required\": \"<yes or no>\",\n")
	for _, f := range []string{"internal_owner_stakeholder_impacted", "government_bodies_impacted", "jurisdictions_impacted", "regions_affected"} {
		fmt.Fprintf(&b, "  %q: [\"<%s>\"],\n", f, strings.ReplaceAll(f, "_", " "))
	}
	b.WriteString("  \"description\": \"<detailed description of the whole document>\",\n")
	b.WriteString("  \"dates\": {\n")
	for i, f := range dateFields {
		fmt.Fprintf(&b, "    %q: \"<YYYY-MM-DD or None>\"", f)
		if i < len(dateFields)-1 {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}
	b.WriteString("  },\n")
	b.WriteString("  \"impact_score\": {\n")
	for i, f := range impactFields {
		fmt.Fprintf(&b, "    \"%s_impact_score\": \"<%s>\"", f, impactScale)
		if i < len(impactFields)-1 {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}
	b.WriteString("  },\n")
	b.WriteString("  \"phi_theme_categorized\": {},\n")
	fmt.Fprintf(&b, "  \"blob_name\": \"documents/%s/%s\",\n", today, fileName)
	b.WriteString("  \"report\": \"<markdown report, at least two paragraphs>\"\n")
	b.WriteString("}")
	return b.String()
}

func draftPrompt(text, fileName, today string, themes []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<document>\n<filename>%s</filename>\n<content>\n%s\n</content>\n</document>\n", fileName, text)
	b.WriteString(themesSection(themes))
	b.WriteString(`
## Instructions
1. Read the whole document before answering.
2. Write every value in English, whatever the language of the document.
3. Identify the exact document type and copy names, numbers and titles verbatim.
4. Compute relative deadlines ("within 30 days of publication") from the publication date; use "None" when a date cannot be determined.
5. Rate impact: Critical or Very_High for major policy changes or heavy penalties, High for substantial requirements, Moderate for routine compliance updates, Low or Very_Low for procedural notices.
6. action_required is "yes" only when the document requires organizations to act.

## Output
Return a JSON object with exactly this structure:
`)
	b.WriteString(recordSchema(fileName, today))
	b.WriteString("\n")
	return b.String()
}

func validationPrompt(text, draftJSON string, themes []string) string {
	var b strings.Builder
	b.WriteString("## Document text\n")
	b.WriteString(text)
	b.WriteString("\n")
	b.WriteString(themesSection(themes))
	b.WriteString("\n## Junior analyst's record\n")
	b.WriteString(draftJSON)
	b.WriteString(`

## Task
Check every field of the record against the document text. Report each judged field in field_validations and describe each mistake or omission in issues_found.
If the record is fully correct set all_correct to true and corrected_record to null.
Otherwise set all_correct to false and return the complete record, with the same structure, in corrected_record. Fix only the fields that are wrong and keep correct values unchanged.

Return a JSON object with exactly this structure:
{
  "all_correct": true,
  "field_validations": {
`)
	for i, f := range validatedFields {
		fmt.Fprintf(&b, "    \"is_%s_correct\": true", f)
		if i < len(validatedFields)-1 {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}
	b.WriteString(`  },
  "issues_found": ["<one line per issue>"],
  "corrected_record": null
}
`)
	return b.String()
}
