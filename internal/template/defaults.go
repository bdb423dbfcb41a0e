package template

// builtin holds the stock HR notification kinds. New business domains
// register their own kinds at startup; nothing here is special-cased
// elsewhere in the pipeline.
var builtin = []struct {
	kind    string
	subject string
	body    string
}{
	{
		kind:    "leave_approved",
		subject: "Leave request approved",
		body:    "Hi {{.employee_name}},\n\nYour {{.leave_type}} leave from {{.start_date}} to {{.end_date}} has been approved by {{.approver_name}}.\n",
	},
	{
		kind:    "leave_rejected",
		subject: "Leave request rejected",
		body:    "Hi {{.employee_name}},\n\nYour {{.leave_type}} leave from {{.start_date}} to {{.end_date}} was rejected by {{.approver_name}}.\nReason: {{.reason}}\n",
	},
	{
		kind:    "kra_evaluated",
		subject: "KRA evaluation completed for {{.quarter}}",
		body:    "Hi {{.employee_name}},\n\nYour goals for {{.quarter}} have been evaluated. Overall rating: {{.rating}}.\n",
	},
	{
		kind:    "policy_assigned",
		subject: "New policy assigned: {{.policy_name}}",
		body:    "Hi {{.employee_name}},\n\nThe policy \"{{.policy_name}}\" has been assigned to you. Please review and acknowledge it.\n",
	},
	{
		kind:    "asset_assigned",
		subject: "Asset assigned: {{.asset_name}}",
		body:    "Hi {{.employee_name}},\n\nThe asset \"{{.asset_name}}\" ({{.asset_tag}}) has been assigned to you.\n",
	},
	{
		kind:    "asset_returned",
		subject: "Asset return recorded: {{.asset_name}}",
		body:    "Hi {{.employee_name}},\n\nThe return of \"{{.asset_name}}\" ({{.asset_tag}}) has been recorded.\n",
	},
}

// Defaults returns a registry pre-loaded with the built-in HR kinds.
func Defaults() *Registry {
	r := NewRegistry()
	for _, b := range builtin {
		// Built-in templates are static strings; parse errors here are
		// programmer mistakes, not runtime conditions.
		if err := r.Register(b.kind, b.subject, b.body); err != nil {
			panic(err)
		}
	}
	return r
}
