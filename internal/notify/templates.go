package notify

import (
	"strings"
	"text/template"
)

var templates = template.Must(template.New("notify").Funcs(template.FuncMap{
	"orDash": func(s string) string {
		if strings.TrimSpace(s) == "" {
			return "not specified"
		}
		return s
	},
}).Parse(`
{{define "submitted"}}A new material request is waiting for review.

Request:      {{.Request.Reference}}
Material:     {{.Request.MaterialNumber}} - {{.Request.MaterialDescription}}
Requested by: {{.Request.RequesterName}} ({{orDash .Request.RequesterDepartment}})
Quantity:     {{.Request.QuantityRequested}} {{.Request.Unit}}
Purpose:      {{.Request.Purpose}}
Priority:     {{.Request.Priority}}

Approve or reject it in {{.App}}.
{{end}}

{{define "approved"}}Your material request has been approved.

Request:            {{.Request.Reference}}
Material:           {{.Request.MaterialNumber}} - {{.Request.MaterialDescription}}
Requested quantity: {{.Request.QuantityRequested}} {{.Request.Unit}}
Approved quantity:  {{.Request.QuantityApproved}} {{.Request.Unit}}
Approved by:        {{.Request.ApproverName}}
{{- if .Request.Remarks}}
Remarks:            {{.Request.Remarks}}
{{- end}}

The material can be collected once it has been issued.
{{end}}

{{define "rejected"}}Your material request has been rejected.

Request:     {{.Request.Reference}}
Material:    {{.Request.MaterialNumber}} - {{.Request.MaterialDescription}}
Quantity:    {{.Request.QuantityRequested}} {{.Request.Unit}}
Rejected by: {{.Request.ApproverName}}
{{- if .Request.Remarks}}
Remarks:     {{.Request.Remarks}}
{{- end}}
{{end}}

{{define "issued"}}Your requested material has been issued.

Request:   {{.Request.Reference}}
Material:  {{.Request.MaterialNumber}} - {{.Request.MaterialDescription}}
Quantity:  {{.Request.QuantityApproved}} {{.Request.Unit}}
Issued by: {{.Request.IssuerName}}
{{- if .Request.IssuedDate}}
Issued at: {{.Request.IssuedDate.Format "2006-01-02 15:04"}}
{{- end}}

Transaction reference: {{.Request.Reference}}
{{end}}

{{define "low_stock"}}The following materials are at or below their minimum stock level:
{{range .Materials}}
- {{.MaterialNumber}} - {{.Description}}
  Current stock: {{.CurrentStock}} {{.Unit}}
  Minimum stock: {{.MinimumStock}} {{.Unit}}
  Location:      {{orDash .Location}}
{{end}}
Please arrange replenishment.
{{end}}
`))
