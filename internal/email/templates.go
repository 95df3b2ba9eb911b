package email

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	"text/template"
	"time"
)

const (
	TemplateSupplierPurchaseOrder = "supplier_purchase_order"
	TemplateWarehousePackingSlip  = "warehouse_packing_slip"
)

// BundleInfo contains everything the document bundle templates print.
type BundleInfo struct {
	CompanyName    string
	RecipientName  string
	PONumber       string
	OrderReference string
	OrderDate      time.Time
	IsPartial      bool
	BlindShip      bool
	Carrier        string
	MethodLabel    string
	TrackingNumber string
	TrackingURL    string
	Documents      []string
}

// Renderer renders the plain text and HTML bodies of bundle emails.
type Renderer struct {
	text *template.Template
	html *htmltemplate.Template
}

func NewRenderer() (*Renderer, error) {
	funcMap := map[string]any{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("January 2, 2006")
		},
	}

	textTmpl := template.New("email").Funcs(funcMap)
	htmlTmpl := htmltemplate.New("email").Funcs(funcMap)
	for name, body := range map[string][2]string{
		TemplateSupplierPurchaseOrder: {supplierPurchaseOrderText, supplierPurchaseOrderHTML},
		TemplateWarehousePackingSlip:  {warehousePackingSlipText, warehousePackingSlipHTML},
	} {
		if _, err := textTmpl.New(name).Parse(body[0]); err != nil {
			return nil, fmt.Errorf("failed to parse text template %s: %w", name, err)
		}
		if _, err := htmlTmpl.New(name).Parse(body[1]); err != nil {
			return nil, fmt.Errorf("failed to parse HTML template %s: %w", name, err)
		}
	}

	return &Renderer{text: textTmpl, html: htmlTmpl}, nil
}

// Render returns the text and HTML bodies for templateName.
func (r *Renderer) Render(_ context.Context, templateName string, data *BundleInfo) (string, string, error) {
	if data == nil {
		return "", "", fmt.Errorf("bundle info is required")
	}
	var textBuf, htmlBuf bytes.Buffer
	if err := r.text.ExecuteTemplate(&textBuf, templateName, data); err != nil {
		return "", "", fmt.Errorf("failed to render text template: %w", err)
	}
	if err := r.html.ExecuteTemplate(&htmlBuf, templateName, data); err != nil {
		return "", "", fmt.Errorf("failed to render HTML template: %w", err)
	}
	return textBuf.String(), htmlBuf.String(), nil
}

const supplierPurchaseOrderText = `Hello{{if .RecipientName}} {{.RecipientName}}{{end}},

Please find attached purchase order {{.PONumber}}{{if .CompanyName}} from {{.CompanyName}}{{end}}.
{{- if .IsPartial}}

This purchase order covers part of the customer's order. Other items ship separately.
{{- end}}
{{- if .BlindShip}}

This is a blind drop-shipment. Do not include pricing or your company details in the package.
{{- end}}
{{- if .TrackingNumber}}

A prepaid {{.Carrier}} label ({{.MethodLabel}}) is attached.
Tracking number: {{.TrackingNumber}}
{{- end}}

Attached documents:
{{- range .Documents}}
  - {{.}}
{{- end}}

Thank you,
{{if .CompanyName}}{{.CompanyName}}{{else}}Purchasing{{end}}
`

const supplierPurchaseOrderHTML = `<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #222;">
<p>Hello{{if .RecipientName}} {{.RecipientName}}{{end}},</p>
<p>Please find attached purchase order <strong>{{.PONumber}}</strong>{{if .CompanyName}} from {{.CompanyName}}{{end}}.</p>
{{- if .IsPartial}}
<p><em>This purchase order covers part of the customer's order. Other items ship separately.</em></p>
{{- end}}
{{- if .BlindShip}}
<p><strong>Blind drop-shipment:</strong> do not include pricing or your company details in the package.</p>
{{- end}}
{{- if .TrackingNumber}}
<p>A prepaid {{.Carrier}} label ({{.MethodLabel}}) is attached. Tracking number: {{if .TrackingURL}}<a href="{{.TrackingURL}}">{{.TrackingNumber}}</a>{{else}}{{.TrackingNumber}}{{end}}</p>
{{- end}}
<p>Attached documents:</p>
<ul>
{{- range .Documents}}
<li>{{.}}</li>
{{- end}}
</ul>
<p>Thank you,<br>{{if .CompanyName}}{{.CompanyName}}{{else}}Purchasing{{end}}</p>
</body>
</html>
`

const warehousePackingSlipText = `Order {{.OrderReference}}{{with formatDate .OrderDate}} placed {{.}}{{end}} is ready to ship from the warehouse.
{{- if .IsPartial}}

Only part of this order ships from the warehouse. Other items ship separately.
{{- end}}
{{- if .TrackingNumber}}

{{.Carrier}} {{.MethodLabel}} label attached. Tracking number: {{.TrackingNumber}}
{{- else}}

No shipping label was booked. Please arrange shipping manually.
{{- end}}

Attached documents:
{{- range .Documents}}
  - {{.}}
{{- end}}
`

const warehousePackingSlipHTML = `<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #222;">
<p>Order <strong>{{.OrderReference}}</strong>{{with formatDate .OrderDate}} placed {{.}}{{end}} is ready to ship from the warehouse.</p>
{{- if .IsPartial}}
<p><em>Only part of this order ships from the warehouse. Other items ship separately.</em></p>
{{- end}}
{{- if .TrackingNumber}}
<p>{{.Carrier}} {{.MethodLabel}} label attached. Tracking number: {{if .TrackingURL}}<a href="{{.TrackingURL}}">{{.TrackingNumber}}</a>{{else}}{{.TrackingNumber}}{{end}}</p>
{{- else}}
<p>No shipping label was booked. Please arrange shipping manually.</p>
{{- end}}
<p>Attached documents:</p>
<ul>
{{- range .Documents}}
<li>{{.}}</li>
{{- end}}
</ul>
</body>
</html>
`
