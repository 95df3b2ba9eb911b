// Package documents renders purchase orders and packing slips to PDF.
package documents

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/gitshopapp/dropship/internal/logging"
	"github.com/gitshopapp/dropship/internal/models"
)

const dateLayout = "January 2, 2006"

//go:embed templates/*.html
var templateFS embed.FS

var ErrEmptyDocument = errors.New("renderer returned an empty document")

// Renderer turns a complete HTML document into PDF bytes.
type Renderer interface {
	Render(ctx context.Context, html string) ([]byte, error)
}

type Generator struct {
	renderer  Renderer
	templates *template.Template
	logger    *slog.Logger

	logoMu sync.Mutex
	logos  map[string]template.URL
}

func NewGenerator(renderer Renderer, logger *slog.Logger) (*Generator, error) {
	if renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	templates, err := template.New("documents").Funcs(template.FuncMap{
		"money": func(amount decimal.Decimal) string {
			return "$" + amount.StringFixed(2)
		},
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse document templates: %w", err)
	}

	return &Generator{
		renderer:  renderer,
		templates: templates,
		logger:    logger,
		logos:     make(map[string]template.URL),
	}, nil
}

type purchaseOrderView struct {
	PONumber            string
	PODate              string
	CompanyName         string
	Logo                template.URL
	Buyer               *models.Address
	Supplier            models.Supplier
	Order               OrderContext
	ShipFrom            models.Address
	Lines               []Line
	Total               decimal.Decimal
	PaymentTerms        string
	PaymentInstructions string
	BillingNote         string
	IsPartial           bool
	BlindShip           bool
	Compliance          []keyValue
}

type packingSlipView struct {
	Order              OrderContext
	OrderDate          string
	CompanyName        string
	Logo               template.URL
	ShipFrom           *models.Address
	InShipment         []Line
	ShippingSeparately []Line
	IsBlind            bool
	Compliance         []keyValue
}

func (g *Generator) PurchaseOrderPDF(ctx context.Context, in PurchaseOrderInput) ([]byte, error) {
	html, err := g.PurchaseOrderHTML(ctx, in)
	if err != nil {
		return nil, err
	}
	return g.render(ctx, "purchase_order", html)
}

func (g *Generator) PackingSlipPDF(ctx context.Context, in PackingSlipInput) ([]byte, error) {
	html, err := g.PackingSlipHTML(ctx, in)
	if err != nil {
		return nil, err
	}
	return g.render(ctx, "packing_slip", html)
}

// PurchaseOrderHTML renders the purchase order without converting it to PDF.
func (g *Generator) PurchaseOrderHTML(ctx context.Context, in PurchaseOrderInput) (string, error) {
	if in.PONumber == "" {
		return "", fmt.Errorf("po number is required")
	}
	if len(in.Lines) == 0 {
		return "", fmt.Errorf("purchase order %s has no lines", in.PONumber)
	}

	view := purchaseOrderView{
		PONumber:            in.PONumber,
		PODate:              in.PODate.Format(dateLayout),
		CompanyName:         in.CompanyName,
		Logo:                g.logo(ctx, in.LogoPath),
		Buyer:               in.Buyer,
		Supplier:            in.Supplier,
		Order:               in.Order,
		ShipFrom:            in.ShipFrom,
		Lines:               in.Lines,
		Total:               in.Total(),
		PaymentTerms:        in.PaymentTerms,
		PaymentInstructions: in.PaymentInstructions,
		BillingNote:         in.BillingNote,
		IsPartial:           in.IsPartial,
		BlindShip:           in.BlindShip,
		Compliance:          sortedPairs(in.Order.Compliance),
	}
	return g.execute("purchase_order.html", view)
}

// PackingSlipHTML renders the packing slip without converting it to PDF. Blind
// slips never carry the logo or company name.
func (g *Generator) PackingSlipHTML(ctx context.Context, in PackingSlipInput) (string, error) {
	if len(in.InShipment) == 0 {
		return "", fmt.Errorf("packing slip for order %s has no items", in.Order.ExternalID)
	}

	view := packingSlipView{
		Order:              in.Order,
		OrderDate:          in.Order.OrderDate.Format(dateLayout),
		ShipFrom:           in.ShipFrom,
		InShipment:         in.InShipment,
		ShippingSeparately: in.ShippingSeparately,
		IsBlind:            in.IsBlind,
		Compliance:         sortedPairs(in.Order.Compliance),
	}
	if in.IsInternal {
		view.ShippingSeparately = nil
	}
	if !in.IsBlind {
		view.CompanyName = in.CompanyName
		view.Logo = g.logo(ctx, in.LogoPath)
	}
	return g.execute("packing_slip.html", view)
}

func (g *Generator) execute(name string, view any) (string, error) {
	var buf bytes.Buffer
	if err := g.templates.ExecuteTemplate(&buf, name, view); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return buf.String(), nil
}

func (g *Generator) render(ctx context.Context, kind, html string) ([]byte, error) {
	pdf, err := g.renderer.Render(ctx, html)
	if err != nil {
		return nil, fmt.Errorf("failed to render %s pdf: %w", kind, err)
	}
	if len(pdf) == 0 {
		return nil, fmt.Errorf("%s: %w", kind, ErrEmptyDocument)
	}
	return pdf, nil
}

// logo loads and caches the scaled logo. A missing or unreadable logo is
// logged and the document renders without one.
func (g *Generator) logo(ctx context.Context, path string) template.URL {
	if path == "" {
		return ""
	}

	g.logoMu.Lock()
	defer g.logoMu.Unlock()
	if uri, ok := g.logos[path]; ok {
		return uri
	}

	uri, err := LoadLogo(path, maxLogoWidth)
	if err != nil {
		logging.FromContext(ctx, g.logger).Warn("failed to load document logo", "path", path, "error", err)
		return ""
	}
	g.logos[path] = template.URL(uri)
	return g.logos[path]
}
