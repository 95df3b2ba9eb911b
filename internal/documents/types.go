package documents

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gitshopapp/dropship/internal/models"
)

// OrderContext is the slice of an order printed on every document.
type OrderContext struct {
	ExternalID     string
	OrderDate      time.Time
	ShipTo         models.Address
	ShippingMethod string
	PaymentMethod  string
	Compliance     map[string]string
}

type Line struct {
	SKU         string
	PartNumber  string
	Description string
	Quantity    int
	UnitCost    decimal.Decimal
	Condition   string
}

func (l Line) Total() decimal.Decimal {
	return l.UnitCost.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type PurchaseOrderInput struct {
	Supplier            models.Supplier
	PONumber            string
	PODate              time.Time
	Lines               []Line
	PaymentTerms        string
	PaymentInstructions string
	Order               OrderContext
	// LogoPath is empty for blind shipments.
	LogoPath    string
	IsPartial   bool
	CompanyName string
	// Buyer is nil for blind shipments so the warehouse address never reaches the supplier paperwork.
	Buyer       *models.Address
	ShipFrom    models.Address
	BlindShip   bool
	BillingNote string
}

// Total sums every line and rounds once to cents.
func (in PurchaseOrderInput) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range in.Lines {
		total = total.Add(line.Total())
	}
	return total.Round(2)
}

type PackingSlipInput struct {
	Order              OrderContext
	InShipment         []Line
	ShippingSeparately []Line
	LogoPath           string
	CompanyName        string
	IsInternal         bool
	IsBlind            bool
	// ShipFrom overrides the return address printed on the slip.
	ShipFrom *models.Address
}

type keyValue struct {
	Key   string
	Value string
}

func sortedPairs(values map[string]string) []keyValue {
	pairs := make([]keyValue, 0, len(values))
	for key, value := range values {
		pairs = append(pairs, keyValue{Key: key, Value: value})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Key < pairs[j].Key })
	return pairs
}
