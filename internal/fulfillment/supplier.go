package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gitshopapp/dropship/internal/carrier"
	"github.com/gitshopapp/dropship/internal/documents"
	"github.com/gitshopapp/dropship/internal/email"
	"github.com/gitshopapp/dropship/internal/models"
	"github.com/gitshopapp/dropship/internal/secrets"
	"github.com/gitshopapp/dropship/internal/storefront"
)

var errEmptyDocument = errors.New("generator returned an empty document")

// fulfillFromSupplier creates the purchase order, produces its paperwork
// and emails it. The PO is marked sent only after the supplier received
// every generated document.
func (o *Orchestrator) fulfillFromSupplier(ctx context.Context, tx Tx, r *run, p assignmentPlan) (*AssignmentResult, *storefrontCall, error) {
	a := p.supplier
	supplier := p.supplierRecord

	poNumber, err := r.poNumbers.take()
	if err != nil {
		return nil, nil, stepFailed(p.index, StepInsertPurchaseOrder, "", ErrPersistenceFailed, err)
	}
	logger := o.loggerFromContext(ctx).With("assignment", p.index+1, "po_number", poNumber, "supplier_id", supplier.ID)

	po := &models.PurchaseOrder{
		PONumber:   poNumber,
		OrderID:    r.order.ID,
		SupplierID: supplier.ID,
		IssueDate:  r.now,
		Status:     models.POStatusNew,
		LineItems:  make([]models.POLineItem, 0, len(a.Items)),
	}
	lines := make([]documents.Line, 0, len(a.Items))
	shipped := make([]storefront.ShippedItem, 0, len(a.Items))
	for _, item := range a.Items {
		orderLine := r.byID[item.LineItemID]
		partNumber, description := o.describe(ctx, item.SKU, orderLine.Name)
		condition := item.Condition
		if condition == "" {
			condition = models.DefaultItemCondition
		}
		po.LineItems = append(po.LineItems, models.POLineItem{
			OrderLineItemID: item.LineItemID,
			SKU:             item.SKU,
			Description:     description,
			Quantity:        item.Quantity,
			UnitCost:        item.UnitCost,
			Condition:       condition,
		})
		lines = append(lines, documents.Line{
			SKU:         item.SKU,
			PartNumber:  partNumber,
			Description: description,
			Quantity:    item.Quantity,
			UnitCost:    item.UnitCost,
			Condition:   condition,
		})
		shipped = append(shipped, storefront.ShippedItem{
			ExternalLineItemID: orderLine.ExternalID,
			SKU:                orderLine.SKU,
			Quantity:           item.Quantity,
		})
	}
	po.TotalAmount = models.ComputeTotal(po.LineItems)

	if err := tx.CreatePurchaseOrder(ctx, po); err != nil {
		return nil, nil, stepFailed(p.index, StepInsertPurchaseOrder, poNumber, ErrPersistenceFailed, err)
	}

	orderCtx := o.orderContext(r, p)
	var buyer *models.Address
	if !p.blind {
		address := o.settings.ShipFrom
		buyer = &address
	}
	poPDF, err := o.documents.PurchaseOrderPDF(ctx, documents.PurchaseOrderInput{
		Supplier:            *supplier,
		PONumber:            poNumber,
		PODate:              r.now,
		Lines:               lines,
		PaymentTerms:        supplier.PaymentTerms,
		PaymentInstructions: a.PaymentInstructions,
		Order:               orderCtx,
		LogoPath:            p.logoPath(o.settings),
		IsPartial:           r.partial,
		CompanyName:         o.settings.CompanyName,
		Buyer:               buyer,
		ShipFrom:            p.shipFrom,
		BlindShip:           p.blind,
		BillingNote:         billingNote(p),
	})
	if err := documentErr(poPDF, err); err != nil {
		return nil, nil, stepFailed(p.index, StepPurchaseOrderDocument, poNumber, ErrDocumentGenerationFailed, err)
	}

	shipFrom := p.shipFrom
	slipPDF, err := o.documents.PackingSlipPDF(ctx, documents.PackingSlipInput{
		Order:              orderCtx,
		InShipment:         lines,
		ShippingSeparately: o.otherLines(ctx, r, a.lineItemIDs()),
		LogoPath:           p.logoPath(o.settings),
		CompanyName:        p.companyName(o.settings),
		IsBlind:            p.blind,
		ShipFrom:           &shipFrom,
	})
	if err := documentErr(slipPDF, err); err != nil {
		return nil, nil, stepFailed(p.index, StepPackingSlip, poNumber, ErrDocumentGenerationFailed, err)
	}

	var label *carrier.Label
	if p.wantsLabel() {
		label, err = o.bookLabel(ctx, r, p, poNumber)
		if err != nil {
			return nil, nil, stepFailed(p.index, StepBookLabel, poNumber, ErrDocumentGenerationFailed,
				fmt.Errorf("%w: %w", ErrCarrierBookingFailed, err))
		}
	}

	dir := documentDir(r.order)
	attachments := []email.Attachment{
		{Filename: fmt.Sprintf("PO-%s.pdf", poNumber), ContentType: pdfContentType, Content: poPDF},
		{Filename: fmt.Sprintf("PackingSlip-%s.pdf", poNumber), ContentType: pdfContentType, Content: slipPDF},
	}
	if label != nil {
		attachments = append(attachments, email.Attachment{
			Filename:    fmt.Sprintf("Label-%s.pdf", poNumber),
			ContentType: pdfContentType,
			Content:     label.PDF,
		})
	}
	locations := make([]string, len(attachments))
	for i, attachment := range attachments {
		locations[i], err = o.objects.Put(ctx, attachment.Content, dir+attachment.Filename)
		if err != nil {
			return nil, nil, stepFailed(p.index, StepUpload, poNumber, ErrPersistenceFailed, err)
		}
	}

	if err := tx.UpdatePurchaseOrderDocuments(ctx, po.ID, locations[0], locations[1]); err != nil {
		return nil, nil, stepFailed(p.index, StepRecordDocuments, poNumber, ErrPersistenceFailed, err)
	}

	result := &AssignmentResult{
		Index:                 p.index,
		Target:                supplier.ID.String(),
		SupplierName:          supplier.Name,
		PONumber:              poNumber,
		MethodLabel:           p.method,
		PurchaseOrderLocation: locations[0],
		PackingSlipLocation:   locations[1],
	}
	var call *storefrontCall
	if label != nil {
		poID := po.ID
		shipment := &models.Shipment{
			OrderID:         r.order.ID,
			PurchaseOrderID: &poID,
			TrackingNumber:  label.TrackingNumber,
			Carrier:         label.Carrier,
			MethodLabel:     p.method,
			WeightLbs:       p.weight,
			LabelLocation:   locations[2],
		}
		if err := tx.CreateShipment(ctx, shipment); err != nil {
			return nil, nil, stepFailed(p.index, StepRecordShipment, poNumber, ErrPersistenceFailed, err)
		}
		result.TrackingNumber = label.TrackingNumber
		result.Carrier = label.Carrier
		result.LabelLocation = locations[2]
		call = &storefrontCall{
			externalOrderID: r.order.ExternalID,
			shipment: &storefront.Shipment{
				TrackingNumber: label.TrackingNumber,
				Carrier:        label.Carrier,
				MethodLabel:    p.method,
				TrackingURL:    carrier.TrackingURL(label.Carrier, label.TrackingNumber),
				Items:          shipped,
			},
		}
	}

	receipt, err := o.notifier.SendDocumentBundle(ctx, email.Bundle{
		To:       supplier.Email,
		Subject:  supplierSubject(poNumber, o.settings.CompanyName),
		Template: email.TemplateSupplierPurchaseOrder,
		Info: email.BundleInfo{
			CompanyName:    o.settings.CompanyName,
			RecipientName:  supplier.Name,
			PONumber:       poNumber,
			OrderReference: orderCtx.ExternalID,
			OrderDate:      orderCtx.OrderDate,
			IsPartial:      r.partial,
			BlindShip:      p.blind,
			Carrier:        result.Carrier,
			MethodLabel:    p.method,
			TrackingNumber: result.TrackingNumber,
			TrackingURL:    carrier.TrackingURL(result.Carrier, result.TrackingNumber),
		},
		Attachments: attachments,
	})
	if err == nil && receipt == nil {
		err = errors.New("provider returned no receipt")
	}
	if err != nil {
		return nil, nil, stepFailed(p.index, StepSendEmail, poNumber, ErrEmailIncomplete, err)
	}
	for _, attachment := range attachments {
		if !receipt.Has(attachment.Filename) {
			return nil, nil, stepFailed(p.index, StepSendEmail, poNumber, ErrEmailIncomplete,
				fmt.Errorf("%s was not attached", attachment.Filename))
		}
	}
	result.EmailMessageID = receipt.MessageID

	if err := tx.MarkPurchaseOrderSent(ctx, po.ID); err != nil {
		return nil, nil, stepFailed(p.index, StepMarkSent, poNumber, ErrPersistenceFailed, err)
	}

	logger.Info("purchase order sent to supplier",
		"total", po.TotalAmount.StringFixed(2),
		"tracking_number", result.TrackingNumber,
		"blind_ship", p.blind,
	)
	return result, call, nil
}

func supplierSubject(poNumber, companyName string) string {
	if companyName == "" {
		return fmt.Sprintf("Purchase Order %s", poNumber)
	}
	return fmt.Sprintf("Purchase Order %s - %s", poNumber, companyName)
}

// billingNote tells the supplier which account pays for a customer-billed label.
func billingNote(p assignmentPlan) string {
	if p.billing.Party != carrier.BillThirdParty {
		return ""
	}
	name := p.carrier
	if name == "" {
		name = "carrier"
	}
	return fmt.Sprintf("Ship on customer's %s account %s (billing ZIP %s).",
		name, secrets.Mask(p.billing.AccountNumber), p.billing.PostalCode)
}

func documentErr(pdf []byte, err error) error {
	if err != nil {
		return err
	}
	if len(pdf) == 0 {
		return errEmptyDocument
	}
	return nil
}

func (o *Orchestrator) bookLabel(ctx context.Context, r *run, p assignmentPlan, reference string) (*carrier.Label, error) {
	label, err := o.labels.BookLabel(ctx, carrier.LabelRequest{
		Reference:   reference,
		ShipFrom:    p.shipFrom,
		ShipTo:      r.order.ShippingAddress,
		WeightLbs:   p.weight,
		MethodLabel: p.method,
		Carrier:     p.carrier,
		Billing:     p.billing,
	})
	if err != nil {
		return nil, err
	}
	if label == nil || len(label.PDF) == 0 || strings.TrimSpace(label.TrackingNumber) == "" {
		return nil, carrier.ErrEmptyLabel
	}
	if label.Carrier == "" {
		label.Carrier = p.carrier
	}
	return label, nil
}
