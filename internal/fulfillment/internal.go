package fulfillment

import (
	"context"
	"fmt"

	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"

	"github.com/gitshopapp/dropship/internal/carrier"
	"github.com/gitshopapp/dropship/internal/documents"
	"github.com/gitshopapp/dropship/internal/email"
	"github.com/gitshopapp/dropship/internal/models"
	"github.com/gitshopapp/dropship/internal/observability"
	"github.com/gitshopapp/dropship/internal/storefront"
)

const pdfContentType = "application/pdf"

// fulfillInternally ships from the warehouse. The packing slip is required;
// a failed label only produces a warning.
func (o *Orchestrator) fulfillInternally(ctx context.Context, tx Tx, r *run, p assignmentPlan) (*AssignmentResult, *storefrontCall, error) {
	logger := o.loggerFromContext(ctx).With("assignment", p.index+1, "target", TargetInternal)
	result := &AssignmentResult{
		Index:       p.index,
		Target:      TargetInternal,
		PONumber:    InternalPONumber,
		MethodLabel: p.method,
	}
	ids := p.internal.LineItemIDs
	if len(ids) == 0 {
		logger.Info("internal assignment has no line items; nothing to ship")
		return result, nil, nil
	}

	lines := make([]documents.Line, 0, len(ids))
	shipped := make([]storefront.ShippedItem, 0, len(ids))
	for _, id := range ids {
		orderLine := r.byID[id]
		partNumber, description := o.describe(ctx, orderLine.SKU, orderLine.Name)
		lines = append(lines, documents.Line{
			SKU:         orderLine.SKU,
			PartNumber:  partNumber,
			Description: description,
			Quantity:    orderLine.Quantity,
			Condition:   models.DefaultItemCondition,
		})
		shipped = append(shipped, storefront.ShippedItem{
			ExternalLineItemID: orderLine.ExternalID,
			SKU:                orderLine.SKU,
			Quantity:           orderLine.Quantity,
		})
	}

	orderCtx := o.orderContext(r, p)
	shipFrom := p.shipFrom
	slipPDF, err := o.documents.PackingSlipPDF(ctx, documents.PackingSlipInput{
		Order:       orderCtx,
		InShipment:  lines,
		LogoPath:    p.logoPath(o.settings),
		CompanyName: p.companyName(o.settings),
		IsInternal:  true,
		IsBlind:     p.blind,
		ShipFrom:    &shipFrom,
	})
	if err := documentErr(slipPDF, err); err != nil {
		return nil, nil, stepFailed(p.index, StepPackingSlip, "", ErrDocumentGenerationFailed, err)
	}

	reference := fmt.Sprintf("%s-internal-%d", orderCtx.ExternalID, p.index+1)
	var label *carrier.Label
	if p.wantsLabel() {
		label, err = o.bookLabel(ctx, r, p, reference)
		if err != nil {
			observability.Count(ctx, "fulfillment.label.failed", attribute.String("target", TargetInternal))
			logger.Warn("label booking failed; continuing with packing slip only", "error", err)
			result.Warnings = append(result.Warnings, fmt.Sprintf("label booking failed: %v", err))
			label = nil
		}
	}

	dir := documentDir(r.order)
	attachments := []email.Attachment{{
		Filename:    fmt.Sprintf("PackingSlip-internal-%d.pdf", p.index+1),
		ContentType: pdfContentType,
		Content:     slipPDF,
	}}
	if label != nil {
		attachments = append(attachments, email.Attachment{
			Filename:    fmt.Sprintf("Label-internal-%d.pdf", p.index+1),
			ContentType: pdfContentType,
			Content:     label.PDF,
		})
	}
	locations := make([]string, len(attachments))
	for i, attachment := range attachments {
		locations[i], err = o.objects.Put(ctx, attachment.Content, dir+attachment.Filename)
		if err != nil {
			return nil, nil, stepFailed(p.index, StepUpload, "", ErrPersistenceFailed, err)
		}
	}
	result.PackingSlipLocation = locations[0]

	var call *storefrontCall
	if label != nil {
		shipment := &models.Shipment{
			OrderID:        r.order.ID,
			TrackingNumber: label.TrackingNumber,
			Carrier:        label.Carrier,
			MethodLabel:    p.method,
			WeightLbs:      p.weight,
			LabelLocation:  locations[1],
		}
		if err := tx.CreateShipment(ctx, shipment); err != nil {
			return nil, nil, stepFailed(p.index, StepRecordShipment, "", ErrPersistenceFailed, err)
		}
		result.TrackingNumber = label.TrackingNumber
		result.Carrier = label.Carrier
		result.LabelLocation = locations[1]
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

	if o.settings.WarehouseEmail != "" {
		receipt, err := o.notifier.SendDocumentBundle(ctx, email.Bundle{
			To:       o.settings.WarehouseEmail,
			Subject:  fmt.Sprintf("Ship order %s from the warehouse", orderCtx.ExternalID),
			Template: email.TemplateWarehousePackingSlip,
			Info: email.BundleInfo{
				CompanyName:    o.settings.CompanyName,
				OrderReference: orderCtx.ExternalID,
				OrderDate:      orderCtx.OrderDate,
				IsPartial:      r.suppliers > 0,
				Carrier:        result.Carrier,
				MethodLabel:    p.method,
				TrackingNumber: result.TrackingNumber,
				TrackingURL:    carrier.TrackingURL(result.Carrier, result.TrackingNumber),
			},
			Attachments: attachments,
		})
		if err != nil {
			logger.Warn("failed to notify warehouse", "error", err)
			result.Warnings = append(result.Warnings, fmt.Sprintf("warehouse notification failed: %v", err))
		} else if receipt != nil {
			result.EmailMessageID = receipt.MessageID
		}
	}

	logger.Info("internal fulfillment prepared", "tracking_number", result.TrackingNumber, "blind_ship", p.blind)
	return result, call, nil
}

func (o *Orchestrator) orderContext(r *run, p assignmentPlan) documents.OrderContext {
	return documents.OrderContext{
		ExternalID:     orderReference(r.order),
		OrderDate:      r.order.CreatedAt,
		ShipTo:         r.order.ShippingAddress,
		ShippingMethod: p.method,
		PaymentMethod:  r.order.PaymentMethod,
		Compliance:     r.order.ComplianceInfo,
	}
}

// otherLines lists the order's line items outside ids, printed as shipping separately.
func (o *Orchestrator) otherLines(ctx context.Context, r *run, ids []uuid.UUID) []documents.Line {
	inShipment := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		inShipment[id] = true
	}
	var lines []documents.Line
	for _, item := range r.lineItems {
		if inShipment[item.ID] {
			continue
		}
		partNumber, description := o.describe(ctx, item.SKU, item.Name)
		lines = append(lines, documents.Line{
			SKU:         item.SKU,
			PartNumber:  partNumber,
			Description: description,
			Quantity:    item.Quantity,
		})
	}
	return lines
}

// describe resolves the vendor part number and supplier-facing description.
// Lookup failures fall back to the SKU and the stored name.
func (o *Orchestrator) describe(ctx context.Context, sku, storedName string) (string, string) {
	if o.parts == nil {
		return sku, storedName
	}
	logger := o.loggerFromContext(ctx)

	resolution, err := o.parts.Resolve(ctx, sku)
	if err != nil {
		logger.Warn("part lookup failed", "error", err, "sku", sku)
		return sku, storedName
	}
	description, err := o.parts.Describe(ctx, resolution, storedName)
	if err != nil {
		logger.Warn("part description lookup failed", "error", err, "sku", sku)
		description = storedName
	}
	partNumber := sku
	if resolution != nil && resolution.PartNumber != "" {
		partNumber = resolution.PartNumber
	}
	return partNumber, description
}

func orderReference(order *models.Order) string {
	if order.ExternalID != "" {
		return order.ExternalID
	}
	return order.ID.String()
}

func documentDir(order *models.Order) string {
	return "orders/" + order.ID.String() + "/"
}
