package db

import "github.com/gitshopapp/dropship/internal/models"

type Order = models.Order
type OrderLineItem = models.OrderLineItem
type OrderStatus = models.OrderStatus
type Supplier = models.Supplier
type PurchaseOrder = models.PurchaseOrder
type POLineItem = models.POLineItem
type Shipment = models.Shipment
type PartMapping = models.PartMapping
