package services

import (
	"context"
	"errors"
	"fmt"

	"table-settlement/internal/logger"
	"table-settlement/internal/models"
	"table-settlement/internal/storage"
	"table-settlement/internal/utils"
)

type OrderService struct {
	base
	allowItemsOnServed bool
}

func NewOrderService(store storage.Store, notifier Notifier, log *logger.Logger, allowItemsOnServed bool) *OrderService {
	return &OrderService{
		base:               newBase(store, notifier, log),
		allowItemsOnServed: allowItemsOnServed,
	}
}

func validateItemInputs(items []models.OrderItemInput) error {
	if len(items) == 0 {
		return validationf("at least one item is required")
	}
	for i, in := range items {
		if in.MenuItemID == "" {
			return validationf("items[%d].menuItemId is required", i)
		}
		if in.Quantity < 1 {
			return validationf("items[%d].quantity must be at least 1", i)
		}
	}
	return nil
}

// snapshotItems copies the current menu name and price into new PENDING items.
func (s *OrderService) snapshotItems(ctx context.Context, q storage.Queries, orderID string, inputs []models.OrderItemInput) ([]*models.OrderItem, error) {
	now := s.now()
	items := make([]*models.OrderItem, 0, len(inputs))
	for _, in := range inputs {
		menuItem, err := q.GetMenuItem(ctx, in.MenuItemID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, &Error{Kind: KindValidation, Message: fmt.Sprintf("menu item %s not found", in.MenuItemID), Err: ErrMenuItemNotFound}
			}
			return nil, err
		}
		if !menuItem.Available {
			return nil, &Error{Kind: KindValidation, Message: fmt.Sprintf("menu item %s is unavailable", menuItem.Name), Err: ErrMenuItemUnavailable}
		}
		items = append(items, &models.OrderItem{
			ID:           utils.GenerateID(),
			OrderID:      orderID,
			MenuItemID:   menuItem.ID,
			Name:         menuItem.Name,
			Quantity:     in.Quantity,
			PriceAtOrder: menuItem.Price,
			Status:       models.ItemPending,
			Notes:        in.Notes,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}
	return items, nil
}

func (s *OrderService) CreateOrder(ctx context.Context, req *models.CreateOrderRequest) (*models.OrderDetail, error) {
	if err := validateItemInputs(req.Items); err != nil {
		return nil, err
	}

	orderType := req.OrderType
	if orderType == "" {
		orderType = models.OrderTakeAway
		if req.SessionID != "" {
			orderType = models.OrderDineIn
		}
	}
	switch orderType {
	case models.OrderDineIn:
		if req.SessionID == "" {
			return nil, validationf("dine-in orders require a session")
		}
	case models.OrderTakeAway:
		if req.SessionID != "" {
			return nil, validationf("takeaway orders cannot belong to a session")
		}
	default:
		return nil, validationf("unknown order type %q", orderType)
	}

	var detail *models.OrderDetail
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		var sessionID *string
		if req.SessionID != "" {
			session, err := tx.LockSession(ctx, req.SessionID)
			if err != nil {
				return lookupErr(err, ErrSessionNotFound)
			}
			if session.Status == models.SessionClosed {
				return conflict(ErrSessionClosed)
			}
			sessionID = strPtr(session.ID)
		}

		now := s.now()
		order := &models.Order{
			ID:            utils.GenerateID(),
			SessionID:     sessionID,
			OrderType:     orderType,
			Status:        models.OrderPending,
			CustomerName:  req.CustomerName,
			CustomerPhone: req.CustomerPhone,
			Notes:         req.Notes,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		items, err := s.snapshotItems(ctx, tx, order.ID, req.Items)
		if err != nil {
			return err
		}
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}
		if err := tx.InsertItems(ctx, items); err != nil {
			return err
		}
		detail = &models.OrderDetail{Order: order, Items: items, Total: models.BillableTotal(order, items)}
		return nil
	})
	if err != nil {
		s.log.LogOrder("CREATE_FAILED", req.SessionID, err.Error())
		return nil, err
	}

	s.log.LogOrder("CREATED", detail.ID, fmt.Sprintf("%s order with %d items, total %s", detail.OrderType, len(detail.Items), detail.Total))
	s.emit(models.Event{
		Type:      models.EventOrderCreated,
		OrderID:   detail.ID,
		SessionID: deref(detail.SessionID),
		Payload:   map[string]string{"total": detail.Total.StringFixed(2)},
	})
	return detail, nil
}

// lockOrderForUpdate locks the order's session (if any) before the order so
// that order mutations follow the same lock order as settlement.
func lockOrderForUpdate(ctx context.Context, tx storage.Tx, orderID string) (*models.Order, *models.TableSession, error) {
	peek, err := tx.GetOrder(ctx, orderID)
	if err != nil {
		return nil, nil, lookupErr(err, ErrOrderNotFound)
	}
	var session *models.TableSession
	if peek.SessionID != nil {
		if session, err = tx.LockSession(ctx, *peek.SessionID); err != nil {
			return nil, nil, lookupErr(err, ErrSessionNotFound)
		}
	}
	order, err := tx.LockOrder(ctx, orderID)
	if err != nil {
		return nil, nil, lookupErr(err, ErrOrderNotFound)
	}
	return order, session, nil
}

func findItem(items []*models.OrderItem, itemID string) *models.OrderItem {
	for _, item := range items {
		if item.ID == itemID {
			return item
		}
	}
	return nil
}

// AddOrderItems appends items to an open order. A SERVED order accepts items
// only when the policy allows it and its session is still ACTIVE; the order
// then returns to CONFIRMED.
func (s *OrderService) AddOrderItems(ctx context.Context, orderID string, inputs []models.OrderItemInput) (*models.OrderDetail, error) {
	if err := validateItemInputs(inputs); err != nil {
		return nil, err
	}

	var detail *models.OrderDetail
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		order, session, err := lockOrderForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.Status.Terminal() {
			return conflict(ErrOrderClosed)
		}
		if session != nil && session.Status == models.SessionClosed {
			return conflict(ErrSessionClosed)
		}
		reopen := false
		if order.Status == models.OrderServed {
			if !s.allowItemsOnServed || session == nil || session.Status != models.SessionActive {
				return conflict(ErrOrderServed)
			}
			reopen = true
		}

		items, err := s.snapshotItems(ctx, tx, order.ID, inputs)
		if err != nil {
			return err
		}
		if err := tx.InsertItems(ctx, items); err != nil {
			return err
		}
		if reopen {
			if err := tx.UpdateOrderStatus(ctx, order.ID, models.OrderConfirmed, s.now()); err != nil {
				return err
			}
			order.Status = models.OrderConfirmed
		}

		detail, err = loadOrderDetail(ctx, tx, order)
		return err
	})
	if err != nil {
		s.log.LogOrder("ADD_ITEMS_FAILED", orderID, err.Error())
		return nil, err
	}

	s.log.LogOrder("ITEMS_ADDED", orderID, fmt.Sprintf("Added %d items, order now %s", len(inputs), detail.Status))
	return detail, nil
}

// UpdateOrderItem changes quantity or notes of an unserved item.
func (s *OrderService) UpdateOrderItem(ctx context.Context, orderID, itemID string, req *models.UpdateItemRequest) (*models.OrderItem, error) {
	if req.Quantity != nil && *req.Quantity < 1 {
		return nil, validationf("quantity must be at least 1")
	}

	var updated *models.OrderItem
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		item, err := s.editableItem(ctx, tx, orderID, itemID)
		if err != nil {
			return err
		}
		if req.Quantity != nil {
			item.Quantity = *req.Quantity
		}
		if req.Notes != nil {
			item.Notes = *req.Notes
		}
		item.UpdatedAt = s.now()
		if err := tx.UpdateItem(ctx, item); err != nil {
			return err
		}
		updated = item
		return nil
	})
	if err != nil {
		s.log.LogOrder("UPDATE_ITEM_FAILED", orderID, err.Error())
		return nil, err
	}

	s.log.LogOrder("ITEM_UPDATED", orderID, fmt.Sprintf("Item %s quantity %d", itemID, updated.Quantity))
	return updated, nil
}

// DeleteOrderItem removes an unserved item. The last remaining item cannot be
// removed; cancel the order instead.
func (s *OrderService) DeleteOrderItem(ctx context.Context, orderID, itemID string) error {
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		item, err := s.editableItem(ctx, tx, orderID, itemID)
		if err != nil {
			return err
		}
		items, err := tx.ListItemsByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		remaining := 0
		for _, other := range items {
			if other.ID != item.ID && other.Status != models.ItemCancelled {
				remaining++
			}
		}
		if remaining == 0 {
			return conflict(ErrLastItem)
		}
		return tx.DeleteItem(ctx, item.ID)
	})
	if err != nil {
		s.log.LogOrder("DELETE_ITEM_FAILED", orderID, err.Error())
		return err
	}

	s.log.LogOrder("ITEM_DELETED", orderID, fmt.Sprintf("Item %s removed", itemID))
	return nil
}

func (s *OrderService) editableItem(ctx context.Context, tx storage.Tx, orderID, itemID string) (*models.OrderItem, error) {
	order, _, err := lockOrderForUpdate(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status.Terminal() {
		return nil, conflict(ErrOrderClosed)
	}
	items, err := tx.ListItemsByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	item := findItem(items, itemID)
	if item == nil {
		return nil, newError(KindNotFound, ErrOrderItemNotFound)
	}
	switch item.Status {
	case models.ItemServed:
		return nil, conflict(ErrItemServed)
	case models.ItemCancelled:
		return nil, &Error{Kind: KindConflict, Message: "item already cancelled", Err: ErrInvalidTransition}
	}
	return item, nil
}

// CancelOrder cancels an order that has not been served. Items already served
// keep their status.
func (s *OrderService) CancelOrder(ctx context.Context, orderID string) (*models.OrderDetail, error) {
	var detail *models.OrderDetail
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		order, _, err := lockOrderForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		switch order.Status {
		case models.OrderServed:
			return conflict(ErrOrderServed)
		case models.OrderPaid, models.OrderCancelled:
			return conflict(ErrOrderClosed)
		}

		now := s.now()
		if err := tx.UpdateOrderStatus(ctx, order.ID, models.OrderCancelled, now); err != nil {
			return err
		}
		if _, err := tx.CascadeItemStatus(ctx, []string{order.ID}, models.ItemCancelled,
			[]models.ItemStatus{models.ItemServed, models.ItemCancelled}, now); err != nil {
			return err
		}
		order.Status = models.OrderCancelled
		detail, err = loadOrderDetail(ctx, tx, order)
		return err
	})
	if err != nil {
		s.log.LogOrder("CANCEL_FAILED", orderID, err.Error())
		return nil, err
	}

	s.log.LogOrder("CANCELLED", orderID, "Order cancelled")
	s.emit(models.Event{Type: models.EventOrderCancelled, OrderID: orderID, SessionID: deref(detail.SessionID)})
	return detail, nil
}

// UpdateOrderStatus moves an order along the kitchen flow and cascades the
// matching status to its items. PAID is reachable only through settlement.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderID string, status models.OrderStatus) (*models.OrderDetail, error) {
	switch status {
	case models.OrderCancelled:
		return s.CancelOrder(ctx, orderID)
	case models.OrderPaid:
		return nil, &Error{Kind: KindConflict, Message: "orders become PAID only through payment", Err: ErrInvalidTransition}
	}

	var detail *models.OrderDetail
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		order, _, err := lockOrderForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if !order.Status.CanTransitionTo(status) {
			return &Error{Kind: KindConflict, Message: fmt.Sprintf("cannot move order from %s to %s", order.Status, status), Err: ErrInvalidTransition}
		}

		now := s.now()
		if err := tx.UpdateOrderStatus(ctx, order.ID, status, now); err != nil {
			return err
		}
		if itemStatus, ok := status.ItemCascade(); ok {
			skip := []models.ItemStatus{models.ItemCancelled, models.ItemServed}
			if _, err := tx.CascadeItemStatus(ctx, []string{order.ID}, itemStatus, skip, now); err != nil {
				return err
			}
		}
		order.Status = status
		detail, err = loadOrderDetail(ctx, tx, order)
		return err
	})
	if err != nil {
		s.log.LogOrder("STATUS_FAILED", orderID, err.Error())
		return nil, err
	}

	s.log.LogOrder("STATUS", orderID, fmt.Sprintf("Order moved to %s", status))
	if status == models.OrderReady {
		s.emit(models.Event{Type: models.EventOrderReady, OrderID: orderID, SessionID: deref(detail.SessionID)})
	}
	return detail, nil
}

// UpdateItemStatus moves a single item along its state machine.
func (s *OrderService) UpdateItemStatus(ctx context.Context, orderID, itemID string, status models.ItemStatus) (*models.OrderItem, error) {
	var updated *models.OrderItem
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		order, _, err := lockOrderForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.Status.Terminal() {
			return conflict(ErrOrderClosed)
		}
		items, err := tx.ListItemsByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		item := findItem(items, itemID)
		if item == nil {
			return newError(KindNotFound, ErrOrderItemNotFound)
		}
		if !item.Status.CanTransitionTo(status) {
			return &Error{Kind: KindConflict, Message: fmt.Sprintf("cannot move item from %s to %s", item.Status, status), Err: ErrInvalidTransition}
		}
		item.Status = status
		item.UpdatedAt = s.now()
		if err := tx.UpdateItem(ctx, item); err != nil {
			return err
		}
		updated = item
		return nil
	})
	if err != nil {
		s.log.LogOrder("ITEM_STATUS_FAILED", orderID, err.Error())
		return nil, err
	}

	s.log.LogOrder("ITEM_STATUS", orderID, fmt.Sprintf("Item %s moved to %s", itemID, status))
	return updated, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*models.OrderDetail, error) {
	var detail *models.OrderDetail
	err := s.store.View(ctx, func(q storage.Queries) error {
		order, err := q.GetOrder(ctx, orderID)
		if err != nil {
			return lookupErr(err, ErrOrderNotFound)
		}
		detail, err = loadOrderDetail(ctx, q, order)
		return err
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}
