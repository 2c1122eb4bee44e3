package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	domain "github.com/wahret-zmen/api/internal/domain"
	"github.com/wahret-zmen/api/internal/platform/mail"
	"github.com/wahret-zmen/api/internal/repositories"
)

var (
	// ErrNotificationInvalidInput signals the caller provided invalid arguments.
	ErrNotificationInvalidInput = errors.New("notification: invalid input")
)

// fallbackArticleLabel stands in for the product title when the catalog
// lookup fails, so the email never repeats the variant name as the title.
const fallbackArticleLabel = "your article"

// NotificationServiceDeps bundles the collaborators required to construct a notification service.
type NotificationServiceDeps struct {
	Orders   repositories.OrderRepository
	Products repositories.ProductRepository
	Mailer   mail.Sender
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type notificationService struct {
	orders    repositories.OrderRepository
	products  repositories.ProductRepository
	mailer    mail.Sender
	clock     func() time.Time
	logger    func(context.Context, string, map[string]any)
	sanitizer *bluemonday.Policy
}

// NewNotificationService wires dependencies into a concrete NotificationService implementation.
func NewNotificationService(deps NotificationServiceDeps) (NotificationService, error) {
	if deps.Orders == nil {
		return nil, errors.New("notification service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("notification service: product repository is required")
	}
	if deps.Mailer == nil {
		return nil, errors.New("notification service: mail sender is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &notificationService{
		orders:   deps.Orders,
		products: deps.Products,
		mailer:   deps.Mailer,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger:    logger,
		sanitizer: bluemonday.UGCPolicy(),
	}, nil
}

// SendOrderProgress emails the customer about one order line. The subject
// switches to a ready-for-delivery wording once progress reaches 100.
func (s *notificationService) SendOrderProgress(ctx context.Context, cmd OrderProgressNotification) error {
	if strings.TrimSpace(cmd.OrderID) == "" {
		return fmt.Errorf("%w: order id is required", ErrNotificationInvalidInput)
	}
	if strings.TrimSpace(cmd.ProductID) == "" {
		return fmt.Errorf("%w: product id is required", ErrNotificationInvalidInput)
	}
	if cmd.Progress < 0 || cmd.Progress > 100 {
		return fmt.Errorf("%w: progress must be within [0,100]", ErrNotificationInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, cmd.OrderID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return fmt.Errorf("%w: %s", ErrOrderNotFound, cmd.OrderID)
		}
		return err
	}
	if strings.TrimSpace(order.Email) == "" {
		return fmt.Errorf("%w: order %s has no customer email", ErrNotificationInvalidInput, cmd.OrderID)
	}

	idx, err := locateLine(order.Lines, cmd.ProductID, cmd.Key)
	if err != nil {
		return err
	}
	matched := order.Lines[idx]

	title := fallbackArticleLabel
	if product, err := s.products.FindByID(ctx, cmd.ProductID); err == nil && product.Title != "" {
		title = product.Title
	}

	msg := s.buildMessage(order, matched, title, cmd)
	if err := s.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("send progress email: %w", err)
	}

	s.logger(ctx, "order_progress_notified", map[string]any{
		"orderId":  order.ID,
		"product":  cmd.ProductID,
		"progress": cmd.Progress,
	})
	return nil
}

func (s *notificationService) buildMessage(order domain.Order, line domain.OrderLine, productTitle string, cmd OrderProgressNotification) mail.Message {
	shortID := order.ID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}

	article := productTitle
	if cmd.ArticleIndex > 0 {
		article = fmt.Sprintf("%s (article %d)", productTitle, cmd.ArticleIndex)
	}

	var subject string
	if cmd.Progress >= 100 {
		subject = fmt.Sprintf("Order %s: %s is ready for delivery", shortID, article)
	} else {
		subject = fmt.Sprintf("Order %s: %s progress update (%d%%)", shortID, article, cmd.Progress)
	}

	greeting := strings.TrimSpace(order.CustomerName)
	if greeting == "" {
		greeting = "customer"
	}

	var status string
	if cmd.Progress >= 100 {
		status = "is finished and ready for delivery"
	} else {
		status = fmt.Sprintf("is now %d%% complete", cmd.Progress)
	}

	// The variant parenthetical is dropped when it would repeat the title.
	variantNote := ""
	if line.Variant.Name != "" && line.Variant.Name != productTitle {
		variantNote = fmt.Sprintf(" (%s)", line.Variant.Name)
	}

	body := fmt.Sprintf(
		"<p>Dear %s,</p><p>Order <strong>%s</strong>: <strong>%s</strong>%s %s.</p><p>Thank you for shopping with us.</p>",
		html.EscapeString(greeting),
		html.EscapeString(shortID),
		html.EscapeString(article),
		html.EscapeString(variantNote),
		status,
	)

	return mail.Message{
		To:       order.Email,
		Subject:  subject,
		HTMLBody: s.sanitizer.Sanitize(body),
		TextBody: fmt.Sprintf("Dear %s, order %s: %s%s %s.", greeting, shortID, article, variantNote, status),
	}
}
