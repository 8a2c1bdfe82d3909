package portal

import (
	"context"
	"sync"
)

// Notifier surfaces transient success and error messages to the viewer.
type Notifier interface {
	Success(ctx context.Context, message string)
	Error(ctx context.Context, message string)
}

type noopNotifier struct{}

func (noopNotifier) Success(context.Context, string) {}
func (noopNotifier) Error(context.Context, string)   {}

func normalizeNotifier(n Notifier) Notifier {
	if n == nil {
		return noopNotifier{}
	}
	return n
}

// Toast is one recorded notification.
type Toast struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// ToastLog keeps notifications in memory so the CLI and tests can read them.
type ToastLog struct {
	mu     sync.Mutex
	toasts []Toast
}

// Success implements Notifier.
func (l *ToastLog) Success(_ context.Context, message string) {
	l.add(Toast{Level: "success", Message: message})
}

// Error implements Notifier.
func (l *ToastLog) Error(_ context.Context, message string) {
	l.add(Toast{Level: "error", Message: message})
}

func (l *ToastLog) add(t Toast) {
	l.mu.Lock()
	l.toasts = append(l.toasts, t)
	l.mu.Unlock()
}

// Toasts returns the recorded notifications, oldest first.
func (l *ToastLog) Toasts() []Toast {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Toast(nil), l.toasts...)
}

// NotificationsClient is the minimal contract of an external notifications
// service.
type NotificationsClient interface {
	PublishPortalEvent(ctx context.Context, event PortalEvent) error
}

// NotificationsHook forwards notifications to an external client.
type NotificationsHook struct {
	Client  NotificationsClient
	Channel string
}

// Success implements Notifier.
func (h *NotificationsHook) Success(ctx context.Context, message string) {
	h.publish(ctx, "success", message)
}

// Error implements Notifier.
func (h *NotificationsHook) Error(ctx context.Context, message string) {
	h.publish(ctx, "error", message)
}

func (h *NotificationsHook) publish(ctx context.Context, level, message string) {
	if h == nil || h.Client == nil {
		return
	}
	_ = h.Client.PublishPortalEvent(ctx, PortalEvent{
		Type:    EventToast,
		Channel: h.Channel,
		Toast:   &Toast{Level: level, Message: message},
	})
}

// MultiNotifier fans notifications out to several notifiers.
type MultiNotifier []Notifier

// Success implements Notifier.
func (m MultiNotifier) Success(ctx context.Context, message string) {
	for _, n := range m {
		if n != nil {
			n.Success(ctx, message)
		}
	}
}

// Error implements Notifier.
func (m MultiNotifier) Error(ctx context.Context, message string) {
	for _, n := range m {
		if n != nil {
			n.Error(ctx, message)
		}
	}
}
